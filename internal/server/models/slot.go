package models

import "fmt"

// Status is the workflow stage of one image slot.
type Status int

const (
	StatusDefective Status = iota
	StatusFound
	StatusPhotographed
	StatusPrepared
	StatusEdited
	StatusSaved
)

var statusNames = [...]string{"defective", "found", "photographed", "prepared", "edited", "saved"}

// StatusCount is the size of the status scale.
const StatusCount = len(statusNames)

// Valid reports whether s is on the 0–5 scale.
func (s Status) Valid() bool {
	return s >= StatusDefective && s <= StatusSaved
}

// PreFinal reports whether s is below saved.
func (s Status) PreFinal() bool {
	return s >= StatusDefective && s < StatusSaved
}

func (s Status) String() string {
	if !s.Valid() {
		return fmt.Sprintf("status(%d)", int(s))
	}
	return statusNames[s]
}

// MaxSlotIndex is the highest slot index; slots are 0, 1 and 2.
const MaxSlotIndex = 2

// ValidSlot reports whether idN names one of the three slots.
func ValidSlot(idN int) bool {
	return idN >= 0 && idN <= MaxSlotIndex
}

// ImageSlot is one photographic position of a key.
type ImageSlot struct {
	IDN      int     `json:"idN"`
	Status   Status  `json:"status"`
	PublicID *string `json:"publicId"`
	URL      *string `json:"url"`
}

// Handle returns the stored artifact handle, or "".
func (s ImageSlot) Handle() string {
	if s.PublicID == nil {
		return ""
	}
	return *s.PublicID
}

// FreshSlots builds the three slots a bulk reset installs. A saved (or
// invalid) status yields no slots at all.
func FreshSlots(status Status) []ImageSlot {
	if !status.PreFinal() {
		return []ImageSlot{}
	}
	slots := make([]ImageSlot, 0, MaxSlotIndex+1)
	for idN := 0; idN <= MaxSlotIndex; idN++ {
		slots = append(slots, ImageSlot{IDN: idN, Status: status})
	}
	return slots
}

// SlotRef locates one slot together with the codes needed to address its
// artifact.
type SlotRef struct {
	KeyID    string
	LineCode string
	KeyCode  string
	Slot     ImageSlot
}

// SlotScope selects the keys a slot operation covers. At most one field is
// set; the zero value means every key that currently has slots.
type SlotScope struct {
	KeyID      string
	LineID     string
	SupplierID string
}

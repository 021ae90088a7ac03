// Package models holds the catalog's persistent entities and the value types
// exchanged between repositories and services.
package models

import (
	"time"

	"github.com/dmitrijs2005/keycatalog/internal/ident"
)

// Supplier is the top of the hierarchy. Identifier is stored padded to
// width 3.
type Supplier struct {
	ID         string    `json:"id"`
	Identifier string    `json:"identifier"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Line belongs to a supplier. SupplierIdentifier is filled on reads.
type Line struct {
	ID                 string    `json:"id"`
	Identifier         string    `json:"identifier"`
	SupplierID         string    `json:"supplierId"`
	SupplierIdentifier string    `json:"supplier,omitempty"`
	Name               string    `json:"name"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
	KeyCount           *int      `json:"countKeys,omitempty"`
}

// Code is the 6 character line+supplier code.
func (l *Line) Code() string {
	return ident.LineCode(l.Identifier, l.SupplierIdentifier)
}

// Key is one catalogued item. LineIdentifier and SupplierIdentifier are
// filled on reads.
type Key struct {
	ID                 string      `json:"id"`
	LineID             string      `json:"lineId"`
	LineIdentifier     string      `json:"line,omitempty"`
	SupplierIdentifier string      `json:"supplier,omitempty"`
	Code               string      `json:"code"`
	Desc               string      `json:"desc"`
	Images             []ImageSlot `json:"image"`
	CreatedAt          time.Time   `json:"createdAt"`
	UpdatedAt          time.Time   `json:"updatedAt"`
}

// LineCode is the 6 character code of the key's line.
func (k *Key) LineCode() string {
	return ident.LineCode(k.LineIdentifier, k.SupplierIdentifier)
}

// KeyCode is the 10 character composite code.
func (k *Key) KeyCode() string {
	return ident.KeyCode(k.LineIdentifier, k.SupplierIdentifier, k.Code)
}

// Slot returns the slot with the given index, if present.
func (k *Key) Slot(idN int) (ImageSlot, bool) {
	for _, s := range k.Images {
		if s.IDN == idN {
			return s, true
		}
	}
	return ImageSlot{}, false
}

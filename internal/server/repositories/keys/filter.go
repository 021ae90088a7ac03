package keys

import (
	"fmt"
	"strings"

	"github.com/dmitrijs2005/keycatalog/internal/server/models"
)

// where accumulates AND-ed conditions with positional arguments. Each "?"
// in a condition is replaced by the next $n placeholder.
type where struct {
	conds []string
	args  []any
}

func (w *where) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *where) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// next is the placeholder following the collected arguments.
func (w *where) next() string {
	return fmt.Sprintf("$%d", len(w.args)+1)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// filterWhere translates a KeyFilter. Prefix segments are matched
// positionally against line, supplier and item code; identifiers are stored
// upper-cased so plain LIKE is enough there.
func filterWhere(f models.KeyFilter) *where {
	w := &where{}
	if f.Prefix.Line != "" {
		w.add(`l.identifier LIKE ?`, f.Prefix.Line+"%")
	}
	if f.Prefix.Supplier != "" {
		w.add(`s.identifier LIKE ?`, f.Prefix.Supplier+"%")
	}
	if f.Prefix.Code != "" {
		w.add(`k.code LIKE ?`, f.Prefix.Code+"%")
	}
	if f.Desc != "" {
		w.add(`k.description ILIKE ?`, "%"+likeEscaper.Replace(f.Desc)+"%")
	}
	if f.Status != nil {
		if f.SlotIndex != nil {
			w.add(`EXISTS (SELECT 1 FROM key_images f WHERE f.key_id = k.id AND f.status = ? AND f.id_n = ?)`, int(*f.Status), *f.SlotIndex)
		} else {
			w.add(`EXISTS (SELECT 1 FROM key_images f WHERE f.key_id = k.id AND f.status = ?)`, int(*f.Status))
		}
	}
	if f.LineID != "" {
		w.add(`k.line_id = ?`, f.LineID)
	}
	return w
}

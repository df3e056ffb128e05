// internal/domain/checklist/variant.go
package checklist

import (
	"fmt"
	"sort"
	"strings"
)

var ErrUnknownVariant = fmt.Errorf("unknown checklist variant")

// Columns names the backend columns shared by every variant's table.
type Columns struct {
	TourID    string
	Cycle     string
	Shift     string
	Inspector string
	Product   string
	Executive string
	BatchNo   string
	Location  string
	Category  string
	Okays     string
	Defects   string
}

// Slot is one fixed checklist position and the backend column holding its status.
type Slot struct {
	Key    Key
	Column string
}

// Variant is a checklist shape. Namespace scopes local storage keys, so each
// variant keeps its own offline queue, start data and cycle counter.
type Variant struct {
	Name      string
	Namespace string
	Table     string
	Columns   Columns
	Slots     []Slot
}

// NewItems returns an all-unset checklist for a fresh cycle draft.
func (v Variant) NewItems() []Item {
	items := make([]Item, len(v.Slots))
	for i, slot := range v.Slots {
		items[i] = Item{
			ID:     ItemID(slot.Key.Group, slot.Key.Label),
			Group:  slot.Key.Group,
			Label:  slot.Key.Label,
			Status: StatusUnset,
		}
	}
	return items
}

// Project resolves every slot of the shape against a decoded summary.
func (v Variant) Project(s Summary) map[Key]string {
	out := make(map[Key]string, len(v.Slots))
	for _, slot := range v.Slots {
		out[slot.Key] = s.StatusFor(slot.Key.Group, slot.Key.Label)
	}
	return out
}

// SelectColumns lists the columns a fetch needs, in a stable order.
func (v Variant) SelectColumns() []string {
	c := v.Columns
	cols := []string{c.Cycle, c.Shift, c.Inspector, c.Product, c.Executive, c.BatchNo, c.Location, c.Category, c.Okays, c.Defects}
	for _, slot := range v.Slots {
		cols = append(cols, slot.Column)
	}
	return cols
}

func slotsFor(prefix string, keys ...Key) []Slot {
	slots := make([]Slot, len(keys))
	for i, k := range keys {
		slots[i] = Slot{Key: k, Column: prefix + strings.ReplaceAll(ItemID(k.Group, k.Label), "-", "")}
	}
	return slots
}

func commonColumns(prefix string) Columns {
	return Columns{
		TourID:    prefix + "tourid",
		Cycle:     prefix + "cycle",
		Shift:     prefix + "shift",
		Inspector: prefix + "qaname",
		Product:   prefix + "product",
		Executive: prefix + "executivename",
		BatchNo:   prefix + "batchno",
		Location:  prefix + "location",
		Category:  prefix + "category",
		Okays:     prefix + "okays",
		Defects:   prefix + "defects",
	}
}

// OPRPCCP is the metal detection checklist: FE, NFE and SS test pieces through
// the aperture centre twice, plus the reject mechanism check.
var OPRPCCP = Variant{
	Name:      "oprp_ccp",
	Namespace: "oprp",
	Table:     "cr3c0_oprpandccprecords",
	Columns:   commonColumns("cr3c0_"),
	Slots: slotsFor("cr3c0_",
		Key{Group: "FE", Label: "Centre 1st Pass"},
		Key{Group: "FE", Label: "Centre 2nd Pass"},
		Key{Group: "NFE", Label: "Centre 1st Pass"},
		Key{Group: "NFE", Label: "Centre 2nd Pass"},
		Key{Group: "SS", Label: "Centre 1st Pass"},
		Key{Group: "SS", Label: "Centre 2nd Pass"},
		Key{Group: "MD", Label: "Reject Mechanism"},
	),
}

// CodeVerification checks the printed pack coding.
var CodeVerification = Variant{
	Name:      "code_verification",
	Namespace: "codeverification",
	Table:     "cr3c0_codeverificationrecords",
	Columns:   commonColumns("cr3c0_"),
	Slots: slotsFor("cr3c0_",
		Key{Group: "Coding", Label: "Batch No"},
		Key{Group: "Coding", Label: "Mfg Date"},
		Key{Group: "Coding", Label: "Expiry Date"},
		Key{Group: "Coding", Label: "MRP"},
		Key{Group: "Coding", Label: "Legibility"},
	),
}

var variants = map[string]Variant{
	OPRPCCP.Name:          OPRPCCP,
	CodeVerification.Name: CodeVerification,
}

// Lookup finds a built-in variant by name.
func Lookup(name string) (Variant, error) {
	v, ok := variants[name]
	if !ok {
		return Variant{}, fmt.Errorf("%w: %q", ErrUnknownVariant, name)
	}
	return v, nil
}

// Names lists the built-in variant names, sorted.
func Names() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

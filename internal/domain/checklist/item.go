// internal/domain/checklist/item.go
package checklist

import (
	"fmt"
	"strings"
)

// Status is the grade of a single checklist item.
type Status int

const (
	StatusUnset Status = iota
	StatusOkay
	StatusNotOkay
)

func (s Status) String() string {
	switch s {
	case StatusOkay:
		return "okay"
	case StatusNotOkay:
		return "not_okay"
	default:
		return ""
	}
}

// ParseStatus accepts the forms an item file or form post may carry.
func ParseStatus(raw string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "unset":
		return StatusUnset, nil
	case "okay", "ok":
		return StatusOkay, nil
	case "not_okay", "not okay", "notokay", "nok":
		return StatusNotOkay, nil
	}
	return StatusUnset, fmt.Errorf("unknown checklist status %q", raw)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Key is the stable identity of an item: its group and label.
// Item IDs are only unique within one cycle and are never used for round-tripping.
type Key struct {
	Group string
	Label string
}

func (k Key) String() string {
	if k.Group == "" {
		return k.Label
	}
	return k.Group + keySeparator + k.Label
}

func (k Key) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Key) UnmarshalText(text []byte) error {
	*k = parseKey(string(text))
	return nil
}

// parseKey splits "<group> - <label>". Without a separator the whole string is the label.
func parseKey(s string) Key {
	s = strings.TrimSpace(s)
	group, label, found := strings.Cut(s, keySeparator)
	if !found {
		// " - label" from writers that always emit the separator.
		if label, ok := strings.CutPrefix(s, strings.TrimLeft(keySeparator, " ")); ok {
			return Key{Label: strings.TrimSpace(label)}
		}
		return Key{Label: s}
	}
	return Key{Group: strings.TrimSpace(group), Label: strings.TrimSpace(label)}
}

// Item is one inspectable sub-criterion of a cycle.
// Remarks only carry meaning when Status is StatusNotOkay.
type Item struct {
	ID      string `json:"id"`
	Group   string `json:"group"`
	Label   string `json:"label"`
	Status  Status `json:"status"`
	Remarks string `json:"remarks"`
}

func (i Item) Key() Key {
	return Key{Group: i.Group, Label: i.Label}
}

// ItemID builds the per-cycle identifier used by forms, e.g. "fe-centre-1st-pass".
func ItemID(group, label string) string {
	raw := strings.ToLower(group + " " + label)
	return strings.Join(strings.Fields(raw), "-")
}

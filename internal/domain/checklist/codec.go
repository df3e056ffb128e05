// internal/domain/checklist/codec.go
package checklist

import (
	"errors"
	"fmt"
	"strings"
)

const (
	StatusOK  = "OK"
	NoDefects = "No defects"
	NoRemarks = "No remarks"

	okaysPrefix    = "Okays: "
	defectsPrefix  = "Defects: "
	entrySeparator = "; "
	keySeparator   = " - "
)

// Encoded is the two-column backend form of a checklist.
type Encoded struct {
	Okays   string `json:"okays"`
	Defects string `json:"defects"`
}

// NotOkay renders the status string stored for a failed slot.
func NotOkay(remarks string) string {
	if strings.TrimSpace(remarks) == "" {
		remarks = NoRemarks
	}
	return fmt.Sprintf("Not Okay (%s)", remarks)
}

// Encode turns checklist items into the okays/defects string pair.
// Unset items are omitted. An empty defect list encodes as the literal "No defects",
// while an empty okay list encodes as "".
func Encode(items []Item) Encoded {
	var okays, defects []string
	for _, item := range items {
		switch item.Status {
		case StatusOkay:
			okays = append(okays, item.Key().String())
		case StatusNotOkay:
			remarks := strings.TrimSpace(item.Remarks)
			if remarks == "" {
				remarks = NoRemarks
			}
			defects = append(defects, item.Key().String()+": "+remarks)
		}
	}

	enc := Encoded{Defects: NoDefects}
	if len(okays) > 0 {
		enc.Okays = okaysPrefix + strings.Join(okays, entrySeparator)
	}
	if len(defects) > 0 {
		enc.Defects = defectsPrefix + strings.Join(defects, entrySeparator)
	}
	return enc
}

// EncodingError describes an encoded entry that did not have the expected shape.
// It is informational only: Decode still uses the entry on a best-effort basis.
type EncodingError struct {
	Column string
	Entry  string
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("malformed %s entry %q: %s", e.Column, e.Entry, e.Reason)
}

// Summary is the decoded lookup over an okays/defects pair.
type Summary struct {
	okays     map[string]struct{}
	defects   map[string]string
	Malformed []*EncodingError
}

// Decode parses an okays/defects pair. It never fails; entries without the
// expected separators are used whole and reported in Summary.Malformed.
func Decode(okays, defects string) Summary {
	s := Summary{
		okays:   make(map[string]struct{}),
		defects: make(map[string]string),
	}

	for _, entry := range splitEntries(okays, okaysPrefix) {
		if !strings.Contains(entry, keySeparator) {
			s.Malformed = append(s.Malformed, &EncodingError{Column: "okays", Entry: entry, Reason: "missing group separator"})
		}
		s.okays[normalizeKey(entry)] = struct{}{}
	}

	if strings.EqualFold(strings.TrimSpace(defects), NoDefects) {
		return s
	}
	for _, entry := range splitEntries(defects, defectsPrefix) {
		key, remarks, found := strings.Cut(entry, ":")
		remarks = strings.TrimSpace(remarks)
		if !found {
			s.Malformed = append(s.Malformed, &EncodingError{Column: "defects", Entry: entry, Reason: "missing remarks separator"})
		}
		if remarks == "" {
			remarks = NoRemarks
		}
		key = normalizeKey(key)
		if _, seen := s.defects[key]; !seen {
			s.defects[key] = remarks
		}
	}
	return s
}

// StatusFor resolves one slot: okays first, then defects, otherwise OK.
// Absence from both strings counts as a pass.
func (s Summary) StatusFor(group, label string) string {
	key := normalizeKey(Key{Group: group, Label: label}.String())
	if _, ok := s.okays[key]; ok {
		return StatusOK
	}
	if remarks, ok := s.defects[key]; ok {
		return NotOkay(remarks)
	}
	return StatusOK
}

// DefectCount is the number of distinct failed slots in the summary.
func (s Summary) DefectCount() int {
	return len(s.defects)
}

// Err joins the malformed-entry errors, or returns nil.
func (s Summary) Err() error {
	if len(s.Malformed) == 0 {
		return nil
	}
	errs := make([]error, len(s.Malformed))
	for i, m := range s.Malformed {
		errs[i] = m
	}
	return errors.Join(errs...)
}

func splitEntries(raw, prefix string) []string {
	raw = strings.TrimSpace(raw)
	if len(raw) >= len(prefix) && strings.EqualFold(raw[:len(prefix)], prefix) {
		raw = raw[len(prefix):]
	} else if trimmed := strings.TrimSuffix(prefix, " "); len(raw) >= len(trimmed) && strings.EqualFold(raw[:len(trimmed)], trimmed) {
		raw = raw[len(trimmed):]
	}

	// A bare ";" belongs to the remarks; only "; " separates entries.
	var entries []string
	for _, part := range strings.Split(raw, entrySeparator) {
		if part = strings.TrimSpace(part); part != "" {
			entries = append(entries, part)
		}
	}
	return entries
}

// normalizeKey makes "FE -  Centre 1st Pass" and "FE - Centre 1st Pass" compare equal.
func normalizeKey(raw string) string {
	return parseKey(raw).String()
}

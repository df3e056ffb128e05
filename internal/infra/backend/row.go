// internal/infra/backend/row.go
package backend

import (
	"encoding/json"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"
	"strconv"
	"strings"
)

// toRow builds the JSON row for one record. Slot columns are always derived
// from the okays/defects pair so the two encodings cannot disagree.
func toRow(v checklist.Variant, rec cycle.Record) map[string]any {
	c := v.Columns
	row := map[string]any{
		c.TourID:    rec.TourID,
		c.Cycle:     rec.CycleNumber,
		c.Shift:     rec.Shift,
		c.Inspector: rec.Inspector,
		c.Product:   rec.Product,
		c.Executive: rec.Executive,
		c.BatchNo:   nullable(rec.BatchNo),
		c.Location:  nullable(rec.Location),
		c.Category:  nullable(rec.Category),
		c.Okays:     rec.Okays,
		c.Defects:   rec.Defects,
	}
	statuses := v.Project(checklist.Decode(rec.Okays, rec.Defects))
	for _, slot := range v.Slots {
		row[slot.Column] = statuses[slot.Key]
	}
	return row
}

func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

// fromRow decodes a fetched row. ok is false when the row has no positive
// cycle number. The returned error lists malformed checklist entries only;
// the record is still usable.
func fromRow(v checklist.Variant, tourID string, row map[string]json.RawMessage) (rec cycle.Record, ok bool, malformed error) {
	c := v.Columns
	n, ok := cycleNumber(row[c.Cycle])
	if !ok {
		return cycle.Record{}, false, nil
	}

	summary := checklist.Decode(text(row[c.Okays]), text(row[c.Defects]))
	rec = cycle.Record{
		TourID:        tourID,
		CycleNumber:   n,
		Shift:         text(row[c.Shift]),
		Inspector:     text(row[c.Inspector]),
		Product:       text(row[c.Product]),
		Executive:     text(row[c.Executive]),
		BatchNo:       text(row[c.BatchNo]),
		Location:      text(row[c.Location]),
		Category:      text(row[c.Category]),
		Okays:         text(row[c.Okays]),
		Defects:       text(row[c.Defects]),
		StatusByField: v.Project(summary),
	}
	return rec, true, summary.Err()
}

// cycleNumber accepts a JSON number or a numeric string.
func cycleNumber(raw json.RawMessage) (int, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var num json.Number
	if err := json.Unmarshal(raw, &num); err != nil {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
		num = json.Number(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(num.String(), 64)
	if err != nil || f < 1 || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}

// text reads a string column; null, missing and non-string values read as "".
func text(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

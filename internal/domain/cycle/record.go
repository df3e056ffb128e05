// internal/domain/cycle/record.go
package cycle

import (
	"inspection_cycle_sync/internal/domain/checklist"
	"strings"
	"time"
)

// Session is what the surrounding application supplies about the inspector.
type Session struct {
	TourID    string
	Shift     string
	Inspector string // display name of the logged-in user
}

func (s Session) Validate() error {
	var missing []string
	if strings.TrimSpace(s.TourID) == "" {
		missing = append(missing, "tour id")
	}
	if strings.TrimSpace(s.Inspector) == "" {
		missing = append(missing, "inspector")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// StartData is the start-of-cycle metadata captured before grading.
// Empty optional fields are sent to the backend as null.
type StartData struct {
	Product   string `json:"product"`
	Executive string `json:"executiveName"`
	BatchNo   string `json:"batchNo,omitempty"`
	Location  string `json:"location,omitempty"`
	Category  string `json:"category,omitempty"`
}

func (s StartData) Validate() error {
	var missing []string
	if strings.TrimSpace(s.Product) == "" {
		missing = append(missing, "product")
	}
	if strings.TrimSpace(s.Executive) == "" {
		missing = append(missing, "executive")
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// Record is one completed cycle. It is built once per completed cycle and
// never modified after submission.
type Record struct {
	TourID        string                   `json:"tourId"`
	CycleNumber   int                      `json:"cycleNumber"`
	Shift         string                   `json:"shift"`
	Inspector     string                   `json:"inspector"`
	Product       string                   `json:"product"`
	Executive     string                   `json:"executiveName"`
	BatchNo       string                   `json:"batchNo,omitempty"`
	Location      string                   `json:"location,omitempty"`
	Category      string                   `json:"category,omitempty"`
	Okays         string                   `json:"okays"`
	Defects       string                   `json:"defects"`
	StatusByField map[checklist.Key]string `json:"statusByField"`
	RecordedAt    time.Time                `json:"recordedAt"`
}

// NewRecord encodes a finished draft for variant v.
func NewRecord(v checklist.Variant, session Session, draft Draft, now time.Time) Record {
	enc := checklist.Encode(draft.Items)
	return Record{
		TourID:        session.TourID,
		CycleNumber:   draft.CycleNumber,
		Shift:         session.Shift,
		Inspector:     session.Inspector,
		Product:       strings.TrimSpace(draft.Start.Product),
		Executive:     strings.TrimSpace(draft.Start.Executive),
		BatchNo:       strings.TrimSpace(draft.Start.BatchNo),
		Location:      strings.TrimSpace(draft.Start.Location),
		Category:      strings.TrimSpace(draft.Start.Category),
		Okays:         enc.Okays,
		Defects:       enc.Defects,
		StatusByField: v.Project(checklist.Decode(enc.Okays, enc.Defects)),
		RecordedAt:    now,
	}
}

// internal/domain/cycle/errors.go
package cycle

import (
	"fmt"
	"strings"
)

var ErrStaleDraft = fmt.Errorf("draft does not belong to the current cycle")
var ErrUnknownItem = fmt.Errorf("checklist item not in this cycle's shape")

// ValidationError reports required session or start-of-cycle fields that are missing.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "missing required fields: " + strings.Join(e.Missing, ", ")
}

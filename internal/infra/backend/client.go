// internal/infra/backend/client.go
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultTimeout = 30 * time.Second
	maxBodyBytes   = 4 << 20
	maxAttempts    = 2 // the original request plus one retry after a 401
)

// TokenProvider supplies bearer tokens. Token is called before every attempt.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// Refresher is implemented by providers that can force a fresh token.
// The client prefers it over Token when retrying after a 401.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// Representation is the created row as echoed back by the backend.
type Representation map[string]any

// Accepted is one record the backend acknowledged.
type Accepted struct {
	CycleNumber    int
	Representation Representation
}

// Failure is one record the backend did not accept.
type Failure struct {
	CycleNumber int
	Err         error
}

// BatchResult reports every record of a batch. Partial success is a normal outcome.
type BatchResult struct {
	Successes []Accepted
	Failures  []Failure
}

func (r BatchResult) OK() bool {
	return len(r.Failures) == 0
}

// Client talks to one variant's table of an OData-style REST backend.
type Client struct {
	baseURL    string
	variant    checklist.Variant
	tokens     TokenProvider
	httpClient *http.Client
	logger     *logrus.Entry
}

// NewClient builds a client. A nil httpClient gets a default with a 30s timeout.
func NewClient(baseURL string, v checklist.Variant, tokens TokenProvider, httpClient *http.Client, logger *logrus.Entry) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		variant:    v,
		tokens:     tokens,
		httpClient: httpClient,
		logger:     logger.WithFields(logrus.Fields{"component": "backend", "variant": v.Name}),
	}
}

func (c *Client) tableURL() string {
	return c.baseURL + "/" + c.variant.Table
}

// FetchCycles reads every stored cycle of a tour, one record per cycle number.
// When the backend holds duplicates the first row wins. Results are ordered by cycle number.
func (c *Client) FetchCycles(ctx context.Context, tourID string) ([]cycle.Record, error) {
	filter := fmt.Sprintf("%s eq '%s'", c.variant.Columns.TourID, strings.ReplaceAll(tourID, "'", "''"))
	target := c.tableURL() + "?$filter=" + queryEscape(filter) + "&$select=" + queryEscape(strings.Join(c.variant.SelectColumns(), ","))

	body, err := c.do(ctx, "fetch cycles", func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, err
		}
		setODataHeaders(req)
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Value []map[string]json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &BackendError{Op: "fetch cycles", Status: http.StatusOK, Body: fmt.Sprintf("undecodable body: %v", err)}
	}

	seen := make(map[int]struct{}, len(payload.Value))
	records := make([]cycle.Record, 0, len(payload.Value))
	for _, row := range payload.Value {
		rec, ok, malformed := fromRow(c.variant, tourID, row)
		if !ok {
			c.logger.WithField("tour_id", tourID).Warn("Skipping fetched row without a valid cycle number")
			continue
		}
		if _, dup := seen[rec.CycleNumber]; dup {
			c.logger.WithFields(logrus.Fields{"tour_id": tourID, "cycle": rec.CycleNumber}).Debug("Dropping duplicate cycle row")
			continue
		}
		if malformed != nil {
			c.logger.WithError(malformed).WithFields(logrus.Fields{"tour_id": tourID, "cycle": rec.CycleNumber}).Debug("Checklist summary decoded best-effort")
		}
		seen[rec.CycleNumber] = struct{}{}
		records = append(records, rec)
	}
	sort.SliceStable(records, func(i, j int) bool { return records[i].CycleNumber < records[j].CycleNumber })

	c.logger.WithFields(logrus.Fields{"tour_id": tourID, "rows": len(payload.Value), "cycles": len(records)}).Info("Fetched cycles")
	return records, nil
}

// SubmitOne creates one row for rec and returns the backend's representation of it.
func (c *Client) SubmitOne(ctx context.Context, rec cycle.Record) (Representation, error) {
	payload, err := json.Marshal(toRow(c.variant, rec))
	if err != nil {
		return nil, fmt.Errorf("error encoding cycle %d: %w", rec.CycleNumber, err)
	}

	op := fmt.Sprintf("submit cycle %d", rec.CycleNumber)
	body, err := c.do(ctx, op, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tableURL(), bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		setODataHeaders(req)
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
		req.Header.Set("Prefer", "return=representation")
		return req, nil
	})
	if err != nil {
		return nil, err
	}

	rep := Representation{}
	if len(bytes.TrimSpace(body)) > 0 {
		if err := json.Unmarshal(body, &rep); err != nil {
			c.logger.WithError(err).WithField("cycle", rec.CycleNumber).Warn("Accepted response body is not a JSON object")
		}
	}
	c.logger.WithFields(logrus.Fields{"tour_id": rec.TourID, "cycle": rec.CycleNumber}).Info("Cycle submitted")
	return rep, nil
}

// SubmitBatch posts records one at a time, in order, and keeps going after a
// failure so every record's outcome is attributed. Earlier successes are not undone.
func (c *Client) SubmitBatch(ctx context.Context, records []cycle.Record) BatchResult {
	var result BatchResult
	for _, rec := range records {
		rep, err := c.SubmitOne(ctx, rec)
		if err != nil {
			c.logger.WithError(err).WithFields(logrus.Fields{"tour_id": rec.TourID, "cycle": rec.CycleNumber}).Warn("Batch record failed")
			result.Failures = append(result.Failures, Failure{CycleNumber: rec.CycleNumber, Err: err})
			continue
		}
		result.Successes = append(result.Successes, Accepted{CycleNumber: rec.CycleNumber, Representation: rep})
	}
	return result
}

// do sends a request built by newRequest, applying the single retry on 401.
// newRequest is called once per attempt so bodies are never reused.
func (c *Client) do(ctx context.Context, op string, newRequest func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		token, err := c.token(ctx, attempt)
		if err != nil {
			return nil, &AuthError{Op: op, Err: err}
		}

		req, err := newRequest(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: error building request: %w", op, err)
		}
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, &NetworkError{Op: op, Err: err}
		}
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		resp.Body.Close()

		if resp.StatusCode == http.StatusUnauthorized {
			if attempt < maxAttempts {
				c.logger.WithField("op", op).Info("Token rejected, refreshing and retrying once")
				continue
			}
			return nil, &AuthError{Op: op, Status: resp.StatusCode, Body: string(body)}
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return nil, &BackendError{Op: op, Status: resp.StatusCode, Body: string(body)}
		}
		if readErr != nil {
			return nil, &NetworkError{Op: op, Err: readErr}
		}
		return body, nil
	}
}

func (c *Client) token(ctx context.Context, attempt int) (string, error) {
	if attempt > 1 {
		if r, ok := c.tokens.(Refresher); ok {
			return r.Refresh(ctx)
		}
	}
	return c.tokens.Token(ctx)
}

// queryEscape escapes an OData query option value. Spaces become %20 since
// not every OData server reads "+" as a space.
func queryEscape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

func setODataHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	req.Header.Set("OData-MaxVersion", "4.0")
	req.Header.Set("OData-Version", "4.0")
}

package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"inspection_cycle_sync/internal/domain/checklist"
	"inspection_cycle_sync/internal/domain/cycle"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingTokens struct {
	calls     int
	refreshes int
	err       error
}

func (p *countingTokens) Token(context.Context) (string, error) {
	p.calls++
	if p.err != nil {
		return "", p.err
	}
	return fmt.Sprintf("token-%d", p.calls), nil
}

type refreshingTokens struct {
	countingTokens
}

func (p *refreshingTokens) Refresh(context.Context) (string, error) {
	p.refreshes++
	return "refreshed", nil
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return logrus.NewEntry(l)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, tokens TokenProvider) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/api/data/v9.2/", checklist.OPRPCCP, tokens, server.Client(), testLogger())
}

func sampleRecord(n int) cycle.Record {
	return cycle.Record{
		TourID:      "TOUR-7",
		CycleNumber: n,
		Shift:       "A",
		Inspector:   "QA One",
		Product:     "Marie Biscuit",
		Executive:   "S. Nair",
		BatchNo:     "B-104",
		Okays:       "Okays: FE - Centre 1st Pass",
		Defects:     "Defects: FE - Centre 2nd Pass: gap",
	}
}

func TestFetchCycles(t *testing.T) {
	var gotQuery map[string][]string
	var rawQuery string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/data/v9.2/cr3c0_oprpandccprecords", r.URL.Path)
		assert.Equal(t, "Bearer token-1", r.Header.Get("Authorization"))
		assert.Equal(t, "4.0", r.Header.Get("OData-MaxVersion"))
		assert.Equal(t, "4.0", r.Header.Get("OData-Version"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		gotQuery = r.URL.Query()
		rawQuery = r.URL.RawQuery

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"value":[
			{"cr3c0_cycle": 2, "cr3c0_product": "Rusk", "cr3c0_okays": "", "cr3c0_defects": "Defects: MD - Reject Mechanism: slow"},
			{"cr3c0_cycle": "1", "cr3c0_product": "Marie", "cr3c0_okays": "Okays: FE - Centre 1st Pass", "cr3c0_defects": "No defects", "cr3c0_batchno": null},
			{"cr3c0_cycle": 2, "cr3c0_product": "Duplicate"},
			{"cr3c0_cycle": null, "cr3c0_product": "No cycle"},
			{"cr3c0_cycle": "abc"},
			{"cr3c0_cycle": 0}
		]}`))
	}, &countingTokens{})

	records, err := client.FetchCycles(context.Background(), "O'Brien-1")
	require.NoError(t, err)

	assert.Equal(t, []string{"cr3c0_tourid eq 'O''Brien-1'"}, gotQuery["$filter"])
	assert.True(t, strings.HasPrefix(rawQuery, "$filter=cr3c0_tourid%20eq%20%27O%27%27Brien-1%27&$select=cr3c0_cycle"), rawQuery)
	assert.NotContains(t, rawQuery, "+")
	assert.NotContains(t, rawQuery, "%24")
	assert.Contains(t, gotQuery["$select"][0], "cr3c0_okays")
	assert.Contains(t, gotQuery["$select"][0], "cr3c0_mdrejectmechanism")

	require.Len(t, records, 2)
	assert.Equal(t, 1, records[0].CycleNumber)
	assert.Equal(t, "Marie", records[0].Product)
	assert.Equal(t, "", records[0].BatchNo)
	assert.Equal(t, "O'Brien-1", records[0].TourID)
	assert.Equal(t, 2, records[1].CycleNumber)
	assert.Equal(t, "Rusk", records[1].Product, "first row wins for a duplicated cycle")
	assert.Equal(t, "Not Okay (slow)", records[1].StatusByField[checklist.Key{Group: "MD", Label: "Reject Mechanism"}])
	assert.Equal(t, "OK", records[1].StatusByField[checklist.Key{Group: "FE", Label: "Centre 1st Pass"}])
}

func TestSubmitOne(t *testing.T) {
	var row map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json; charset=utf-8", r.Header.Get("Content-Type"))
		assert.Equal(t, "return=representation", r.Header.Get("Prefer"))
		assert.Equal(t, "4.0", r.Header.Get("OData-Version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"cr3c0_oprpandccprecordid":"abc-123","cr3c0_cycle":3}`))
	}, &countingTokens{})

	rep, err := client.SubmitOne(context.Background(), sampleRecord(3))
	require.NoError(t, err)
	assert.Equal(t, "abc-123", rep["cr3c0_oprpandccprecordid"])

	assert.Equal(t, "TOUR-7", row["cr3c0_tourid"])
	assert.EqualValues(t, 3, row["cr3c0_cycle"])
	assert.Equal(t, "B-104", row["cr3c0_batchno"])
	assert.Nil(t, row["cr3c0_location"])
	assert.Contains(t, row, "cr3c0_location")
	assert.Equal(t, "OK", row["cr3c0_fecentre1stpass"])
	assert.Equal(t, "Not Okay (gap)", row["cr3c0_fecentre2ndpass"])
	assert.Equal(t, "OK", row["cr3c0_sscentre2ndpass"])
	assert.Equal(t, "Defects: FE - Centre 2nd Pass: gap", row["cr3c0_defects"])
}

func TestSubmitOneNoContent(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}, &countingTokens{})

	rep, err := client.SubmitOne(context.Background(), sampleRecord(1))
	require.NoError(t, err)
	assert.Empty(t, rep)
}

func TestRetryOnceOnUnauthorized(t *testing.T) {
	t.Run("401 then 200 succeeds after two requests", func(t *testing.T) {
		var requests int32
		var auths []string
		tokens := &countingTokens{}
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			auths = append(auths, r.Header.Get("Authorization"))
			if atomic.AddInt32(&requests, 1) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{}`))
		}, tokens)

		_, err := client.SubmitOne(context.Background(), sampleRecord(1))
		require.NoError(t, err)
		assert.EqualValues(t, 2, requests)
		assert.Equal(t, 2, tokens.calls)
		assert.Equal(t, []string{"Bearer token-1", "Bearer token-2"}, auths)
	})

	t.Run("401 twice is a terminal auth error after two requests", func(t *testing.T) {
		var requests int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte("token expired"))
		}, &countingTokens{})

		_, err := client.SubmitOne(context.Background(), sampleRecord(1))
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.Equal(t, http.StatusUnauthorized, authErr.Status)
		assert.Equal(t, "token expired", authErr.Body)
		assert.EqualValues(t, 2, requests)
	})

	t.Run("fetch retries with identical parameters", func(t *testing.T) {
		var queries []string
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			queries = append(queries, r.URL.RawQuery)
			if len(queries) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(`{"value":[]}`))
		}, &countingTokens{})

		records, err := client.FetchCycles(context.Background(), "T1")
		require.NoError(t, err)
		assert.Empty(t, records)
		require.Len(t, queries, 2)
		assert.Equal(t, queries[0], queries[1])
	})

	t.Run("refresher is used for the retry", func(t *testing.T) {
		var auths []string
		tokens := &refreshingTokens{}
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			auths = append(auths, r.Header.Get("Authorization"))
			if len(auths) == 1 {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.WriteHeader(http.StatusCreated)
		}, tokens)

		_, err := client.SubmitOne(context.Background(), sampleRecord(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"Bearer token-1", "Bearer refreshed"}, auths)
		assert.Equal(t, 1, tokens.refreshes)
	})
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("backend error carries status and body", func(t *testing.T) {
		var requests int32
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&requests, 1)
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":{"message":"bad column"}}`))
		}, &countingTokens{})

		_, err := client.SubmitOne(context.Background(), sampleRecord(1))
		var backendErr *BackendError
		require.ErrorAs(t, err, &backendErr)
		assert.Equal(t, http.StatusBadRequest, backendErr.Status)
		assert.Contains(t, backendErr.Body, "bad column")
		assert.EqualValues(t, 1, requests, "non-401 failures are not retried")
	})

	t.Run("token provider failure", func(t *testing.T) {
		called := false
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			called = true
		}, &countingTokens{err: errors.New("not signed in")})

		_, err := client.FetchCycles(context.Background(), "T1")
		var authErr *AuthError
		require.ErrorAs(t, err, &authErr)
		assert.False(t, called)
	})

	t.Run("network error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()
		client := NewClient(server.URL, checklist.OPRPCCP, &countingTokens{}, nil, testLogger())

		_, err := client.SubmitOne(context.Background(), sampleRecord(1))
		var netErr *NetworkError
		require.ErrorAs(t, err, &netErr)
	})

	t.Run("undecodable fetch body", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`<html>`))
		}, &countingTokens{})

		_, err := client.FetchCycles(context.Background(), "T1")
		var backendErr *BackendError
		require.ErrorAs(t, err, &backendErr)
	})
}

func TestSubmitBatchAttributesFailures(t *testing.T) {
	var order []float64
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		var row map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&row))
		n := row["cr3c0_cycle"].(float64)
		order = append(order, n)
		if n == 2 {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
			return
		}
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"cr3c0_cycle":%v}`, n)
	}, &countingTokens{})

	result := client.SubmitBatch(context.Background(), []cycle.Record{sampleRecord(1), sampleRecord(2), sampleRecord(3)})
	assert.False(t, result.OK())
	assert.Equal(t, []float64{1, 2, 3}, order, "sequential, in order, continuing after a failure")
	require.Len(t, result.Successes, 2)
	assert.Equal(t, 1, result.Successes[0].CycleNumber)
	assert.Equal(t, 3, result.Successes[1].CycleNumber)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, 2, result.Failures[0].CycleNumber)

	var backendErr *BackendError
	require.ErrorAs(t, result.Failures[0].Err, &backendErr)
	assert.Equal(t, "boom", backendErr.Body)

	assert.True(t, client.SubmitBatch(context.Background(), nil).OK())
}

func TestToRowKeepsRemarksPunctuation(t *testing.T) {
	v := checklist.OPRPCCP
	items := v.NewItems()
	items[0].Status = checklist.StatusOkay
	items[1].Status = checklist.StatusNotOkay
	items[1].Remarks = "gap;wide"
	draft := cycle.Draft{CycleNumber: 4, Start: cycle.StartData{Product: "Marie", Executive: "Exec"}, Items: items}
	rec := cycle.NewRecord(v, cycle.Session{TourID: "TOUR-7", Inspector: "QA One"}, draft, time.Now())

	row := toRow(v, rec)
	assert.Equal(t, "Not Okay (gap;wide)", row["cr3c0_fecentre2ndpass"])
	assert.Equal(t, "OK", row["cr3c0_fecentre1stpass"])
	assert.Equal(t, "Not Okay (gap;wide)", rec.StatusByField[checklist.Key{Group: "FE", Label: "Centre 2nd Pass"}])
}

package export

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/sportorg/internal/feed"
	"github.com/roach88/sportorg/internal/ingest"
	"github.com/roach88/sportorg/internal/model"
)

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClassResults(t *testing.T) {
	e := startEngine(t)
	run(t, e, "31", "32")
	h := NewServer(e.Feed(), e, zerolog.Nop()).Handler()

	rec := do(t, h, http.MethodGet, "/classes/M21/results", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var snap feed.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, "M21", snap.ClassID)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, model.StatusFinished, snap.Entries[0].Status)
	assert.Equal(t, 30*time.Second, snap.Entries[0].Result)
	assert.Equal(t, 1, snap.Entries[0].Place)

	rec = do(t, h, http.MethodGet, "/classes/W99/results", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/classes", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"classes":["M21"]}`, rec.Body.String())
}

func TestHealth(t *testing.T) {
	e := startEngine(t)
	h := NewServer(e.Feed(), e, zerolog.Nop()).Handler()

	rec := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","version":"`+model.EngineVersion+`"}`, rec.Body.String())
}

func TestSetAndClearStatus(t *testing.T) {
	e := startEngine(t)
	h := NewServer(e.Feed(), e, zerolog.Nop()).Handler()

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"missing reason", "/competitors/C1/status", `{"status":"disqualified"}`, http.StatusBadRequest},
		{"unknown status", "/competitors/C1/status", `{"status":"lost","reason":"x"}`, http.StatusBadRequest},
		{"non-terminal status", "/competitors/C1/status", `{"status":"in_progress","reason":"x"}`, http.StatusConflict},
		{"finished without finish punch", "/competitors/C1/status", `{"status":"finished","reason":"x"}`, http.StatusConflict},
		{"unknown competitor", "/competitors/C9/status", `{"status":"disqualified","reason":"x"}`, http.StatusNotFound},
		{"disqualify", "/competitors/C1/status", `{"status":"disqualified","reason":"cut the course"}`, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, rec.Code, rec.Body.String())
		})
	}

	outcome, err := e.Outcome(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusDisqualified, outcome.Status)

	rec := do(t, h, http.MethodDelete, "/competitors/C1/status", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	outcome, err = e.Outcome(context.Background(), "C1")
	require.NoError(t, err)
	assert.Equal(t, model.StatusNotStarted, outcome.Status)

	rec = do(t, h, http.MethodDelete, "/competitors/C9/status", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReviewQueue(t *testing.T) {
	e := startEngine(t)
	h := NewServer(e.Feed(), e, zerolog.Nop()).Handler()

	rec := do(t, h, http.MethodGet, "/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"items":[]}`, rec.Body.String())

	require.Error(t, e.Ingest(ingest.RawPunch{Source: "r1", Card: "", Code: "31", Time: "1000"}))
	require.NoError(t, e.Flush(context.Background()))

	rec = do(t, h, http.MethodGet, "/review", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Items []model.ReviewItem `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, model.ReviewMalformed, body.Items[0].Kind)
}

func TestCORSPreflight(t *testing.T) {
	e := startEngine(t)
	h := NewServer(e.Feed(), e, zerolog.Nop()).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/competitors/C1/status", nil)
	req.Header.Set("Origin", "http://results.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestLiveStreamsSnapshots(t *testing.T) {
	e := startEngine(t)
	srv := httptest.NewServer(NewServer(e.Feed(), e, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/classes/M21/live"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	read := func() feed.Snapshot {
		t.Helper()
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		var snap feed.Snapshot
		require.NoError(t, conn.ReadJSON(&snap))
		return snap
	}

	first := read()
	assert.Equal(t, "M21", first.ClassID)
	require.Len(t, first.Entries, 1)
	assert.Equal(t, model.StatusNotStarted, first.Entries[0].Status)

	run(t, e, "31", "32")

	// Intermediate rankings may be coalesced; wait for the finished one.
	deadline := time.Now().Add(5 * time.Second)
	last := first
	for time.Now().Before(deadline) {
		snap := read()
		assert.Greater(t, snap.Version, last.Version)
		last = snap
		if snap.Entries[0].Status == model.StatusFinished {
			break
		}
	}
	assert.Equal(t, model.StatusFinished, last.Entries[0].Status)
}

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"lasso-go/internal/database"
	"lasso-go/internal/lasso"
	"lasso-go/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

var testStimulus = lasso.Stimulus{Points: []lasso.Point{{X: 10, Y: 10}, {X: 20, Y: 10}, {X: 10, Y: 20}, {X: 20, Y: 20}}}

type countingStore struct {
	mu sync.Mutex
	n  int
}

func (s *countingStore) Save(_ context.Context, participantID string, _ lasso.Result) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	return fmt.Sprintf("%s-%d", participantID, s.n), nil
}

// as pins every request to one participant, standing in for the session middleware.
func as(participantID string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(ParticipantIDKey, participantID)
		c.Set(CSRFTokenKey, "token")
		c.Set(CSPNonceKey, "nonce")
		c.Next()
	}
}

func setupTrialRouter(t *testing.T) *gin.Engine {
	t.Helper()
	log := zaptest.NewLogger(t)
	svc := services.NewTrialService(log, testStimulus, &countingStore{}, services.TrialOptions{
		CanvasWidth:  800,
		CanvasHeight: 500,
		MaxOpen:      4,
	})
	t.Cleanup(svc.Close)

	h := NewTrialHandler(log, svc, testStimulus, 800, 500)
	r := gin.New()
	r.Use(as("p1"))
	r.GET("/", h.ShowPage)
	r.GET("/stimulus.json", h.Stimulus)
	r.POST("/trial/begin", h.Begin)
	r.POST("/trial/events", h.Events)
	r.POST("/trial/retry", h.Retry)
	r.GET("/trial/status", h.Status)
	r.GET("/trial/snapshot.png", h.Snapshot)
	r.DELETE("/trial", h.Abandon)
	return r
}

func do(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeStatus(t *testing.T, w *httptest.ResponseRecorder) services.Status {
	t.Helper()
	var st services.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	return st
}

func square(seq uint64, offsetX, offsetY, x0, y0, x1, y1 float64) eventsRequest {
	ev := func(typ lasso.EventType, x, y float64) lasso.Event {
		return lasso.Event{Type: typ, X: x + offsetX, Y: y + offsetY}
	}
	return eventsRequest{Seq: seq, Events: []lasso.Event{
		ev(lasso.PointerDown, x0, y0),
		ev(lasso.PointerMove, x1, y0),
		ev(lasso.PointerMove, x1, y1),
		ev(lasso.PointerMove, x0, y1),
		ev(lasso.PointerUp, x0, y0+0.5),
	}}
}

func TestShowPage(t *testing.T) {
	r := setupTrialRouter(t)
	w := do(r, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `id="clustering-demo"`)
	assert.Contains(t, w.Body.String(), `data-width="800"`)
	assert.Contains(t, w.Body.String(), `content="token"`)
}

func TestStimulus(t *testing.T) {
	r := setupTrialRouter(t)
	w := do(r, http.MethodGet, "/stimulus.json", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var got lasso.Stimulus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, testStimulus, got)
}

func TestTrialFlow(t *testing.T) {
	r := setupTrialRouter(t)

	w := do(r, http.MethodGet, "/trial/status", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/trial/begin", beginRequest{Timestamp: 100, OffsetX: 40, OffsetY: 60})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "in_progress", decodeStatus(t, w).Phase)

	w = do(r, http.MethodPost, "/trial/retry", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	// One region around everything must be retried.
	w = do(r, http.MethodPost, "/trial/events", square(1, 40, 60, 0, 0, 30, 30))
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, w)
	assert.True(t, st.RetryNeeded)
	assert.Equal(t, 1, st.Attempts)

	w = do(r, http.MethodPost, "/trial/retry", beginRequest{Timestamp: 500})
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodPost, "/trial/events", square(2, 40, 60, 5, 5, 25, 15))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []bool{true, true, false, false}, decodeStatus(t, w).Covered)

	w = do(r, http.MethodPost, "/trial/events", square(3, 40, 60, 5, 16, 25, 25))
	require.Equal(t, http.StatusOK, w.Code)
	st = decodeStatus(t, w)
	assert.Equal(t, "complete", st.Phase)
	assert.Equal(t, "p1-1", st.ResultID)
	require.NotNil(t, st.Result)
	assert.Equal(t, 2, st.Result.NumberOfTries)
	assert.Len(t, st.Result.Clusters, 2)
}

func TestEventsRejectsBadInput(t *testing.T) {
	r := setupTrialRouter(t)

	w := do(r, http.MethodPost, "/trial/events", square(1, 0, 0, 5, 5, 25, 15))
	assert.Equal(t, http.StatusNotFound, w.Code, "events before begin")

	do(r, http.MethodPost, "/trial/begin", beginRequest{})

	req := httptest.NewRequest(http.MethodPost, "/trial/events", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = do(r, http.MethodPost, "/trial/events", eventsRequest{Seq: 1, Events: []lasso.Event{{Type: "click"}}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/trial/events", eventsRequest{Events: []lasso.Event{{Type: lasso.PointerDown}}})
	assert.Equal(t, http.StatusBadRequest, w.Code, "batches must be numbered")
}

func TestEventsOutOfOrder(t *testing.T) {
	r := setupTrialRouter(t)
	do(r, http.MethodPost, "/trial/begin", beginRequest{})

	first := square(1, 0, 0, 5, 5, 25, 15)
	tail := eventsRequest{Seq: 2, Events: first.Events[3:]}
	first.Events = first.Events[:3]

	w := do(r, http.MethodPost, "/trial/events", tail)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, decodeStatus(t, w).Regions)

	w = do(r, http.MethodPost, "/trial/events", first)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeStatus(t, w).Regions)

	w = do(r, http.MethodPost, "/trial/events", first)
	assert.Equal(t, http.StatusConflict, w.Code, "a replayed batch is stale")

	w = do(r, http.MethodPost, "/trial/events", square(3, 0, 0, 5, 16, 25, 25))
	require.Equal(t, http.StatusOK, w.Code)
	st := decodeStatus(t, w)
	assert.Equal(t, "complete", st.Phase)
	assert.Equal(t, 1, st.Result.NumberOfTries)
}

func TestSnapshotAndAbandon(t *testing.T) {
	r := setupTrialRouter(t)

	w := do(r, http.MethodGet, "/trial/snapshot.png", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Empty(t, w.Header().Get("Cache-Control"))

	do(r, http.MethodPost, "/trial/begin", beginRequest{})

	w = do(r, http.MethodGet, "/trial/snapshot.png", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = do(r, http.MethodDelete, "/trial", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodDelete, "/trial", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func setupDB(t *testing.T) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))

	prev := database.DB
	database.DB = db
	t.Cleanup(func() {
		database.DB = prev
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
}

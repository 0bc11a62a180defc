package status

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vishalnemlekar/instabot/services/syncer"
	"github.com/vishalnemlekar/instabot/services/worker"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type staticSource struct {
	snap worker.Snapshot
}

func (s staticSource) Snapshot() worker.Snapshot { return s.snap }

func get(t *testing.T, router *gin.Engine, path string) *httptest.ResponseRecorder {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, path, nil)
	require.NoError(t, err)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthz(t *testing.T) {
	router := NewRouter(staticSource{}, false)

	w := get(t, router, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestStatusBeforeFirstPass(t *testing.T) {
	router := NewRouter(staticSource{}, false)

	w := get(t, router, "/status")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestStatusReportsLastPass(t *testing.T) {
	last := &worker.PassStats{
		RunID:     "run-1",
		StartedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Parents:   []worker.ParentStats{{URL: "https://a", Rows: 12}},
		Sync:      syncer.Summary{New: 10, Changed: 2, Written: 12},
	}
	router := NewRouter(staticSource{snap: worker.Snapshot{Passes: 3, Last: last}}, false)

	w := get(t, router, "/status")
	require.Equal(t, http.StatusOK, w.Code)

	var got worker.Snapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, 3, got.Passes)
	require.NotNil(t, got.Last)
	assert.Equal(t, "run-1", got.Last.RunID)
	assert.Equal(t, 12, got.Last.Sync.Written)
	require.Len(t, got.Last.Parents, 1)
	assert.Equal(t, "https://a", got.Last.Parents[0].URL)
}

func TestUnknownRoute(t *testing.T) {
	router := NewRouter(staticSource{}, false)
	assert.Equal(t, http.StatusNotFound, get(t, router, "/nope").Code)
}

package ui

import (
	"io/fs"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDistFS_HasDashboard(t *testing.T) {
	sub, err := DistFS()
	require.NoError(t, err)

	for _, name := range []string{"index.html", "app.js", "app.css"} {
		_, err := fs.Stat(sub, name)
		assert.NoError(t, err, name)
	}
}

func serve(t *testing.T, target string) *httptest.ResponseRecorder {
	t.Helper()
	h, err := Handler()
	require.NoError(t, err)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, target, nil))
	return w
}

func TestHandler_Index(t *testing.T) {
	w := serve(t, "/")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>pomo</title>")
}

func TestHandler_Asset(t *testing.T) {
	w := serve(t, "/app.js")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "EventSource")
}

func TestHandler_ClientRouteFallsBackToIndex(t *testing.T) {
	w := serve(t, "/focus")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "<title>pomo</title>")
}

func TestHandler_MissingAsset(t *testing.T) {
	w := serve(t, "/missing.png")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_APIPathsNotServed(t *testing.T) {
	w := serve(t, "/api/v1/unknown")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

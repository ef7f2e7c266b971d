package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rumor-ml/commons.systems/finreport/internal/logger"
)

func TestCORS(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusTeapot)
	})
	h := CORS("https://app.example.com")(next)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/categories", nil))
	assert.True(t, called)
	assert.Equal(t, http.StatusTeapot, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", w.Header().Get("Vary"))

	called = false
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/api/periods", nil))
	assert.False(t, called, "preflight is answered by the middleware")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORS_Wildcard(t *testing.T) {
	w := httptest.NewRecorder()
	CORS("*")(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Vary"))
}

func TestRequestLogger_HandlerLogs(t *testing.T) {
	var buf bytes.Buffer
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.FromContext(r.Context()).Debug().Msg("handler ran")
		w.WriteHeader(http.StatusInternalServerError)
	})

	w := httptest.NewRecorder()
	RequestLogger(logger.NewWithWriter(&buf))(next).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/imports", nil))

	out := buf.String()
	assert.Contains(t, out, `"message":"handler ran"`)
	assert.Contains(t, out, `"path":"/api/imports"`)
	assert.Contains(t, out, `"status":500`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"request_id"`)
}

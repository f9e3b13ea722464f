package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"whatshook/internal/tracing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLogger() (*logrus.Logger, *testHook) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	hook := &testHook{}
	logger.AddHook(hook)
	return logger, hook
}

type testHook struct {
	entries []*logrus.Entry
}

func (h *testHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *testHook) Fire(e *logrus.Entry) error {
	h.entries = append(h.entries, e)
	return nil
}

func TestObservabilityPropagatesRequestID(t *testing.T) {
	logger, _ := newTestLogger()
var gotRequestID string
	handler := Observability(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRequestID = tracing.GetRequestID(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	assert.NotEmpty(t, gotRequestID)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestObservabilityLogsCompletionWithStatus(t *testing.T) {
	logger, hook := newTestLogger()
handler := Observability(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":"bad"}`))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/reply", nil))

	require.Len(t, hook.entries, 2)
	completion := hook.entries[1]
	assert.Equal(t, logrus.WarnLevel, completion.Level)
	assert.Equal(t, http.StatusBadRequest, completion.Data["status_code"])
	assert.Equal(t, int64(15), completion.Data["size_bytes"])
}

func TestObservabilityDefaultsToOK(t *testing.T) {
	logger, hook := newTestLogger()
handler := Observability(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	require.Len(t, hook.entries, 2)
	assert.Equal(t, http.StatusOK, hook.entries[1].Data["status_code"])
	assert.Equal(t, logrus.InfoLevel, hook.entries[1].Level)
}

func TestObservabilityServerErrorLogsError(t *testing.T) {
	logger, hook := newTestLogger()
handler := Observability(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("POST", "/reply", nil))

	require.Len(t, hook.entries, 2)
	assert.Equal(t, logrus.ErrorLevel, hook.entries[1].Level)
}

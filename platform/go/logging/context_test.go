package logging

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

func TestFromRequestFallsBackWithoutMiddleware(t *testing.T) {
	t.Parallel()

	fallback := zap.NewNop()
	r := httptest.NewRequest(http.MethodGet, "/tenants", nil)

	require.Same(t, fallback, FromRequest(r, fallback))
}

func TestRequestLoggerAttachesScopedLogger(t *testing.T) {
	t.Parallel()

	base := zaptest.NewLogger(t)
	fallback := zap.NewNop()

	var scoped *zap.Logger
	h := RequestLogger(base)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		scoped = FromRequest(r, fallback)
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tenants", nil))

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, scoped)
	require.NotSame(t, fallback, scoped)
}

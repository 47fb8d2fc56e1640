package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/keydesk/keydesk/internal/logging"
)

func TestValidateIdempotencyKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		key  string
		want error
	}{
		{"", nil},
		{"6f1c2a4e-0d7b-4a43-9a53-1f0e0c8b2a11", nil},
		{"01J0ZQ6S8D8YV1W0R2ZQ6S8D8Y", nil},
		{"retry:create.1", nil},
		{"has space", ErrIdempotencyKeyInvalid},
		{"new\nline", ErrIdempotencyKeyInvalid},
		{strings.Repeat("a", MaxIdempotencyKeyLength+1), ErrIdempotencyKeyTooLong},
	}

	for _, tt := range tests {
		assert.ErrorIs(t, ValidateIdempotencyKey(tt.key), tt.want, "key %q", tt.key)
		if tt.want == nil {
			assert.NoError(t, ValidateIdempotencyKey(tt.key))
		}
	}
}

func TestValidatePathID(t *testing.T) {
	t.Parallel()

	for _, ok := range []string{"sp-7", "app_1", "01J0ZQ6S8D8YV1W0R2ZQ6S8D8Y"} {
		assert.NoError(t, ValidatePathID(ok), ok)
	}
	for _, bad := range []string{"", "../etc", "a b", strings.Repeat("x", MaxPathIDLength+1)} {
		assert.ErrorIs(t, ValidatePathID(bad), ErrPathIDInvalid, bad)
	}
}

func TestRequireIdempotencyKeyFormat(t *testing.T) {
	t.Parallel()

	handler := RequireIdempotencyKeyFormat(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyKeyHeader, "bad key")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_IDEMPOTENCY_KEY")

	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set(IdempotencyKeyHeader, "create-1")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestValidatePathIDs(t *testing.T) {
	t.Parallel()

	r := chi.NewRouter()
	r.With(ValidatePathIDs("spaceID")).Get("/spaces/{spaceID}", okHandler().ServeHTTP)

	tests := []struct {
		path string
		want int
	}{
		{"/spaces/sp-7", http.StatusOK},
		{"/spaces/sp%207", http.StatusNotFound},
		{"/spaces/" + strings.Repeat("x", MaxPathIDLength+1), http.StatusNotFound},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		assert.Equal(t, tt.want, rec.Code, tt.path)
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()

	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "req-abc")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "req-abc", seen)
	assert.Equal(t, "req-abc", rec.Header().Get(RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "bad id\twith tabs")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Len(t, seen, 36, "untrusted ids are replaced with a UUID")
	assert.Equal(t, seen, rec.Header().Get(RequestIDHeader))
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	handler := Recoverer(logging.Discard())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":{"code":"INTERNAL_ERROR","message":"An unexpected error occurred"}}`, rec.Body.String())
}

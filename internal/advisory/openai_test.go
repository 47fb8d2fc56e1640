package advisory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keydesk/keydesk/internal/config"
	"github.com/keydesk/keydesk/internal/model"
)

func newOpenAI(url string) *OpenAIProvider {
	return NewOpenAIProvider(config.AdvisoryConfig{
		Provider: config.AdvisoryOpenAI,
		BaseURL:  url + "/v1/",
		APIKey:   "sk-test",
		Model:    "gpt-test",
	}, nil)
}

func TestOpenAIProvider_Advise(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Restrict by IP."}}]}`))
	}))
	defer srv.Close()

	text, err := newOpenAI(srv.URL).Advise(context.Background(), AdviceRequest{
		Name:        "svc-sync",
		Scopes:      []model.Scope{model.ScopeWrite},
		Environment: "production",
	})
	require.NoError(t, err)
	assert.Equal(t, "Restrict by IP.", text)

	assert.Equal(t, "gpt-test", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "svc-sync")
}

func TestOpenAIProvider_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			wantErr: ErrProviderUnavailable,
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{not json`))
			},
			wantErr: ErrInvalidResponse,
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantErr: ErrInvalidResponse,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			_, err := newOpenAI(srv.URL).Advise(context.Background(), AdviceRequest{Name: "x"})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestOpenAIProvider_Timeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := newOpenAI(srv.URL).Advise(ctx, AdviceRequest{Name: "x"})
	assert.ErrorIs(t, err, ErrInferenceTimeout)
}

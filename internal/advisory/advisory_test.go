package advisory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keydesk/keydesk/internal/config"
	"github.com/keydesk/keydesk/internal/model"
)

func TestTrim(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("word ", 55)
	assert.Len(t, strings.Fields(Trim(long)), MaxWords)

	assert.Equal(t, "Use IP whitelisting.", Trim("  \"Use   IP\n whitelisting.\"  "))
	assert.Equal(t, "", Trim("   "))
	assert.Equal(t, "", Trim(`""`))
}

func TestDigest(t *testing.T) {
	t.Parallel()

	a := AdviceRequest{Name: "svc-sync", Scopes: []model.Scope{model.ScopeWrite, model.ScopeRead}, Environment: "Production"}
	b := AdviceRequest{Name: " svc-sync ", Scopes: []model.Scope{model.ScopeRead, model.ScopeWrite, model.ScopeRead}, Environment: "production"}
	assert.Equal(t, a.Digest("rules"), b.Digest("rules"))
	assert.NotEqual(t, a.Digest("rules"), a.Digest("openai"), "providers do not share cache entries")

	c := a
	c.Scopes = []model.Scope{model.ScopeRead}
	assert.NotEqual(t, a.Digest("rules"), c.Digest("rules"))
}

func TestRulesProvider(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	p := NewRulesProvider()

	tests := []struct {
		name     string
		req      AdviceRequest
		contains []string
		excludes []string
	}{
		{
			name:     "admin in production",
			req:      AdviceRequest{Name: "ops", Scopes: []model.Scope{model.ScopeAdmin}, Environment: "production"},
			contains: []string{"entire account", "IP whitelisting", "Rotate"},
		},
		{
			name:     "write in staging",
			req:      AdviceRequest{Name: "etl", Scopes: []model.Scope{model.ScopeRead, model.ScopeWrite}, Environment: "staging"},
			contains: []string{"write access"},
			excludes: []string{"IP whitelisting", "entire account"},
		},
		{
			name:     "read only",
			req:      AdviceRequest{Name: "bi", Scopes: []model.Scope{model.ScopeRead}},
			contains: []string{"least privilege"},
		},
		{
			name:     "no scopes",
			req:      AdviceRequest{Name: "old"},
			contains: []string{"still needed"},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Advise(ctx, tt.req)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(strings.Fields(got)), MaxWords)
			for _, s := range tt.contains {
				assert.Contains(t, got, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, got, s)
			}

			again, _ := p.Advise(ctx, tt.req)
			assert.Equal(t, got, again, "rules are deterministic")
		})
	}
}

func TestPrompt(t *testing.T) {
	t.Parallel()

	prompt := Prompt(AdviceRequest{Name: "svc-sync", Scopes: []model.Scope{model.ScopeRead, model.ScopeAdmin}, Environment: "prod"})
	assert.Contains(t, prompt, `"svc-sync"`)
	assert.Contains(t, prompt, "[read, admin]")
	assert.Contains(t, prompt, "max 40 words")
	assert.Contains(t, prompt, "least privilege")
	assert.Contains(t, prompt, "IP whitelisting")
	assert.Contains(t, prompt, "account-wide")

	plain := Prompt(AdviceRequest{Name: "bi"})
	assert.Contains(t, plain, "[none]")
	assert.Contains(t, plain, "unspecified environment")
	assert.NotContains(t, plain, "IP whitelisting")
	assert.NotContains(t, plain, "account-wide")
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	p, err := NewProvider(config.AdvisoryConfig{Provider: config.AdvisoryRules}, nil)
	require.NoError(t, err)
	assert.Equal(t, "rules", p.Name())

	p, err = NewProvider(config.AdvisoryConfig{Provider: config.AdvisoryOpenAI, BaseURL: "http://x", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())

	_, err = NewProvider(config.AdvisoryConfig{Provider: "gemini"}, nil)
	assert.Error(t, err)
}

package advisory

import (
	"context"
	"strings"

	"github.com/keydesk/keydesk/internal/model"
)

// RulesProvider derives advice from the request without any network call.
type RulesProvider struct{}

func NewRulesProvider() *RulesProvider {
	return &RulesProvider{}
}

func (p *RulesProvider) Name() string { return "rules" }

func (p *RulesProvider) Advise(_ context.Context, req AdviceRequest) (string, error) {
	var parts []string

	switch {
	case req.HasScope(model.ScopeAdmin):
		parts = append(parts, "Admin scope affects the entire account; grant it only to trusted automation and prefer narrower scopes.")
	case req.HasScope(model.ScopeWrite):
		parts = append(parts, "Limit write access to the services that need it.")
	case len(req.Scopes) == 0:
		parts = append(parts, "No scopes are granted; confirm this key is still needed.")
	default:
		parts = append(parts, "Read-only access follows least privilege.")
	}

	if req.IsProduction() {
		parts = append(parts, "Enable IP whitelisting for production traffic.")
	}

	parts = append(parts, "Rotate the key on a regular schedule.")
	return strings.Join(parts, " "), nil
}

var _ Advisor = (*RulesProvider)(nil)

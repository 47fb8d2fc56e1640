package advisory

import (
	"fmt"
	"net/http"

	"github.com/keydesk/keydesk/internal/config"
)

// NewProvider constructs the advisory provider selected by config.
// Called once at server startup.
func NewProvider(cfg config.AdvisoryConfig, client *http.Client) (Advisor, error) {
	switch cfg.Provider {
	case config.AdvisoryRules, "":
		return NewRulesProvider(), nil
	case config.AdvisoryOpenAI:
		return NewOpenAIProvider(cfg, client), nil
	default:
		return nil, fmt.Errorf("unknown advisory provider %q: must be one of rules, openai", cfg.Provider)
	}
}

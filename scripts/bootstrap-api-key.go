package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/keydesk/keydesk/internal/auth"
	"github.com/keydesk/keydesk/internal/directory"
	"github.com/keydesk/keydesk/internal/logging"
	"github.com/keydesk/keydesk/internal/model"
	"github.com/keydesk/keydesk/internal/repository"
	"github.com/keydesk/keydesk/internal/service"
)

type output struct {
	KeyID     string   `json:"key_id"`
	SpaceID   string   `json:"space_id"`
	Key       string   `json:"key"`
	KeyPrefix string   `json:"key_prefix"`
	Scopes    []string `json:"scopes"`
	ExpiresAt string   `json:"expires_at,omitempty"`
}

func main() {
	var (
		databaseURL   = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		catalogFile   = flag.String("catalog", os.Getenv("CATALOG_FILE"), "Space catalog YAML; empty uses the built-in seed")
		spaceID       = flag.String("space", "", "Space ID the key belongs to")
		principalID   = flag.String("principal-id", "system", "Acting principal recorded as creator and owner")
		principalName = flag.String("principal-name", "bootstrap", "Display name of the acting principal")
		name          = flag.String("name", "bootstrap", "API key name")
		scopesInput   = flag.String("scopes", "admin", "Comma-separated scopes (read,write,admin)")
		expiresInDays = flag.Int("expires-in-days", 0, "Days until expiry; 0 creates a permanent key")
		tag           = flag.String("tag", "", "Prefix tag for the key; empty uses dp_")
		format        = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is required")
		os.Exit(1)
	}
	if *spaceID == "" {
		fmt.Fprintln(os.Stderr, "-space is required")
		os.Exit(1)
	}

	scopes, err := parseScopes(*scopesInput)
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "connect database:", err)
		os.Exit(1)
	}
	defer repo.Close()

	catalog, err := directory.Load(*catalogFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load catalog:", err)
		os.Exit(1)
	}

	gen, err := auth.NewGenerator("dp_")
	if err != nil {
		fmt.Fprintln(os.Stderr, "key generator:", err)
		os.Exit(1)
	}

	svc := service.NewKeyService(service.KeyServiceDeps{
		Store:     repo,
		Catalog:   catalog,
		Generator: gen,
		Logger:    logging.Discard(),
	})

	input := service.CreateInput{
		SpaceID:  *spaceID,
		Name:     *name,
		AuthMode: service.AuthModeAll,
		Scopes:   scopes,
		Seed:     *tag,
	}
	if *expiresInDays > 0 {
		input.ExpiryMode = service.ExpirySpecified
		input.ExpiresInDays = *expiresInDays
	}

	result, err := svc.Create(ctx, model.Principal{ID: *principalID, Name: *principalName}, input)
	if err != nil {
		fmt.Fprintln(os.Stderr, "create api key:", err)
		os.Exit(1)
	}

	out := output{
		KeyID:     result.Key.ID,
		SpaceID:   result.Key.SpaceID,
		Key:       result.Secret,
		KeyPrefix: auth.MaskPrefix(result.Key.Prefix),
		Scopes:    make([]string, 0, len(result.Key.Scopes)),
	}
	if result.Key.ExpiresAt != nil {
		out.ExpiresAt = result.Key.ExpiresAt.Format(time.RFC3339)
	}
	for _, s := range result.Key.Scopes {
		out.Scopes = append(out.Scopes, string(s))
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain or json")
		os.Exit(1)
	}
}

func parseScopes(input string) ([]model.Scope, error) {
	var scopes []model.Scope
	for _, part := range strings.Split(input, ",") {
		scope := model.Scope(strings.TrimSpace(part))
		if scope == "" {
			continue
		}
		if !scope.IsValid() {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = []model.Scope{model.ScopeAdmin}
	}
	return scopes, nil
}

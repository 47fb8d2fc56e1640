package auth

import (
	"context"
	"testing"

	"github.com/keydesk/keydesk/internal/model"
)

func TestPrincipalContext(t *testing.T) {
	t.Parallel()

	if _, ok := PrincipalFromContext(context.Background()); ok {
		t.Error("empty context should carry no principal")
	}

	want := model.Principal{ID: "u-1", Name: "Ana"}
	ctx := ContextWithPrincipal(context.Background(), want)

	got, ok := PrincipalFromContext(ctx)
	if !ok || got != want {
		t.Errorf("PrincipalFromContext = %+v, %v", got, ok)
	}
	if MustPrincipalFromContext(ctx) != want {
		t.Error("MustPrincipalFromContext mismatch")
	}
}

func TestMustPrincipalFromContext_Panics(t *testing.T) {
	t.Parallel()

	defer func() {
		if recover() == nil {
			t.Error("expected panic without principal")
		}
	}()
	MustPrincipalFromContext(context.Background())
}

func TestVerifiedKeyContext(t *testing.T) {
	t.Parallel()

	if VerifiedKeyFromContext(context.Background()) != nil {
		t.Error("empty context should carry no key")
	}

	key := &model.APIKey{ID: "k-1"}
	ctx := ContextWithVerifiedKey(context.Background(), key)
	if got := VerifiedKeyFromContext(ctx); got != key {
		t.Errorf("VerifiedKeyFromContext = %v, want %v", got, key)
	}
}

package validity

import (
	"testing"
	"time"

	"github.com/keydesk/keydesk/internal/clock"
	"github.com/keydesk/keydesk/internal/model"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		ts := now.Add(d)
		return &ts
	}

	tests := []struct {
		name      string
		status    model.KeyStatus
		expiresAt *time.Time
		want      Validity
		display   model.KeyStatus
	}{
		{
			name:    "permanent active",
			status:  model.KeyStatusActive,
			want:    Validity{State: StatePermanent, Label: "active, permanent", Editable: true},
			display: model.KeyStatusActive,
		},
		{
			name:      "expiring in five days",
			status:    model.KeyStatusActive,
			expiresAt: at(5 * clock.Day),
			want:      Validity{State: StateActive, Label: "active", RemainingDays: 5, Editable: true},
			display:   model.KeyStatusActive,
		},
		{
			name:      "partial day rounds up",
			status:    model.KeyStatusActive,
			expiresAt: at(36 * time.Hour),
			want:      Validity{State: StateActive, Label: "active", RemainingDays: 2, Editable: true},
			display:   model.KeyStatusActive,
		},
		{
			name:      "expires exactly now is still active",
			status:    model.KeyStatusActive,
			expiresAt: at(0),
			want:      Validity{State: StateActive, Label: "active", RemainingDays: 0, Editable: true},
			display:   model.KeyStatusActive,
		},
		{
			name:      "expired",
			status:    model.KeyStatusActive,
			expiresAt: at(-time.Second),
			want:      Validity{State: StateExpired, Label: "expired"},
			display:   model.KeyStatusExpired,
		},
		{
			name:      "revoked with future expiry",
			status:    model.KeyStatusRevoked,
			expiresAt: at(10 * clock.Day),
			want:      Validity{State: StateRevoked, Label: "revoked"},
			display:   model.KeyStatusRevoked,
		},
		{
			name:      "revoked and expired",
			status:    model.KeyStatusRevoked,
			expiresAt: at(-10 * clock.Day),
			want:      Validity{State: StateRevoked, Label: "revoked"},
			display:   model.KeyStatusRevoked,
		},
		{
			name:    "revoked permanent",
			status:  model.KeyStatusRevoked,
			want:    Validity{State: StateRevoked, Label: "revoked"},
			display: model.KeyStatusRevoked,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			key := &model.APIKey{Status: tt.status, ExpiresAt: tt.expiresAt}
			got := Classify(key, now)
			if got != tt.want {
				t.Errorf("Classify() = %+v, want %+v", got, tt.want)
			}
			if ds := got.DisplayStatus(); ds != tt.display {
				t.Errorf("DisplayStatus() = %s, want %s", ds, tt.display)
			}
		})
	}
}

func TestClassify_EditableImpliesUsable(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-clock.Day)
	future := now.Add(clock.Day)

	for _, status := range []model.KeyStatus{model.KeyStatusActive, model.KeyStatusRevoked} {
		for _, exp := range []*time.Time{nil, &past, &future} {
			v := Classify(&model.APIKey{Status: status, ExpiresAt: exp}, now)
			if v.Editable != v.IsUsable() {
				t.Errorf("status=%s exp=%v: editable=%v usable=%v", status, exp, v.Editable, v.IsUsable())
			}
			if status == model.KeyStatusRevoked && v.Editable {
				t.Errorf("revoked key must never be editable")
			}
		}
	}
}

func TestClassify_DoesNotMutateKey(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-clock.Day)
	key := &model.APIKey{Status: model.KeyStatusActive, ExpiresAt: &past}

	_ = Classify(key, now)

	if key.Status != model.KeyStatusActive {
		t.Errorf("Classify persisted derived status %s", key.Status)
	}
}

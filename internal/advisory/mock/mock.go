package mock

import (
	"context"

	"github.com/keydesk/keydesk/internal/advisory"
)

// MockProvider satisfies advisory.Advisor for testing.
type MockProvider struct {
	Name_      string
	AdviseFunc func(ctx context.Context, req advisory.AdviceRequest) (string, error)
}

func (m *MockProvider) Name() string { return m.Name_ }

func (m *MockProvider) Advise(ctx context.Context, req advisory.AdviceRequest) (string, error) {
	if m.AdviseFunc != nil {
		return m.AdviseFunc(ctx, req)
	}
	return "", nil
}

// NewMockProvider returns a MockProvider that answers with text.
func NewMockProvider(text string) *MockProvider {
	return &MockProvider{
		Name_: "mock",
		AdviseFunc: func(_ context.Context, _ advisory.AdviceRequest) (string, error) {
			return text, nil
		},
	}
}

// NewFailingProvider returns a MockProvider that always returns the given error.
func NewFailingProvider(err error) *MockProvider {
	return &MockProvider{
		Name_: "mock-failing",
		AdviseFunc: func(_ context.Context, _ advisory.AdviceRequest) (string, error) {
			return "", err
		},
	}
}

// NewTimeoutProvider returns a MockProvider that blocks until context is cancelled.
func NewTimeoutProvider() *MockProvider {
	return &MockProvider{
		Name_: "mock-timeout",
		AdviseFunc: func(ctx context.Context, _ advisory.AdviceRequest) (string, error) {
			<-ctx.Done()
			return "", advisory.ErrInferenceTimeout
		},
	}
}

// Compile-time check that MockProvider implements Advisor.
var _ advisory.Advisor = (*MockProvider)(nil)

package advisory

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/keydesk/keydesk/internal/metrics"
)

// AdviceCache stores generated advice by request digest.
type AdviceCache interface {
	GetAdvice(ctx context.Context, digest string) (string, error)
	SetAdvice(ctx context.Context, digest, text string) error
}

// Service wraps a provider with caching, trimming and fallbacks.
type Service struct {
	provider Advisor
	cache    AdviceCache
	metrics  metrics.Recorder
	logger   *slog.Logger
	timeout  time.Duration
}

// NewService creates a Service. cache may be nil.
func NewService(provider Advisor, cache AdviceCache, rec metrics.Recorder, logger *slog.Logger, timeout time.Duration) *Service {
	if rec == nil {
		rec = metrics.NewNoop()
	}
	return &Service{
		provider: provider,
		cache:    cache,
		metrics:  rec,
		logger:   logger,
		timeout:  timeout,
	}
}

// Provider returns the name of the underlying provider.
func (s *Service) Provider() string {
	return s.provider.Name()
}

// Advise returns advice for req. It never fails: provider errors and
// timeouts yield FallbackOnError, empty answers yield FallbackOnEmpty.
func (s *Service) Advise(ctx context.Context, req AdviceRequest) string {
	digest := req.Digest(s.provider.Name())

	if s.cache != nil {
		if text, err := s.cache.GetAdvice(ctx, digest); err == nil && text != "" {
			s.metrics.IncAdvisory(metrics.AdvisoryCached)
			return text
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.provider.Advise(callCtx, req)
	if err != nil {
		s.logger.Warn("advisory provider failed",
			"provider", s.provider.Name(),
			"error", err,
		)
		s.metrics.IncAdvisory(metrics.AdvisoryFallback)
		return FallbackOnError
	}

	text := Trim(raw)
	if text == "" {
		s.metrics.IncAdvisory(metrics.AdvisoryEmpty)
		return FallbackOnEmpty
	}

	if s.cache != nil {
		if err := s.cache.SetAdvice(ctx, digest, text); err != nil {
			s.logger.Warn("failed to cache advice", "error", err)
		}
	}
	s.metrics.IncAdvisory(metrics.AdvisoryProvider)
	return text
}

// Request runs Advise in the background. The returned channel always
// receives exactly one value. The call is detached from ctx cancellation so
// an abandoned caller does not affect the provider request.
func (s *Service) Request(ctx context.Context, req AdviceRequest) <-chan string {
	out := make(chan string, 1)
	detached := context.WithoutCancel(ctx)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("panic in advisory request", "error", fmt.Sprint(r))
				s.metrics.IncAdvisory(metrics.AdvisoryFallback)
				out <- FallbackOnError
			}
		}()
		out <- s.Advise(detached, req)
	}()

	return out
}

package probe

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// StubProber returns canned metadata keyed by media path. Used by tests
// and by wiring that runs without ffprobe installed.
type StubProber struct {
	logger *slog.Logger

	mu      sync.Mutex
	results map[string]Metadata
	errs    map[string]error
	calls   []string
	delay   time.Duration

	inFlight    int
	maxInFlight int
}

func NewStubProber(logger *slog.Logger) *StubProber {
	return &StubProber{
		logger:  logger,
		results: make(map[string]Metadata),
		errs:    make(map[string]error),
	}
}

func (s *StubProber) SetResult(path string, md Metadata) {
	s.mu.Lock()
	s.results[path] = md
	s.mu.Unlock()
}

func (s *StubProber) SetError(path string, err error) {
	s.mu.Lock()
	s.errs[path] = err
	s.mu.Unlock()
}

// SetDelay makes each probe block, so tests can race builds deterministically.
func (s *StubProber) SetDelay(d time.Duration) {
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
}

func (s *StubProber) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}

// MaxInFlight reports the highest number of concurrently outstanding
// probes observed, for asserting the one-handle-at-a-time policy.
func (s *StubProber) MaxInFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxInFlight
}

func (s *StubProber) Probe(ctx context.Context, mediaPath string) (Metadata, error) {
	s.mu.Lock()
	s.calls = append(s.calls, mediaPath)
	s.inFlight++
	if s.inFlight > s.maxInFlight {
		s.maxInFlight = s.inFlight
	}
	delay := s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.inFlight--
		s.mu.Unlock()
	}()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Metadata{}, ctx.Err()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err, ok := s.errs[mediaPath]; ok {
		return Metadata{}, err
	}
	if md, ok := s.results[mediaPath]; ok {
		return md, nil
	}
	return Metadata{}, fmt.Errorf("%w: no stub result for %s", ErrProbe, mediaPath)
}

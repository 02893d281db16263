package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"ragarena/internal/ragengine/obs"
	"ragarena/internal/ragengine/technique"
	"ragarena/internal/ragengine/types"
)

// slowTechnique blocks until released, and tracks peak concurrent
// invocations so the dispatcher's concurrency bound can be verified.
type slowTechnique struct {
	name    string
	release chan struct{}
	current *int64
	peak    *int64
	mu      *sync.Mutex
}

func (s *slowTechnique) Name() string { return s.name }

func (s *slowTechnique) Answer(ctx context.Context, req technique.AnswerRequest) (types.TechniqueResult, error) {
	n := atomic.AddInt64(s.current, 1)
	s.mu.Lock()
	if n > *s.peak {
		*s.peak = n
	}
	s.mu.Unlock()
	<-s.release
	atomic.AddInt64(s.current, -1)
	return types.TechniqueResult{TechniqueName: s.name, Answer: "ok"}, nil
}

func TestDispatcherPreservesRequestOrderRegardlessOfCompletionOrder(t *testing.T) {
	t.Parallel()

	reg := technique.NewRegistry()
	var order []string
	var mu sync.Mutex
	for _, name := range []string{"slow", "fast"} {
		name := name
		reg.Register(name, func(d technique.Deps) (technique.Technique, error) {
			return &orderedFake{name: name, order: &order, mu: &mu, delay: map[string]time.Duration{"slow": 30 * time.Millisecond, "fast": 0}[name]}, nil
		})
	}

	disp := New(reg, technique.Deps{}, 4, nil)
	results, err := disp.Run(context.Background(), Request{
		Query:          "q",
		TechniqueNames: []string{"slow", "fast"},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "slow", results[0].TechniqueName)
	require.Equal(t, "fast", results[1].TechniqueName)
}

type orderedFake struct {
	name  string
	order *[]string
	mu    *sync.Mutex
	delay time.Duration
}

func (o *orderedFake) Name() string { return o.name }
func (o *orderedFake) Answer(ctx context.Context, req technique.AnswerRequest) (types.TechniqueResult, error) {
	time.Sleep(o.delay)
	o.mu.Lock()
	*o.order = append(*o.order, o.name)
	o.mu.Unlock()
	return types.TechniqueResult{TechniqueName: o.name, Answer: "ok"}, nil
}

func TestDispatcherNeverExceedsMaxConcurrency(t *testing.T) {
	t.Parallel()

	reg := technique.NewRegistry()
	var current, peak int64
	var mu sync.Mutex
	release := make(chan struct{})
	names := []string{"a", "b", "c", "d", "e"}
	for _, name := range names {
		reg.Register(name, func(d technique.Deps) (technique.Technique, error) {
			return &slowTechnique{name: name, release: release, current: &current, peak: &peak, mu: &mu}, nil
		})
	}

	disp := New(reg, technique.Deps{}, 2, nil)
	done := make(chan struct{})
	go func() {
		_, _ = disp.Run(context.Background(), Request{Query: "q", TechniqueNames: names})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	<-done

	require.LessOrEqual(t, peak, int64(2))
}

func TestDispatcherMapsPanicToInternalError(t *testing.T) {
	t.Parallel()

	reg := technique.NewRegistry()
	reg.Register("panicky", func(d technique.Deps) (technique.Technique, error) {
		return panickyTechnique{}, nil
	})

	disp := New(reg, technique.Deps{}, 2, obs.NewMockMetrics())
	results, err := disp.Run(context.Background(), Request{Query: "q", TechniqueNames: []string{"panicky"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, types.ErrorKindInternalError, results[0].ErrorKind)
}

type panickyTechnique struct{}

func (panickyTechnique) Name() string { return "panicky" }
func (panickyTechnique) Answer(ctx context.Context, req technique.AnswerRequest) (types.TechniqueResult, error) {
	panic("boom")
}

func TestDispatcherUnknownTechniqueName(t *testing.T) {
	t.Parallel()

	disp := New(technique.NewRegistry(), technique.Deps{}, 2, nil)
	results, err := disp.Run(context.Background(), Request{Query: "q", TechniqueNames: []string{"nope"}})
	require.NoError(t, err)
	require.Equal(t, types.ErrorKindUnknownTechnique, results[0].ErrorKind)
}

package startup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStartup(maxAttempts int) *Startup {
	s := NewStartup(ectologger.NewEctoLogger(func(ectologger.EctoLogMessage) {}), maxAttempts)
	s.wait = func(int) time.Duration { return time.Millisecond }
	return s
}

func recorder(events *[]string, name string, needs ...string) Func {
	return Func{
		Name:  name,
		Needs: needs,
		OnStart: func(context.Context) error {
			*events = append(*events, "start:"+name)
			return nil
		},
		OnStop: func(context.Context) error {
			*events = append(*events, "stop:"+name)
			return nil
		},
	}
}

func TestStartup_StartsDependenciesFirstAndStopsInReverse(t *testing.T) {
	events := []string{}
	s := newTestStartup(1)
	s.AddDependency(recorder(&events, "repositories", "postgres", "graph"))
	s.AddDependency(recorder(&events, "postgres"))
	s.AddDependency(recorder(&events, "graph"))

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, []string{"start:postgres", "start:graph", "start:repositories"}, events)
	assert.Equal(t, StatusStarted, s.Status("repositories"))

	events = events[:0]
	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop:repositories", "stop:graph", "stop:postgres"}, events)
	assert.Equal(t, StatusStopped, s.Status("postgres"))
}

func TestStartup_RetriesUntilDependencyStarts(t *testing.T) {
	calls := 0
	s := newTestStartup(3)
	s.AddDependency(Func{
		Name: "graph",
		OnStart: func(context.Context) error {
			calls++
			if calls < 3 {
				return errors.New("connection refused")
			}
			return nil
		},
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, calls)
}

func TestStartup_GivesUpAfterMaxAttempts(t *testing.T) {
	s := newTestStartup(2)
	s.AddDependency(Func{
		Name:    "postgres",
		OnStart: func(context.Context) error { return errors.New("connection refused") },
	})

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 2 attempts")
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, StatusFailed, s.Status("postgres"))
}

func TestStartup_UnknownAndCyclicDependencies(t *testing.T) {
	s := newTestStartup(1)
	s.AddDependency(Func{Name: "a", Needs: []string{"missing"}})
	assert.ErrorContains(t, s.Start(context.Background()), "unknown startup dependency 'missing'")

	s = newTestStartup(1)
	s.AddDependency(Func{Name: "a", Needs: []string{"b"}})
	s.AddDependency(Func{Name: "b", Needs: []string{"a"}})
	assert.ErrorContains(t, s.Start(context.Background()), "cycle")
}

func TestStartup_StopJoinsErrors(t *testing.T) {
	events := []string{}
	s := newTestStartup(1)
	s.AddDependency(recorder(&events, "postgres"))
	s.AddDependency(Func{Name: "kafka", OnStop: func(context.Context) error { return errors.New("flush failed") }})

	require.NoError(t, s.Start(context.Background()))
	err := s.Stop(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "flush failed")
	assert.Contains(t, events, "stop:postgres")
}

func TestFibonacci(t *testing.T) {
	assert.Equal(t, time.Second, fibonacci(1))
	assert.Equal(t, time.Second, fibonacci(2))
	assert.Equal(t, 2*time.Second, fibonacci(3))
	assert.Equal(t, 5*time.Second, fibonacci(5))
}

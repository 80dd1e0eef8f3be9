package domain_test

import (
	"errors"
	"testing"

	"github.com/skein-run/skein/pkg/domain"
)

func TestRunStatus_CanTransition(t *testing.T) {
	type when struct {
		current domain.RunStatus
		next    domain.RunStatus
	}
	theory := func(when when, then bool) func(*testing.T) {
		return func(t *testing.T) {
			actual := when.current.CanTransition(when.next)
			if actual != then {
				t.Errorf(
					"CanTransition(%s -> %s): got %v, want %v",
					when.current, when.next, actual, then,
				)
			}
		}
	}

	t.Run("when run is created, it can become pending", theory(
		when{domain.Created, domain.Pending}, true,
	))
	t.Run("when run is pending, it can become running", theory(
		when{domain.Pending, domain.Running}, true,
	))
	t.Run("when run is queued, it can fail", theory(
		when{domain.Queued, domain.Failed}, true,
	))
	t.Run("when run is running, the engine can report any terminal status", func(t *testing.T) {
		for _, next := range domain.TerminalStatuses() {
			if !domain.Running.CanTransition(next) {
				t.Errorf("running -> %s should be legal", next)
			}
		}
	})
	t.Run("when run is alive, it never transitions to created", func(t *testing.T) {
		for _, current := range domain.AliveStatuses() {
			if current.CanTransition(domain.Created) {
				t.Errorf("%s -> created should be illegal", current)
			}
		}
	})
	t.Run("when run is alive, events never delete it", func(t *testing.T) {
		for _, current := range domain.AliveStatuses() {
			if current.CanTransition(domain.Deleted) {
				t.Errorf("%s -> deleted should be illegal via events", current)
			}
		}
	})
	t.Run("terminal statuses are absorbing", func(t *testing.T) {
		all := []domain.RunStatus{
			domain.Created, domain.Pending, domain.Queued, domain.Running,
			domain.Finished, domain.Failed, domain.Stopped, domain.Deleted,
		}
		for _, current := range []domain.RunStatus{
			domain.Finished, domain.Failed, domain.Stopped, domain.Deleted,
		} {
			for _, next := range all {
				if current.CanTransition(next) {
					t.Errorf("%s -> %s should be illegal", current, next)
				}
			}
		}
	})
}

func TestAsRunStatus(t *testing.T) {
	t.Run("when status string is known, it converts", func(t *testing.T) {
		for _, status := range []domain.RunStatus{
			domain.Created, domain.Pending, domain.Queued, domain.Running,
			domain.Finished, domain.Failed, domain.Stopped, domain.Deleted,
		} {
			actual, err := domain.AsRunStatus(status.String())
			if err != nil {
				t.Fatal(err)
			}
			if actual != status {
				t.Errorf("got %s, want %s", actual, status)
			}
		}
	})
	t.Run("when status string is unknown, it rejects with validation error", func(t *testing.T) {
		if _, err := domain.AsRunStatus("resumed"); !errors.Is(err, domain.ErrValidation) {
			t.Errorf("got %+v, want ErrValidation", err)
		}
	})
}

func TestRunBody_MergedInputParameters(t *testing.T) {
	run := domain.RunBody{
		Spec: domain.Specification{
			Parameters: map[string]any{"a": "spec", "b": "spec", "c": "spec"},
		},
		InputParameters: map[string]any{"b": "stored", "c": "stored"},
	}

	actual := run.MergedInputParameters(map[string]any{"c": "call"})

	for key, want := range map[string]any{"a": "spec", "b": "stored", "c": "call"} {
		if actual[key] != want {
			t.Errorf("parameter %s: got %v, want %v", key, actual[key], want)
		}
	}
}

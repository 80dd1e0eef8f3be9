package provision_test

import (
	"context"
	"errors"
	"testing"

	"github.com/skein-run/skein/pkg/utils/cmp"
	"github.com/skein-run/skein/pkg/workloads/provision"
)

func TestPlan_Execute(t *testing.T) {
	t.Run("when every step succeeds, all creates run in order and no delete runs", func(t *testing.T) {
		trace := []string{}
		plan := &provision.Plan{}
		for _, name := range []string{"job", "service", "ingress"} {
			name := name
			plan.Add(provision.Step{
				Name: name,
				Create: func(context.Context) error {
					trace = append(trace, "create "+name)
					return nil
				},
				Delete: func(context.Context) error {
					trace = append(trace, "delete "+name)
					return nil
				},
			})
		}

		rollback, err := plan.Execute(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if rollback == nil {
			t.Fatal("rollback should not be nil on success")
		}
		if !cmp.SliceEq(trace, []string{"create job", "create service", "create ingress"}) {
			t.Errorf("unexpected trace: %+v", trace)
		}
	})

	t.Run("when a later step fails, earlier objects are deleted in reverse order", func(t *testing.T) {
		boom := errors.New("cluster says no")
		trace := []string{}
		plan := &provision.Plan{}
		step := func(name string, fail bool) provision.Step {
			return provision.Step{
				Name: name,
				Create: func(context.Context) error {
					if fail {
						return boom
					}
					trace = append(trace, "create "+name)
					return nil
				},
				Delete: func(context.Context) error {
					trace = append(trace, "delete "+name)
					return nil
				},
			}
		}
		plan.Add(step("deployment", false))
		plan.Add(step("service", false))
		plan.Add(step("ingress", true))

		rollback, err := plan.Execute(context.Background())
		if !errors.Is(err, boom) {
			t.Errorf("error should wrap the cause: %+v", err)
		}
		if rollback != nil {
			t.Error("rollback should be nil on failure")
		}
		if !cmp.SliceEq(trace, []string{
			"create deployment", "create service",
			"delete service", "delete deployment",
		}) {
			t.Errorf("unexpected trace: %+v", trace)
		}
	})

	t.Run("when a compensating delete fails, the cause and the delete failure are both reported", func(t *testing.T) {
		boom := errors.New("create failed")
		stuck := errors.New("delete failed")
		plan := &provision.Plan{}
		plan.Add(provision.Step{
			Name:   "deployment",
			Create: func(context.Context) error { return nil },
			Delete: func(context.Context) error { return stuck },
		})
		plan.Add(provision.Step{
			Name:   "service",
			Create: func(context.Context) error { return boom },
			Delete: func(context.Context) error { return nil },
		})

		_, err := plan.Execute(context.Background())
		if !errors.Is(err, boom) {
			t.Errorf("error should wrap the causing create failure: %+v", err)
		}
		if !errors.Is(err, stuck) {
			t.Errorf("error should also report the delete failure: %+v", err)
		}
	})

	t.Run("rollback after success deletes everything in reverse order", func(t *testing.T) {
		trace := []string{}
		plan := &provision.Plan{}
		for _, name := range []string{"a", "b"} {
			name := name
			plan.Add(provision.Step{
				Name:   name,
				Create: func(context.Context) error { return nil },
				Delete: func(context.Context) error {
					trace = append(trace, name)
					return nil
				},
			})
		}

		rollback, err := plan.Execute(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if err := rollback(context.Background()); err != nil {
			t.Fatal(err)
		}
		if !cmp.SliceEq(trace, []string{"b", "a"}) {
			t.Errorf("unexpected delete order: %+v", trace)
		}
	})
}

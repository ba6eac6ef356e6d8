package tenancy

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/resource-catalog/resource-catalog/internal/telemetry"
)

func TestSaga_Committed(t *testing.T) {
	var ran []string
	step := func(name string) func(context.Context) error {
		return func(context.Context) error {
			ran = append(ran, name)
			return nil
		}
	}

	state, err := NewSaga("test_commit").
		Step("a", step("a")).
		StepWithCompensation("b", step("b"), "undo_b", func(context.Context) error {
			t.Error("compensation ran on success")
			return nil
		}).
		Run(context.Background())

	if state != StateCommitted || err != nil {
		t.Fatalf("Run() = (%s, %v), want (committed, nil)", state, err)
	}
	if !reflect.DeepEqual(ran, []string{"a", "b"}) {
		t.Errorf("steps ran = %v", ran)
	}
}

func TestSaga_RollsBackInReverse(t *testing.T) {
	var undone []string
	undo := func(name string) func(context.Context) error {
		return func(context.Context) error {
			undone = append(undone, name)
			return nil
		}
	}
	ok := func(context.Context) error { return nil }
	stepErr := errors.New("step d failed")

	before := telemetry.CounterValue(telemetry.SagaCompensationsTotal, prometheus.Labels{"saga": "test_rollback"})

	state, err := NewSaga("test_rollback").
		StepWithCompensation("a", ok, "undo_a", undo("a")).
		Step("b", ok).
		StepWithCompensation("c", ok, "undo_c", undo("c")).
		StepWithCompensation("d", func(context.Context) error { return stepErr }, "undo_d", undo("d")).
		Run(context.Background())

	if state != StateRolledBack {
		t.Fatalf("state = %s, want rolled_back", state)
	}
	if err != stepErr {
		t.Errorf("err = %v, want the failing step's error unchanged", err)
	}
	if !reflect.DeepEqual(undone, []string{"c", "a"}) {
		t.Errorf("compensations = %v, want [c a]", undone)
	}

	after := telemetry.CounterValue(telemetry.SagaCompensationsTotal, prometheus.Labels{"saga": "test_rollback"})
	if after-before != 2 {
		t.Errorf("compensation counter delta = %v, want 2", after-before)
	}
}

func TestSaga_FirstStepFailsNothingToUndo(t *testing.T) {
	stepErr := errors.New("boom")
	state, err := NewSaga("test_first").
		StepWithCompensation("a", func(context.Context) error { return stepErr }, "undo_a", func(context.Context) error {
			t.Error("failed step was compensated")
			return nil
		}).
		Run(context.Background())

	if state != StateRolledBack || !errors.Is(err, stepErr) {
		t.Fatalf("Run() = (%s, %v)", state, err)
	}
}

func TestSaga_CriticalFault(t *testing.T) {
	stepErr := errors.New("write lookup failed")
	compErr := errors.New("delete user failed")
	var laterCompensated bool

	before := telemetry.CounterValue(telemetry.IdentityConsistencyFaultsTotal, prometheus.Labels{"operation": "test_critical"})

	state, err := NewSaga("test_critical", "tenant_id", 1).
		StepWithCompensation("first", func(context.Context) error { return nil }, "undo_first", func(context.Context) error {
			laterCompensated = true
			return nil
		}).
		StepWithCompensation("second", func(context.Context) error { return nil }, "undo_second", func(context.Context) error {
			return compErr
		}).
		Step("third", func(context.Context) error { return stepErr }).
		Run(context.Background())

	if state != StateCriticalFault {
		t.Fatalf("state = %s, want critical_fault", state)
	}
	if !errors.Is(err, ErrCriticalConsistencyFault) {
		t.Errorf("errors.Is(err, ErrCriticalConsistencyFault) = false for %v", err)
	}
	if !errors.Is(err, stepErr) {
		t.Errorf("fault does not unwrap to the triggering error: %v", err)
	}

	var fault *CriticalConsistencyFault
	if !errors.As(err, &fault) {
		t.Fatalf("err is %T, want *CriticalConsistencyFault", err)
	}
	if fault.Saga != "test_critical" || fault.Step != "third" || fault.Compensation != "undo_second" {
		t.Errorf("fault = %+v", fault)
	}
	if !errors.Is(fault.CompensationErr, compErr) {
		t.Errorf("CompensationErr = %v, want %v", fault.CompensationErr, compErr)
	}
	if !laterCompensated {
		t.Error("remaining compensations were skipped after one failed")
	}

	after := telemetry.CounterValue(telemetry.IdentityConsistencyFaultsTotal, prometheus.Labels{"operation": "test_critical"})
	if after-before != 1 {
		t.Errorf("fault counter delta = %v, want 1", after-before)
	}
}

func TestSaga_CompensatesAfterCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var compCtxErr error

	state, _ := NewSaga("test_cancel").
		StepWithCompensation("a", func(context.Context) error { return nil }, "undo_a", func(ctx context.Context) error {
			compCtxErr = ctx.Err()
			return nil
		}).
		Step("b", func(ctx context.Context) error {
			cancel()
			return ctx.Err()
		}).
		Run(ctx)

	if state != StateRolledBack {
		t.Fatalf("state = %s, want rolled_back", state)
	}
	if compCtxErr != nil {
		t.Errorf("compensation saw a cancelled context: %v", compCtxErr)
	}
}

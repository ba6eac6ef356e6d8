package tenancy

import (
	"context"
	"log/slog"

	"github.com/resource-catalog/resource-catalog/internal/telemetry"
	"go.uber.org/multierr"
)

// SagaState is the terminal state of a saga run.
type SagaState string

const (
	StateCommitted     SagaState = "committed"
	StateRolledBack    SagaState = "rolled_back"
	StateCriticalFault SagaState = "critical_fault"
)

// Step is one named action of a saga. Compensate undoes Run and is only invoked
// for steps that completed; a nil Compensate means nothing to undo.
type Step struct {
	Name         string
	Run          func(ctx context.Context) error
	Compensation string
	Compensate   func(ctx context.Context) error
}

// Saga runs steps in order and, when one fails, compensates the completed
// steps in reverse.
type Saga struct {
	name  string
	steps []Step
	attrs []any
}

// NewSaga creates a saga. attrs are added to every log line it writes.
func NewSaga(name string, attrs ...any) *Saga {
	return &Saga{name: name, attrs: attrs}
}

// Step appends a step without compensation.
func (s *Saga) Step(name string, run func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Run: run})
	return s
}

// StepWithCompensation appends a step with a named compensation.
func (s *Saga) StepWithCompensation(name string, run func(ctx context.Context) error, compensation string, compensate func(ctx context.Context) error) *Saga {
	s.steps = append(s.steps, Step{Name: name, Run: run, Compensation: compensation, Compensate: compensate})
	return s
}

// Run executes the saga. On success it returns StateCommitted and nil. When a
// step fails and every compensation succeeds it returns StateRolledBack and the
// step's error unchanged. When a compensation fails it returns
// StateCriticalFault and a *CriticalConsistencyFault.
//
// Compensations run on a context detached from ctx's cancellation so that an
// aborted request still cleans up.
func (s *Saga) Run(ctx context.Context) (SagaState, error) {
	logger := slog.With(append([]any{"saga", s.name}, s.attrs...)...)

	for i, step := range s.steps {
		logger.Debug("saga step", "step", step.Name)
		err := step.Run(ctx)
		if err == nil {
			continue
		}

		logger.Info("saga step failed, compensating", "step", step.Name, "error", err)
		fault := s.compensate(context.WithoutCancel(ctx), logger, s.steps[:i], step.Name, err)
		if fault != nil {
			logger.Error("saga compensation failed, data is inconsistent",
				"severity", "CRITICAL",
				"step", fault.Step,
				"compensation", fault.Compensation,
				"cause", fault.Cause,
				"compensation_error", fault.CompensationErr,
			)
			telemetry.IdentityConsistencyFaultsTotal.WithLabelValues(s.name).Inc()
			return StateCriticalFault, fault
		}
		return StateRolledBack, err
	}
	return StateCommitted, nil
}

// compensate undoes completed in reverse. Every compensation is attempted even
// after one fails; the first failing compensation names the fault.
func (s *Saga) compensate(ctx context.Context, logger *slog.Logger, completed []Step, failedStep string, cause error) *CriticalConsistencyFault {
	var fault *CriticalConsistencyFault
	var errs error

	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Compensate == nil {
			continue
		}
		telemetry.SagaCompensationsTotal.WithLabelValues(s.name, step.Name).Inc()
		if err := step.Compensate(ctx); err != nil {
			logger.Warn("compensation failed", "compensation", step.Compensation, "error", err)
			errs = multierr.Append(errs, err)
			if fault == nil {
				fault = &CriticalConsistencyFault{
					Saga:         s.name,
					Step:         failedStep,
					Compensation: step.Compensation,
					Cause:        cause,
				}
			}
			continue
		}
		logger.Info("compensation applied", "compensation", step.Compensation)
	}

	if fault != nil {
		fault.CompensationErr = errs
	}
	return fault
}

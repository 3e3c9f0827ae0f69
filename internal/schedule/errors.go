package schedule

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input rejected before any computation.
	ErrValidation = errors.New("invalid timeline")
	// ErrCycle marks a dependency cycle; optimization never runs around one.
	ErrCycle = errors.New("cycle detected")
	// ErrInfeasibleWindow marks a dependency chain longer than the venue window.
	ErrInfeasibleWindow = errors.New("infeasible venue window")
)

// ValidationError reports a structural defect in the input timeline. It
// carries the offending task IDs so a planner UI can render the problem
// without re-deriving context.
type ValidationError struct {
	Msg     string
	TaskIDs []string
}

func (e *ValidationError) Error() string {
	if len(e.TaskIDs) == 0 {
		return fmt.Sprintf("%s: %s", ErrValidation.Error(), e.Msg)
	}
	return fmt.Sprintf("%s: %s (%s)", ErrValidation.Error(), e.Msg, strings.Join(e.TaskIDs, ", "))
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalidf(taskIDs []string, format string, args ...any) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...), TaskIDs: taskIDs}
}

// CycleError names one cycle of task IDs as a stable witness. The suggested
// fix is the smallest actionable change: remove the closing edge.
type CycleError struct {
	Cycle []string
}

func (e *CycleError) Error() string {
	if len(e.Cycle) == 0 {
		return ErrCycle.Error()
	}
	return fmt.Sprintf("%s: %s", ErrCycle.Error(), strings.Join(e.Cycle, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycle }

// SuggestedFix names the edge whose removal breaks the witnessed cycle.
func (e *CycleError) SuggestedFix() string {
	if len(e.Cycle) < 2 {
		return ""
	}
	return fmt.Sprintf("remove dependency edge %s -> %s to break cycle",
		e.Cycle[len(e.Cycle)-2], e.Cycle[len(e.Cycle)-1])
}

// InfeasibleWindowError reports that the required chain does not fit the
// venue window, with the shortfall in minutes and the tasks involved.
type InfeasibleWindowError struct {
	TaskIDs          []string
	ShortfallMinutes int
}

func (e *InfeasibleWindowError) Error() string {
	return fmt.Sprintf("%s: chain through %s exceeds window by %d minutes",
		ErrInfeasibleWindow.Error(), strings.Join(e.TaskIDs, " -> "), e.ShortfallMinutes)
}

func (e *InfeasibleWindowError) Unwrap() error { return ErrInfeasibleWindow }

// SuggestedFix tells the planner how much window the chain is missing.
func (e *InfeasibleWindowError) SuggestedFix() string {
	return fmt.Sprintf("extend venue window by %d minutes", e.ShortfallMinutes)
}

package orchestrator

import "fmt"

// PlanningError reports a plan that failed structural validation. The
// Violation is fed back to the model on the next planning attempt.
type PlanningError struct {
	Violation string
	Err       error
}

func (e *PlanningError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("invalid plan: %s: %v", e.Violation, e.Err)
	}
	return fmt.Sprintf("invalid plan: %s", e.Violation)
}

func (e *PlanningError) Unwrap() error { return e.Err }

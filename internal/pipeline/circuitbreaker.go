package pipeline

import "github.com/clawflow/clawflow/internal/models"

const circuitBreakerThreshold = 3

// tripped reports whether a task's review counters have crossed the
// circuit-breaker threshold.
func tripped(t *models.Task) bool {
	return t.PlanReviewCount >= circuitBreakerThreshold || t.ImplReviewCount >= circuitBreakerThreshold
}

// canTransition checks the circuit breaker and any stage-local
// preconditions before allowing a task to advance to next.
func canTransition(t *models.Task, next models.Stage) bool {
	if tripped(t) {
		return false
	}
	return true
}

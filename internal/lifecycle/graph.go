package lifecycle

import "github.com/rexfever/showmethestock-sub000/internal/contracts"

// transitions is the lifecycle graph. BROKEN never returns to an open
// status; recovery happens only through a brand-new recommendation.
// ⭐ SSOT: 허용 전이는 여기서만 정의
var transitions = map[contracts.Status][]contracts.Status{
	contracts.StatusActive:      {contracts.StatusWeakWarning, contracts.StatusBroken, contracts.StatusArchived},
	contracts.StatusWeakWarning: {contracts.StatusActive, contracts.StatusBroken, contracts.StatusArchived},
	contracts.StatusBroken:      {contracts.StatusArchived},
	contracts.StatusArchived:    nil,
}

// CanTransition reports whether from → to is an edge of the graph
func CanTransition(from, to contracts.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AllowedTargets lists the statuses reachable from from in one step
func AllowedTargets(from contracts.Status) []contracts.Status {
	return append([]contracts.Status(nil), transitions[from]...)
}

// Package degradation implements the degradation controller (C12): a
// pure function from three dependency health signals (LLM, queue,
// knowledge/constraint stores) to a FallbackLevel, plus a
// gobreaker-backed decorator that updates those signals from the
// outcome of real calls.
package degradation

// Health is a single dependency's current reachability.
type Health bool

const (
	Up   Health = true
	Down Health = false
)

// FallbackLevel names how much of the review pipeline is currently
// reachable.
type FallbackLevel string

const (
	LevelFull         FallbackLevel = "FULL"
	LevelDegradedRAG  FallbackLevel = "DEGRADED_RAG"
	LevelDegradedRLHF FallbackLevel = "DEGRADED_RLHF"
	LevelDegradedBoth FallbackLevel = "DEGRADED_BOTH"
	LevelMinimal      FallbackLevel = "MINIMAL"
	LevelEmergency    FallbackLevel = "EMERGENCY"
)

// Signals bundles the four independently-probed dependency planes the
// controller reasons over.
type Signals struct {
	LLM        Health
	Queue      Health
	Knowledge  Health // C3 knowledge store (RAG)
	Constraint Health // C4 constraint store (RLHF)
}

// Level computes the current FallbackLevel as a pure function of s, per
// spec.md §4.8's table widened to the original's five-level enum (see
// DESIGN.md's Task 14 entry for the widening rationale and the
// queue-down tie-break decision).
func Level(s Signals) FallbackLevel {
	if s.LLM == Down {
		return LevelEmergency
	}
	if s.Queue == Down && s.Knowledge == Down && s.Constraint == Down {
		return LevelMinimal
	}
	switch {
	case s.Knowledge == Down && s.Constraint == Down:
		return LevelDegradedBoth
	case s.Knowledge == Down:
		return LevelDegradedRAG
	case s.Constraint == Down:
		return LevelDegradedRLHF
	default:
		return LevelFull
	}
}

// Ordinal mirrors metrics.DegradationOrdinal's severity scale so the
// controller can publish its level onto the same gauge without the
// two packages importing one another.
func Ordinal(level FallbackLevel) float64 {
	switch level {
	case LevelFull:
		return 0
	case LevelDegradedRAG:
		return 1
	case LevelDegradedRLHF:
		return 2
	case LevelDegradedBoth:
		return 3
	case LevelMinimal:
		return 4
	case LevelEmergency:
		return 5
	default:
		return -1
	}
}

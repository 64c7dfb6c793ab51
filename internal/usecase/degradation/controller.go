package degradation

import "sync/atomic"

// Controller holds the module's process-local, eventually-consistent
// view of each dependency plane's health (spec.md §5's "Shared
// resources" note: health flags are per-worker, not a barrier) and
// answers the orchestrator's HealthGate port.
type Controller struct {
	llm        atomic.Bool
	queue      atomic.Bool
	knowledge  atomic.Bool
	constraint atomic.Bool
}

// NewController returns a Controller with every plane healthy.
func NewController() *Controller {
	c := &Controller{}
	c.llm.Store(true)
	c.queue.Store(true)
	c.knowledge.Store(true)
	c.constraint.Store(true)
	return c
}

func (c *Controller) SetLLM(h Health)        { c.llm.Store(bool(h)) }
func (c *Controller) SetQueue(h Health)      { c.queue.Store(bool(h)) }
func (c *Controller) SetKnowledge(h Health)  { c.knowledge.Store(bool(h)) }
func (c *Controller) SetConstraint(h Health) { c.constraint.Store(bool(h)) }

// Signals snapshots the current health of all four planes.
func (c *Controller) Signals() Signals {
	return Signals{
		LLM:        Health(c.llm.Load()),
		Queue:      Health(c.queue.Load()),
		Knowledge:  Health(c.knowledge.Load()),
		Constraint: Health(c.constraint.Load()),
	}
}

// Level returns the current FallbackLevel.
func (c *Controller) Level() FallbackLevel { return Level(c.Signals()) }

// AllowRAG satisfies orchestrator.HealthGate: the knowledge plane is
// consulted only when it's marked up.
func (c *Controller) AllowRAG() bool { return c.knowledge.Load() }

// AllowRLHF satisfies orchestrator.HealthGate: the constraint plane is
// consulted only when it's marked up.
func (c *Controller) AllowRLHF() bool { return c.constraint.Load() }

package runtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentmesh/internal/observability"
)

// LoopGuard bounds an Orchestrator run in three independent dimensions.
type LoopGuard struct {
	MaxIterations       uint64
	MaxMessagesPerAgent uint64
	MaxExecutionTimeMS  uint64
}

// DefaultLoopGuard matches the reference defaults: 100 iterations, 50
// messages per agent, 600000ms (10 minutes) wall clock.
func DefaultLoopGuard() LoopGuard {
	return LoopGuard{
		MaxIterations:       100,
		MaxMessagesPerAgent: 50,
		MaxExecutionTimeMS:  600000,
	}
}

// StopReasonKind tags the variant of a StopReason.
type StopReasonKind int

const (
	StopCompleted StopReasonKind = iota
	StopMaxIterations
	StopMaxMessagesPerAgent
	StopMaxExecutionTime
	StopAgentError
	StopManualStop
)

func (k StopReasonKind) String() string {
	switch k {
	case StopCompleted:
		return "completed"
	case StopMaxIterations:
		return "max_iterations"
	case StopMaxMessagesPerAgent:
		return "max_messages_per_agent"
	case StopMaxExecutionTime:
		return "max_execution_time"
	case StopAgentError:
		return "agent_error"
	case StopManualStop:
		return "manual_stop"
	default:
		return "unknown"
	}
}

// StopReason is the tagged terminal status returned by Start.
type StopReason struct {
	Kind    StopReasonKind
	AgentID AgentID // populated for StopMaxMessagesPerAgent, StopAgentError
	Count   uint64  // populated for StopMaxMessagesPerAgent
	Reason  string  // populated for StopAgentError
}

func (s StopReason) String() string {
	switch s.Kind {
	case StopMaxMessagesPerAgent:
		return fmt.Sprintf("max_messages_per_agent(agent=%s, count=%d)", s.AgentID, s.Count)
	case StopAgentError:
		return fmt.Sprintf("agent_error(agent=%s, reason=%q)", s.AgentID, s.Reason)
	default:
		return s.Kind.String()
	}
}

// Metrics aggregates orchestrator-wide counters.
type Metrics struct {
	TotalIterations  uint64
	TotalMessages    uint64
	MessagesPerAgent map[AgentID]uint64
	RetryCount       uint64
	ErrorCount       uint64
	QueueDepth       int
}

func newMetrics() Metrics {
	return Metrics{MessagesPerAgent: make(map[AgentID]uint64)}
}

func (m Metrics) clone() Metrics {
	out := m
	out.MessagesPerAgent = make(map[AgentID]uint64, len(m.MessagesPerAgent))
	for k, v := range m.MessagesPerAgent {
		out.MessagesPerAgent[k] = v
	}
	return out
}

// ExecuteFunc is the agent-execution hook: given a message addressed to
// id under cfg, it must return success or a human-readable error within
// ctx's deadline. Concrete implementations invoke the agent's connector.
type ExecuteFunc func(ctx context.Context, id AgentID, msg Message, cfg AgentConfig) error

// Orchestrator is the scheduling loop: on each pass it pops at most one
// message per registered agent, dispatches it with retry+backoff bounded
// by the agent's configured timeout, and enforces the LoopGuard.
type Orchestrator struct {
	registry  *Registry
	bus       *MessageBus
	loopGuard LoopGuard
	execute   ExecuteFunc

	runningMu sync.RWMutex
	running   bool

	metricsMu sync.Mutex
	metrics   Metrics
}

// New returns an Orchestrator with DefaultLoopGuard.
func New(registry *Registry, bus *MessageBus, execute ExecuteFunc) *Orchestrator {
	return &Orchestrator{
		registry:  registry,
		bus:       bus,
		loopGuard: DefaultLoopGuard(),
		execute:   execute,
		metrics:   newMetrics(),
	}
}

// WithLoopGuard overrides the default loop guard.
func (o *Orchestrator) WithLoopGuard(g LoopGuard) *Orchestrator {
	o.loopGuard = g
	return o
}

// Metrics returns a snapshot of the aggregate counters.
func (o *Orchestrator) Metrics() Metrics {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()
	return o.metrics.clone()
}

// ResetMetrics zeroes all counters.
func (o *Orchestrator) ResetMetrics() {
	o.metricsMu.Lock()
	defer o.metricsMu.Unlock()
	o.metrics = newMetrics()
}

// Stop flips running to false; the loop terminates at its next guard
// check with StopManualStop.
func (o *Orchestrator) Stop() {
	o.runningMu.Lock()
	defer o.runningMu.Unlock()
	o.running = false
}

func (o *Orchestrator) isRunning() bool {
	o.runningMu.RLock()
	defer o.runningMu.RUnlock()
	return o.running
}

// Start runs the scheduling loop to completion. It refuses to start a
// second concurrent loop on the same instance.
func (o *Orchestrator) Start(ctx context.Context) StopReason {
	o.runningMu.Lock()
	if o.running {
		o.runningMu.Unlock()
		return StopReason{Kind: StopManualStop}
	}
	o.running = true
	o.runningMu.Unlock()
	defer func() {
		o.runningMu.Lock()
		o.running = false
		o.runningMu.Unlock()
	}()

	log := observability.LoggerWithTrace(ctx)
	startedAt := time.Now()
	var iteration uint64

	for {
		if !o.isRunning() {
			return StopReason{Kind: StopManualStop}
		}
		if iteration >= o.loopGuard.MaxIterations {
			return StopReason{Kind: StopMaxIterations}
		}
		if uint64(time.Since(startedAt).Milliseconds()) >= o.loopGuard.MaxExecutionTimeMS {
			return StopReason{Kind: StopMaxExecutionTime}
		}

		agents := o.registry.ListAgents()
		if len(agents) == 0 {
			return StopReason{Kind: StopCompleted}
		}

		processedAny := false
		for _, agent := range agents {
			o.metricsMu.Lock()
			count := o.metrics.MessagesPerAgent[agent.ID]
			o.metricsMu.Unlock()
			if count >= o.loopGuard.MaxMessagesPerAgent {
				return StopReason{Kind: StopMaxMessagesPerAgent, AgentID: agent.ID, Count: count}
			}

			processed, stop := o.processAgentMessage(ctx, agent.ID)
			if stop != nil {
				return *stop
			}
			if processed {
				processedAny = true
			}
		}

		o.metricsMu.Lock()
		o.metrics.TotalIterations++
		o.metrics.QueueDepth = o.bus.QueueDepth()
		queueDepth := o.metrics.QueueDepth
		o.metricsMu.Unlock()
		iteration++

		log.Debug().Uint64("iteration", iteration).Bool("processed_any", processedAny).Int("queue_depth", queueDepth).Msg("orchestrator_pass")

		if !processedAny && queueDepth == 0 {
			return StopReason{Kind: StopCompleted}
		}

		time.Sleep(10 * time.Millisecond)
	}
}

// processAgentMessage pops and dispatches (with retry) at most one message
// for id. Returns processed=true if a message was taken off the mailbox,
// and a non-nil stop reason if the retry wrapper exhausted retries.
func (o *Orchestrator) processAgentMessage(ctx context.Context, id AgentID) (bool, *StopReason) {
	mb, ok := o.bus.GetMailbox(id)
	if !ok {
		return false, nil
	}
	msg, ok := mb.Pop()
	if !ok {
		return false, nil
	}

	cfg, ok := o.registry.GetConfig(id)
	if !ok {
		return false, nil
	}

	o.registry.UpdateStatus(id, Processing())

	if err := o.executeWithRetry(ctx, id, msg, cfg); err != nil {
		o.registry.UpdateStatus(id, Failed(err.Error()))
		o.metricsMu.Lock()
		o.metrics.ErrorCount++
		o.metricsMu.Unlock()
		return true, &StopReason{Kind: StopAgentError, AgentID: id, Reason: err.Error()}
	}

	o.registry.UpdateStatus(id, Idle())
	o.bus.MarkReceived()
	o.metricsMu.Lock()
	o.metrics.MessagesPerAgent[id]++
	o.metrics.TotalMessages++
	o.metricsMu.Unlock()
	return true, nil
}

// executeWithRetry calls execute under cfg.TimeoutMS, retrying with
// 100ms*2^(retries-1) backoff until cfg.MaxRetries is exhausted.
func (o *Orchestrator) executeWithRetry(ctx context.Context, id AgentID, msg Message, cfg AgentConfig) error {
	var retries uint32
	for {
		callCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.TimeoutMS)*time.Millisecond)
		err := o.execute(callCtx, id, msg, cfg)
		cancel()
		if err == nil {
			return nil
		}

		retries++
		if retries >= cfg.MaxRetries {
			return fmt.Errorf("agent %s: exhausted %d retries: %w", id, cfg.MaxRetries, err)
		}
		o.metricsMu.Lock()
		o.metrics.RetryCount++
		o.metricsMu.Unlock()
		time.Sleep(time.Duration(100*(1<<(retries-1))) * time.Millisecond)
	}
}

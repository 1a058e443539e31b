// Package runtime implements the message-passing multi-agent scheduler:
// the AgentRegistry, the priority Mailbox/MessageBus, and the Orchestrator
// loop that dispatches one message per agent per pass under loop-guard
// limits.
package runtime

import (
	"time"

	"github.com/google/uuid"
)

// AgentID is an opaque, globally unique agent identifier.
type AgentID = uuid.UUID

// MessageID is an opaque, globally unique message identifier.
type MessageID = uuid.UUID

// AgentRole classifies an agent's purpose in the mesh. Any string not one
// of the three well-known roles is treated as a custom role name.
type AgentRole string

const (
	RoleCoordinator AgentRole = "coordinator"
	RoleWorker      AgentRole = "worker"
	RoleReviewer    AgentRole = "reviewer"
)

// AgentStatus is the mutable lifecycle state of a registered agent.
type AgentStatus struct {
	Kind   AgentStatusKind
	Reason string // populated only when Kind == StatusFailed
}

// AgentStatusKind tags the variant of AgentStatus.
type AgentStatusKind int

const (
	StatusIdle AgentStatusKind = iota
	StatusProcessing
	StatusWaiting
	StatusFailed
)

func (k AgentStatusKind) String() string {
	switch k {
	case StatusIdle:
		return "idle"
	case StatusProcessing:
		return "processing"
	case StatusWaiting:
		return "waiting"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Idle, Processing, Waiting and Failed build AgentStatus values.
func Idle() AgentStatus { return AgentStatus{Kind: StatusIdle} }
func Processing() AgentStatus { return AgentStatus{Kind: StatusProcessing} }
func Waiting() AgentStatus { return AgentStatus{Kind: StatusWaiting} }
func Failed(reason string) AgentStatus { return AgentStatus{Kind: StatusFailed, Reason: reason} }

// PermissionLevel gates what a connector's tool layer may do with a named
// tool. The core carries these policies but does not enforce them.
type PermissionLevel int

const (
	PermissionDenied PermissionLevel = iota
	PermissionReadOnly
	PermissionReadWrite
	PermissionFull
)

// ToolPolicy constrains one named tool available to an agent's connector.
type ToolPolicy struct {
	ToolName        string
	Permission      PermissionLevel
	MaxCallsPerHour *uint32
	AllowedPaths    []string
}

// NewToolPolicy returns a ToolPolicy with no rate limit or path restriction.
func NewToolPolicy(toolName string, perm PermissionLevel) ToolPolicy {
	return ToolPolicy{ToolName: toolName, Permission: perm}
}

// WithRateLimit returns a copy of p with MaxCallsPerHour set.
func (p ToolPolicy) WithRateLimit(callsPerHour uint32) ToolPolicy {
	p.MaxCallsPerHour = &callsPerHour
	return p
}

// AgentConfig is immutable after registration.
type AgentConfig struct {
	Name          string
	Role          AgentRole
	ConnectorKind string
	MaxRetries    uint32
	TimeoutMS     uint64
	ToolPolicies  []ToolPolicy
}

// NewAgentConfig returns an AgentConfig with the spec defaults:
// MaxRetries=3, TimeoutMS=300000.
func NewAgentConfig(name string, role AgentRole, connectorKind string) AgentConfig {
	return AgentConfig{
		Name:          name,
		Role:          role,
		ConnectorKind: connectorKind,
		MaxRetries:    3,
		TimeoutMS:     300000,
	}
}

// AgentMetadata is the mutable view of a registered agent.
type AgentMetadata struct {
	ID            AgentID
	Name          string
	Role          AgentRole
	ConnectorKind string
	CreatedAt     time.Time
	Status        AgentStatus
}

// MessagePriority orders messages within a single mailbox; higher values
// pop first. The numeric ordering is the only contract.
type MessagePriority int

const (
	PriorityLow MessagePriority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

// Message is one unit of inter-agent communication.
type Message struct {
	ID        MessageID
	From      AgentID
	To        AgentID
	Content   string
	Priority  MessagePriority
	CreatedAt time.Time
	Metadata  map[string]string
}

// NewMessage builds a Message with PriorityNormal and a fresh ID/timestamp.
func NewMessage(from, to AgentID, content string) Message {
	return Message{
		ID:        uuid.New(),
		From:      from,
		To:        to,
		Content:   content,
		Priority:  PriorityNormal,
		CreatedAt: time.Now().UTC(),
		Metadata:  map[string]string{},
	}
}

// WithPriority returns a copy of m with Priority set.
func (m Message) WithPriority(p MessagePriority) Message {
	m.Priority = p
	return m
}

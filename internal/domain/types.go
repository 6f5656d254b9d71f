// Package domain holds the entity types shared by the store, process
// manager, scheduler, webhook engine and audit log.
package domain

import "time"

// ProcessState is a node in the process manager's state machine.
type ProcessState string

const (
	StateCreated  ProcessState = "created"
	StateRunning  ProcessState = "running"
	StateSleeping ProcessState = "sleeping"
	StateStopped  ProcessState = "stopped"
	StatePaused   ProcessState = "paused"
	StateZombie   ProcessState = "zombie"
	StateDead     ProcessState = "dead"
)

// ProcessPhase annotates a process's high-level activity independent of its
// state machine position.
type ProcessPhase string

const (
	PhaseBooting   ProcessPhase = "booting"
	PhaseThinking  ProcessPhase = "thinking"
	PhaseActing    ProcessPhase = "acting"
	PhaseCompleted ProcessPhase = "completed"
	PhaseFailed    ProcessPhase = "failed"
)

// RuntimeKind selects how a process's workload is actually executed.
type RuntimeKind string

const (
	RuntimeBuiltIn    RuntimeKind = "built-in"
	RuntimeClaudeCode RuntimeKind = "claude-code"
	RuntimeOpenClaw   RuntimeKind = "openclaw"
)

// SpawnConfig is the immutable configuration a process is created with.
type SpawnConfig struct {
	Role     string            `json:"role"`
	Goal     string            `json:"goal"`
	Runtime  RuntimeKind       `json:"runtime"`
	Model    string            `json:"model,omitempty"`
	Tools    []string          `json:"tools,omitempty"`
	Priority int               `json:"priority"`
	MaxSteps int               `json:"maxSteps"`
	Env      map[string]string `json:"env,omitempty"`
}

// Process is one row of the process table.
type Process struct {
	PID        int          `json:"pid"`
	OwnerUID   string       `json:"ownerUid"`
	ParentPID  int          `json:"parentPid"`
	Config     SpawnConfig  `json:"config"`
	State      ProcessState `json:"state"`
	Phase      ProcessPhase `json:"phase"`
	WorkDir    string       `json:"workDir"`
	Env        map[string]string `json:"env,omitempty"`
	CreatedAt  time.Time    `json:"createdAt"`
	CPUPercent float64      `json:"cpuPercent"`
	MemoryMB   float64      `json:"memoryMb"`
	ExitCode   *int         `json:"exitCode,omitempty"`
}

// QueuedSpawnRequest is a pending spawn waiting for a concurrency slot.
type QueuedSpawnRequest struct {
	Config    SpawnConfig `json:"config"`
	OwnerUID  string      `json:"ownerUid"`
	Priority  int         `json:"priority"`
	EnqueuedAt time.Time  `json:"enqueuedAt"`
}

// IPCMessage is an envelope delivered through a process mailbox.
type IPCMessage struct {
	ID          string    `json:"id"`
	SenderPID   int       `json:"senderPid"`
	RecipientPID int      `json:"recipientPid"`
	SenderUID   string    `json:"senderUid"`
	RecipientUID string   `json:"recipientUid"`
	Channel     string    `json:"channel"`
	Payload     any       `json:"payload"`
	Timestamp   time.Time `json:"timestamp"`
	Delivered   bool      `json:"delivered"`
}

// ResourceUsage is the per-PID rolling counter row tracked by the governor.
type ResourceUsage struct {
	PID              int       `json:"pid"`
	InputTokens      int64     `json:"inputTokens"`
	OutputTokens     int64     `json:"outputTokens"`
	Steps            int       `json:"steps"`
	StartedAt        time.Time `json:"startedAt"`
	EstimatedCostUSD float64   `json:"estimatedCostUsd"`
	Provider         string    `json:"provider"`
}

// Quota is a per-PID override of the governor's defaults. A zero value in
// any field means "inherit default".
type Quota struct {
	MaxTokensPerSession int64 `json:"maxTokensPerSession,omitempty"`
	MaxTokensPerDay     int64 `json:"maxTokensPerDay,omitempty"`
	MaxSteps            int   `json:"maxSteps,omitempty"`
	MaxWallClockMs      int64 `json:"maxWallClockMs,omitempty"`
}

// SkillInput describes one named input to a skill.
type SkillInput struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Required    bool   `json:"required,omitempty"`
	Default     any    `json:"default,omitempty"`
}

// SkillStep is one step of a skill's pipeline.
type SkillStep struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	Params    map[string]any `json:"params,omitempty"`
	Condition any            `json:"condition,omitempty"`
}

// SkillDefinition is a declarative, step-based pipeline.
type SkillDefinition struct {
	ID             string                `json:"id"`
	Name           string                `json:"name"`
	Version        string                `json:"version"`
	Description    string                `json:"description,omitempty"`
	Inputs         map[string]SkillInput `json:"inputs,omitempty"`
	Steps          []SkillStep           `json:"steps"`
	OutputTemplate any                   `json:"outputTemplate"`
}

// CronJob is a rule that spawns an agent on a calendar schedule.
type CronJob struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Expression string      `json:"expression"`
	Config     SpawnConfig `json:"config"`
	OwnerUID   string      `json:"ownerUid"`
	Enabled    bool        `json:"enabled"`
	NextRun    time.Time   `json:"nextRun"`
	LastRun    time.Time   `json:"lastRun,omitempty"`
	FireCount  int64       `json:"fireCount"`
}

// EventTrigger spawns an agent when a matching bus event occurs.
type EventTrigger struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Pattern    string         `json:"pattern"`
	Filter     map[string]any `json:"filter,omitempty"`
	Config     SpawnConfig    `json:"config"`
	CooldownMs int64          `json:"cooldownMs"`
	LastFired  time.Time      `json:"lastFired,omitempty"`
	FireCount  int64          `json:"fireCount"`
}

// OutboundWebhook posts to an external URL when a matching kernel event
// fires.
type OutboundWebhook struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	TargetURL      string            `json:"targetUrl"`
	Secret         string            `json:"secret,omitempty"`
	Patterns       []string          `json:"patterns"`
	Filter         map[string]any    `json:"filter,omitempty"`
	ExtraHeaders   map[string]string `json:"extraHeaders,omitempty"`
	Enabled        bool              `json:"enabled"`
	RetryCount     int               `json:"retryCount"`
	TimeoutMs      int64             `json:"timeoutMs"`
	FailureCounter int64             `json:"failureCounter"`
	LastTriggered  time.Time         `json:"lastTriggered,omitempty"`
}

// WebhookDeliveryLog records one delivery attempt.
type WebhookDeliveryLog struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhookId"`
	EventType    string    `json:"eventType"`
	Payload      any       `json:"payload"`
	HTTPStatus   int       `json:"httpStatus"`
	ResponseBody string    `json:"responseBody"`
	DurationMs   int64     `json:"durationMs"`
	Success      bool      `json:"success"`
	Timestamp    time.Time `json:"timestamp"`
}

// WebhookDLQEntry holds a webhook event whose delivery attempts were
// exhausted.
type WebhookDLQEntry struct {
	ID           string    `json:"id"`
	WebhookID    string    `json:"webhookId"`
	EventType    string    `json:"eventType"`
	Payload      any       `json:"payload"`
	FinalError   string    `json:"finalError"`
	TotalAttempts int      `json:"totalAttempts"`
	CreatedAt    time.Time `json:"createdAt"`
	RetriedAt    time.Time `json:"retriedAt,omitempty"`
}

// InboundWebhook is a tokenised endpoint that spawns a pre-configured agent.
type InboundWebhook struct {
	ID        string      `json:"id"`
	Name      string      `json:"name"`
	Token     string      `json:"token"`
	Config    SpawnConfig `json:"config"`
	Transform any         `json:"transform,omitempty"`
	Enabled   bool        `json:"enabled"`
	OwnerUID  string      `json:"ownerUid"`
	FireCount int64       `json:"fireCount"`
}

// AuditEventKind classifies an audit entry.
type AuditEventKind string

const (
	AuditToolInvocation AuditEventKind = "tool.invocation"
	AuditAuth           AuditEventKind = "auth"
	AuditAdmin          AuditEventKind = "admin"
	AuditResource       AuditEventKind = "resource"
)

// AuditEntry is one append-only audit row.
type AuditEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	Kind       AuditEventKind `json:"kind"`
	ActorPID   int            `json:"actorPid"`
	ActorUID   string         `json:"actorUid"`
	Action     string         `json:"action"`
	Target     string         `json:"target"`
	SanitizedArgs any         `json:"sanitizedArgs,omitempty"`
	ResultHash string         `json:"resultHash,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Package delegation implements Torbo Base's cross-node delegation (XND):
// sending a task to a peer whose advertised capabilities meet a
// requirement, accepting such tasks from peers, and authenticating both
// directions with Ed25519 signatures.
package delegation

import "time"

// NodeCapabilities is what a node advertises about itself, cached by
// peers with a TTL.
type NodeCapabilities struct {
	NodeID                 string    `json:"node_id"`
	DisplayName            string    `json:"display_name"`
	SkillIDs               []string  `json:"skill_ids"`
	AgentIDs               []string  `json:"agent_ids"`
	MaxAccessLevel         int       `json:"max_access_level"`
	AcceptsDelegation      bool      `json:"accepts_delegation"`
	CurrentLoad            int       `json:"current_load"`
	MaxConcurrentDelegated int       `json:"max_concurrent_delegated"`
	UpdatedAt              time.Time `json:"updated_at"`
}

// DelegatedTask is the wire payload posted to a peer's /delegation/submit.
type DelegatedTask struct {
	TaskID              string   `json:"task_id"`
	OriginNodeID        string   `json:"origin_node_id"`
	OriginHost          string   `json:"origin_host"`
	OriginPort          int      `json:"origin_port"`
	Title               string   `json:"title"`
	Description         string   `json:"description"`
	Priority            string   `json:"priority,omitempty"`
	RequiredSkillIDs    []string `json:"required_skill_ids"`
	RequiredAccessLevel int      `json:"required_access_level"`
	TimeoutSeconds      int      `json:"timeout_seconds"`
	Signature           string   `json:"signature"`
	CreatedAt           string   `json:"created_at"`
	Context             string   `json:"context,omitempty"`
}

// DelegatedTaskResult is the wire payload posted to /delegation/result.
type DelegatedTaskResult struct {
	TaskID              string  `json:"task_id"`
	ExecutorNodeID      string  `json:"executor_node_id"`
	Status              string  `json:"status"`
	Result              string  `json:"result,omitempty"`
	Error               string  `json:"error,omitempty"`
	ExecutionTimeSeconds float64 `json:"execution_time_seconds"`
	Signature           string  `json:"signature"`
	CompletedAt         string  `json:"completed_at"`
}

// outboundEntry tracks a task this node delegated to a peer.
type outboundEntry struct {
	TaskID      string    `json:"task_id"`
	TargetHost  string    `json:"target_host"`
	TargetPort  int       `json:"target_port"`
	Title       string    `json:"title"`
	SentAt      time.Time `json:"sent_at"`
	Timeout     int       `json:"timeout_seconds"`
	LocalTaskID string    `json:"local_task_id"`
}

// inboundEntry tracks a task this node accepted from a peer.
type inboundEntry struct {
	TaskID      string    `json:"task_id"`
	OriginHost  string    `json:"origin_host"`
	OriginPort  int       `json:"origin_port"`
	OriginNode  string    `json:"origin_node_id"`
	ReceivedAt  time.Time `json:"received_at"`
	LocalTaskID string    `json:"local_task_id"`
}

// persistedState is the single serialized document described in spec
// section 6: {outbound: [...], inbound: [...]}.
type persistedState struct {
	Outbound []outboundEntry `json:"outbound"`
	Inbound  []inboundEntry  `json:"inbound"`
}

// cachedCapabilities pairs a peer's last-known capabilities with the time
// they were fetched, for TTL-based staleness checks.
type cachedCapabilities struct {
	capabilities NodeCapabilities
	cachedAt     time.Time
}

// SubmitResponse is the /delegation/submit response body.
type SubmitResponse struct {
	Status      string `json:"status"`
	TaskID      string `json:"task_id,omitempty"`
	LocalTaskID string `json:"local_task_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
}

// ResultResponse is the /delegation/result response body.
type ResultResponse struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Peer describes a known peer node this node can address over HTTP.
type Peer struct {
	NodeID string
	Host   string
	Port   int
}

// Package iam implements Torbo Base's identity, access, and policy
// engine: agent identities, resource permissions, an access log, and the
// risk/anomaly analysis built on top of them.
package iam

import "time"

// AgentIdentity is a registered principal in the access-control system.
type AgentIdentity struct {
	ID        string
	Owner     string
	Purpose   string
	CreatedAt time.Time
	RiskScore float64
}

// Permission is one granted (resource, actions) pair for an agent.
type Permission struct {
	ID         int64
	AgentID    string
	Resource   string
	Actions    []string
	GrantedAt  time.Time
	GrantedBy  string
}

// AccessLogEntry is one row in the access log.
type AccessLogEntry struct {
	ID        int64
	AgentID   string
	Resource  string
	Action    string
	Timestamp time.Time
	Allowed   bool
	Reason    string
}

// AnomalyType names the class of anomaly detect() can report.
type AnomalyType string

const (
	AnomalyRapidAccess         AnomalyType = "rapid_access"
	AnomalyDeniedSpike         AnomalyType = "denied_spike"
	AnomalyUnusualResource     AnomalyType = "unusual_resource"
	AnomalyPrivilegeEscalation AnomalyType = "privilege_escalation"
)

// Severity names the severity tier attached to an Anomaly.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Anomaly is one detected suspicious-activity finding for an agent.
type Anomaly struct {
	AgentID  string      `json:"agentId"`
	Type     AnomalyType `json:"type"`
	Severity Severity    `json:"severity"`
	Detail   string      `json:"detail"`
}

package iam

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// detectAnomalies returns the union of every anomaly rule's findings for
// agentID, per spec.md's anomaly-detection table. Detection is pull-based
// only: callers invoke this on demand, there is no background scanner
// (decided open question).
func (e *Engine) detectAnomalies(ctx context.Context, agentID string) ([]Anomaly, error) {
	var anomalies []Anomaly

	rapid, err := e.detectRapidAccess(ctx, agentID)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, rapid...)

	spike, err := e.detectDeniedSpike(ctx, agentID)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, spike...)

	unusual, err := e.detectUnusualResource(ctx, agentID)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, unusual...)

	escalation, err := e.detectPrivilegeEscalation(ctx, agentID)
	if err != nil {
		return nil, err
	}
	anomalies = append(anomalies, escalation...)

	return anomalies, nil
}

func (e *Engine) detectRapidAccess(ctx context.Context, agentID string) ([]Anomaly, error) {
	count, err := e.countAccesses(ctx, agentID, time.Minute, false)
	if err != nil {
		return nil, err
	}
	if count <= 100 {
		return nil, nil
	}
	severity := SeverityHigh
	if count > 500 {
		severity = SeverityCritical
	}
	return []Anomaly{{
		AgentID:  agentID,
		Type:     AnomalyRapidAccess,
		Severity: severity,
		Detail:   fmt.Sprintf("%d accesses in the last 60s", count),
	}}, nil
}

func (e *Engine) detectDeniedSpike(ctx context.Context, agentID string) ([]Anomaly, error) {
	count, err := e.countAccesses(ctx, agentID, 300*time.Second, true)
	if err != nil {
		return nil, err
	}
	if count <= 10 {
		return nil, nil
	}
	severity := SeverityMedium
	if count > 50 {
		severity = SeverityCritical
	}
	return []Anomaly{{
		AgentID:  agentID,
		Type:     AnomalyDeniedSpike,
		Severity: severity,
		Detail:   fmt.Sprintf("%d denied accesses in the last 300s", count),
	}}, nil
}

// detectUnusualResource flags a resource whose first-ever access for this
// agent falls inside the last 24h window, i.e. the agent had no access
// history for that resource before the window started.
func (e *Engine) detectUnusualResource(ctx context.Context, agentID string) ([]Anomaly, error) {
	resources, err := e.firstAccessWithinWindowOnly(ctx, agentID, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	var anomalies []Anomaly
	for _, resource := range resources {
		anomalies = append(anomalies, Anomaly{
			AgentID:  agentID,
			Type:     AnomalyUnusualResource,
			Severity: SeverityLow,
			Detail:   fmt.Sprintf("first access to %s within the last 24h", resource),
		})
	}
	return anomalies, nil
}

func (e *Engine) detectPrivilegeEscalation(ctx context.Context, agentID string) ([]Anomaly, error) {
	count, err := e.countPrivilegedDenials(ctx, agentID, time.Hour)
	if err != nil {
		return nil, err
	}
	if count <= 5 {
		return nil, nil
	}
	return []Anomaly{{
		AgentID:  agentID,
		Type:     AnomalyPrivilegeEscalation,
		Severity: SeverityHigh,
		Detail:   fmt.Sprintf("%d denied privileged accesses in the last 3600s", count),
	}}, nil
}

// isPrivilegedResourceOrAction reports whether an access log row counts
// toward privilege-escalation detection: resource prefixed tool:execute_
// or tool:run_, or action == execute.
func isPrivilegedResourceOrAction(resource, action string) bool {
	if action == "execute" {
		return true
	}
	return strings.HasPrefix(resource, "tool:execute_") || strings.HasPrefix(resource, "tool:run_")
}

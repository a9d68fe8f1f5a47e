package iam

import (
	"context"
	"sort"
	"strings"
	"time"
)

// calculateRisk computes the additive, clamped [0.0, 1.0] risk score for
// an agent's current permission set and recent access history, per
// spec.md's risk-scoring rule. Component contributions are summed in the
// order listed there and the total is clamped rather than renormalized
// (decided open question: additive-clamped, no renormalization).
func (e *Engine) calculateRisk(ctx context.Context, agentID string) (float64, error) {
	perms, err := e.permissionsFor(ctx, agentID)
	if err != nil {
		return 0, err
	}

	var score float64

	hasWildcardResource := false
	hasExecute := false
	hasWrite := false
	for _, p := range perms {
		if p.Resource == "*" {
			hasWildcardResource = true
		}
		for _, a := range p.Actions {
			if a == "execute" {
				hasExecute = true
			}
			if a == "write" {
				hasWrite = true
			}
		}
	}

	if hasWildcardResource {
		score += 0.30
		switch {
		case len(perms) > 10:
			score += 0.15
		case len(perms) > 5:
			score += 0.10
		}
	}
	if hasExecute {
		score += 0.20
	}
	if hasWrite {
		score += 0.10
	}

	denied24h, total24h, err := e.accessCounts(ctx, agentID, 24*time.Hour)
	if err != nil {
		return 0, err
	}
	switch {
	case denied24h > 20:
		score += 0.20
	case denied24h > 5:
		score += 0.10
	}
	if total24h > 1000 {
		score += 0.10
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score, nil
}

// RiskFinding is one factor that contributed to an agent's risk score, in
// the style of the pack's threat.Finding (rule name, human description,
// contribution) — supplementing, never replacing, the scalar risk_score
// spec.md requires.
type RiskFinding struct {
	Rule        string  `json:"rule"`
	Description string  `json:"description"`
	Contribution float64 `json:"contribution"`
}

// explainRisk recomputes the same additive factors as calculateRisk but
// returns which of them fired, for operator-facing diagnostics.
func (e *Engine) explainRisk(ctx context.Context, agentID string) ([]RiskFinding, error) {
	perms, err := e.permissionsFor(ctx, agentID)
	if err != nil {
		return nil, err
	}

	var findings []RiskFinding

	hasWildcardResource := false
	hasExecute := false
	hasWrite := false
	for _, p := range perms {
		if p.Resource == "*" {
			hasWildcardResource = true
		}
		for _, a := range p.Actions {
			if a == "execute" {
				hasExecute = true
			}
			if a == "write" {
				hasWrite = true
			}
		}
	}

	if hasWildcardResource {
		findings = append(findings, RiskFinding{Rule: "wildcard_resource", Description: "holds a permission on resource \"*\"", Contribution: 0.30})
		switch {
		case len(perms) > 10:
			findings = append(findings, RiskFinding{Rule: "wildcard_with_many_grants", Description: "wildcard resource combined with more than 10 grants", Contribution: 0.15})
		case len(perms) > 5:
			findings = append(findings, RiskFinding{Rule: "wildcard_with_several_grants", Description: "wildcard resource combined with more than 5 grants", Contribution: 0.10})
		}
	}
	if hasExecute {
		findings = append(findings, RiskFinding{Rule: "execute_action", Description: "holds a permission granting the execute action", Contribution: 0.20})
	}
	if hasWrite {
		findings = append(findings, RiskFinding{Rule: "write_action", Description: "holds a permission granting the write action", Contribution: 0.10})
	}

	denied24h, total24h, err := e.accessCounts(ctx, agentID, 24*time.Hour)
	if err != nil {
		return nil, err
	}
	switch {
	case denied24h > 20:
		findings = append(findings, RiskFinding{Rule: "denied_spike_high", Description: "more than 20 denied accesses in the last 24h", Contribution: 0.20})
	case denied24h > 5:
		findings = append(findings, RiskFinding{Rule: "denied_spike_low", Description: "more than 5 denied accesses in the last 24h", Contribution: 0.10})
	}
	if total24h > 1000 {
		findings = append(findings, RiskFinding{Rule: "high_volume", Description: "more than 1000 total accesses in the last 24h", Contribution: 0.10})
	}

	if findings == nil {
		findings = []RiskFinding{}
	}
	return findings, nil
}

// permissionGrants reports whether any permission in perms matching
// resource grants action, including wildcard resource/action permissions.
// Used by check(); kept here alongside the other permission-set scanning
// helpers.
func permissionGrants(perms []Permission, resource, action string) bool {
	for _, p := range perms {
		if !matches(p.Resource, resource) {
			continue
		}
		for _, a := range p.Actions {
			if a == action || a == "*" {
				return true
			}
		}
	}
	return false
}

// actionsCSV serializes a sorted, deduplicated action set as a
// comma-separated string, matching the persisted permission row format.
func actionsCSV(actions []string) string {
	seen := make(map[string]bool, len(actions))
	var clean []string
	for _, a := range actions {
		a = strings.TrimSpace(a)
		if a == "" || seen[a] {
			continue
		}
		seen[a] = true
		clean = append(clean, a)
	}
	sort.Strings(clean)
	return strings.Join(clean, ",")
}

func parseActionsCSV(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

package eventbus

import "strings"

// criticalPatterns is the fixed allow-list of name prefixes/exact names that
// are persisted to the audit table. Patterns use the same "prefix.*" /
// exact / "*" grammar as subscriptions.
var criticalPatterns = []string{
	"access.denied",
	"access.escalation",
	"security.*",
	"failure.*",
	"agent.error",
	"commitment.made",
	"homekit.anomaly",
	"relationship.flag",
	"delegation.timeout",
	"delegation.failed",
	"iam.anomaly",
	"system.error",
}

// isCritical reports whether name matches the critical allow-list.
func isCritical(name string) bool {
	for _, p := range criticalPatterns {
		if matches(p, name) {
			return true
		}
	}
	return false
}

// severityFor derives a severity label from keywords in the event name, per
// spec.md §4.1: "security"/"failure" → critical; "error" → error;
// "access"/"forget" → warning; else info.
func severityFor(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "security"), strings.Contains(lower, "failure"):
		return "critical"
	case strings.Contains(lower, "error"):
		return "error"
	case strings.Contains(lower, "access"), strings.Contains(lower, "forget"):
		return "warning"
	default:
		return "info"
	}
}

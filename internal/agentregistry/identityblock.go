package agentregistry

import "strings"

// BuildIdentityBlock assembles the structured textual identity block fed
// to an agent at session start. It is a pure function of the agent
// document plus the caller-supplied access level and tool list, so the
// caller decides whether to pass the agent's own stored access level or
// one clamped by the process-wide maximum.
func BuildIdentityBlock(agent *Agent, accessLevel AccessLevel, availableToolNames []string) string {
	var b strings.Builder

	b.WriteString("# Identity\n")
	b.WriteString("Name: " + agent.Name + "\n")
	if agent.Pronouns != "" {
		b.WriteString("Pronouns: " + agent.Pronouns + "\n")
	}
	if agent.Role != "" {
		b.WriteString("Role: " + agent.Role + "\n")
	}
	if agent.VoiceTone != "" {
		b.WriteString("Voice/tone: " + agent.VoiceTone + "\n")
	}

	b.WriteString("\n# Access\n")
	b.WriteString("Level: " + accessLevel.Name() + "\n")
	if len(availableToolNames) > 0 {
		b.WriteString("Available tools: " + strings.Join(availableToolNames, ", ") + "\n")
	} else {
		b.WriteString("Available tools: none\n")
	}
	if len(agent.DirectoryScopes) > 0 {
		b.WriteString("Directory scopes: " + strings.Join(agent.DirectoryScopes, ", ") + "\n")
	}

	if agent.CoreValues != "" {
		b.WriteString("\n# Behavior rules\n")
		b.WriteString(agent.CoreValues + "\n")
	}

	if agent.TopicsToAvoid != "" {
		b.WriteString("\n# Topics to avoid\n")
		b.WriteString(agent.TopicsToAvoid + "\n")
	}

	if agent.CustomInstructions != "" {
		b.WriteString("\n# Custom instructions\n")
		b.WriteString(agent.CustomInstructions + "\n")
	}

	if agent.BackgroundKnowledge != "" {
		b.WriteString("\n# Background\n")
		b.WriteString(agent.BackgroundKnowledge + "\n")
	}

	return b.String()
}

package agentregistry

import (
	"strings"
	"testing"
)

func TestBuildIdentityBlockIncludesOptionalSections(t *testing.T) {
	agent := &Agent{
		Name:               "Helper",
		Pronouns:           "she/her",
		Role:               "research assistant",
		TopicsToAvoid:      "medical advice",
		CustomInstructions: "cite sources",
	}
	block := BuildIdentityBlock(agent, LevelWrite, []string{"search", "fetch"})

	if !strings.Contains(block, "Level: WRITE") {
		t.Errorf("expected access level name in block:\n%s", block)
	}
	if !strings.Contains(block, "search, fetch") {
		t.Errorf("expected tool list in block:\n%s", block)
	}
	if !strings.Contains(block, "medical advice") {
		t.Errorf("expected topics-to-avoid section in block:\n%s", block)
	}
	if !strings.Contains(block, "cite sources") {
		t.Errorf("expected custom instructions section in block:\n%s", block)
	}
	if strings.Contains(block, "# Background") {
		t.Errorf("did not expect background section when empty:\n%s", block)
	}
}

func TestBuildIdentityBlockNoToolsAvailable(t *testing.T) {
	agent := &Agent{Name: "Quiet"}
	block := BuildIdentityBlock(agent, LevelOff, nil)
	if !strings.Contains(block, "Available tools: none") {
		t.Errorf("expected 'none' for empty tool list:\n%s", block)
	}
}

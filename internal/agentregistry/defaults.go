package agentregistry

import "time"

// builtInID is the reserved id for the single always-present built-in
// agent persona. It cannot be deleted and is recreated or upgraded on
// every bootstrap per spec.md §4.2.
const builtInID = "assistant"

// newBuiltInAgent returns the canonical built-in agent persona document.
// Called both on first bootstrap (no registry yet) and, conceptually, as
// the comparison target for upgrade detection against whatever shipped in
// older builds (see knownPreviousDefaults).
func newBuiltInAgent(now time.Time) *Agent {
	return &Agent{
		ID:                  builtInID,
		IsBuiltIn:           true,
		CreatedAt:           now,
		Name:                "Assistant",
		Pronouns:            "they/them",
		Role:                "general-purpose assistant",
		VoiceTone:           "warm, direct",
		PersonalityPreset:   "balanced",
		CoreValues:          "honesty, helpfulness, respect for the user's time",
		TopicsToAvoid:       "",
		CustomInstructions:  "",
		BackgroundKnowledge: "",
		ElevenLabsVoiceID:   "",
		FallbackTTSVoice:    "default",
		AccessLevel:         LevelRead,
		DirectoryScopes:     []string{},
		EnabledSkillIDs:     []string{},
		EnabledCapabilities: nil,
	}
}

// knownPreviousDefaults holds every built-in persona field combination
// that has shipped as "the default" in a prior release. Bootstrap treats a
// persisted built-in agent whose mutable fields exactly match one of
// these entries as "never customized by the user" and safe to upgrade to
// the current newBuiltInAgent() template. Any persisted agent that
// doesn't match one of these (or the current default) is assumed to carry
// user edits and is left untouched.
var knownPreviousDefaults = []struct {
	Name              string
	Role              string
	PersonalityPreset string
}{
	{Name: "Assistant", Role: "general-purpose assistant", PersonalityPreset: "neutral"},
	{Name: "Torbo", Role: "assistant", PersonalityPreset: "balanced"},
}

// matchesKnownPreviousDefault reports whether agent's customizable persona
// fields equal one of knownPreviousDefaults, meaning it is a stock
// built-in from an earlier release rather than a user-edited persona.
func matchesKnownPreviousDefault(agent *Agent) bool {
	for _, d := range knownPreviousDefaults {
		if agent.Name == d.Name && agent.Role == d.Role && agent.PersonalityPreset == d.PersonalityPreset {
			return true
		}
	}
	return false
}

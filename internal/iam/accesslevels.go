package iam

// resourceGrant is one (resource, actions) pair in the default grant
// table for an access level.
type resourceGrant struct {
	Resource string
	Actions  []string
}

// defaultGrantsByLevel maps an agent access level (0 OFF .. 5 FULL) to the
// set of permissions auto_migrate_existing_agents grants it, per
// spec.md's access-level → default-permissions table. Each level's grants
// are cumulative with the ones below it.
var defaultGrantsByLevel = map[int][]resourceGrant{
	0: {},
	1: {
		{Resource: "tool:web_search", Actions: []string{"use"}},
		{Resource: "tool:web_fetch", Actions: []string{"use"}},
	},
	2: {
		{Resource: "tool:web_search", Actions: []string{"use"}},
		{Resource: "tool:web_fetch", Actions: []string{"use"}},
		{Resource: "file:*", Actions: []string{"read"}},
		{Resource: "tool:list_directory", Actions: []string{"use"}},
		{Resource: "tool:read_file", Actions: []string{"use"}},
		{Resource: "tool:search_files", Actions: []string{"use"}},
		{Resource: "tool:screenshot", Actions: []string{"use"}},
	},
	3: {
		{Resource: "tool:web_search", Actions: []string{"use"}},
		{Resource: "tool:web_fetch", Actions: []string{"use"}},
		{Resource: "file:*", Actions: []string{"read", "write"}},
		{Resource: "tool:list_directory", Actions: []string{"use"}},
		{Resource: "tool:read_file", Actions: []string{"use"}},
		{Resource: "tool:search_files", Actions: []string{"use"}},
		{Resource: "tool:screenshot", Actions: []string{"use"}},
		{Resource: "tool:write_file", Actions: []string{"use"}},
		{Resource: "tool:clipboard", Actions: []string{"use"}},
	},
	4: {
		{Resource: "tool:web_search", Actions: []string{"use"}},
		{Resource: "tool:web_fetch", Actions: []string{"use"}},
		{Resource: "file:*", Actions: []string{"read", "write"}},
		{Resource: "tool:list_directory", Actions: []string{"use"}},
		{Resource: "tool:read_file", Actions: []string{"use"}},
		{Resource: "tool:search_files", Actions: []string{"use"}},
		{Resource: "tool:screenshot", Actions: []string{"use"}},
		{Resource: "tool:write_file", Actions: []string{"use"}},
		{Resource: "tool:clipboard", Actions: []string{"use"}},
		{Resource: "tool:*", Actions: []string{"use"}},
		{Resource: "tool:run_command", Actions: []string{"use", "execute"}},
		{Resource: "tool:execute_code", Actions: []string{"use", "execute"}},
	},
	5: {
		{Resource: "*", Actions: []string{"*"}},
	},
}

// grantsForLevel returns the default grants for level, or an empty slice
// for any level outside 0..5.
func grantsForLevel(level int) []resourceGrant {
	grants, ok := defaultGrantsByLevel[level]
	if !ok {
		return nil
	}
	return grants
}

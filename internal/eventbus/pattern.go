package eventbus

import "strings"

// matches implements the event bus's pattern grammar (spec.md §4.1):
//   - "*"            matches any name
//   - exact string    matches only that name
//   - "prefix.*"      matches "prefix" itself and any name starting "prefix."
func matches(pattern, name string) bool {
	if pattern == "*" {
		return true
	}
	if pattern == name {
		return true
	}
	if strings.HasSuffix(pattern, ".*") {
		prefix := strings.TrimSuffix(pattern, ".*")
		if name == prefix {
			return true
		}
		return strings.HasPrefix(name, prefix+".")
	}
	return false
}

package iam

import "strings"

// matches implements the IAM resource-pattern grammar, distinct from the
// event bus's topic-pattern grammar:
//
//	pattern == target        exact match
//	"*"                      matches anything
//	"prefix*"                matches any target starting with "prefix"
//	"prefix:*"               matches any target starting with "prefix:"
//	anything else            no match
func matches(pattern, target string) bool {
	if pattern == target {
		return true
	}
	if pattern == "*" {
		return true
	}
	if strings.HasSuffix(pattern, "*") {
		prefix := strings.TrimSuffix(pattern, "*")
		return strings.HasPrefix(target, prefix)
	}
	return false
}

package iam

import "testing"

func TestMatches(t *testing.T) {
	cases := []struct {
		pattern, target string
		want            bool
	}{
		{"file:/a.txt", "file:/a.txt", true},
		{"file:/a.txt", "file:/b.txt", false},
		{"*", "anything", true},
		{"file:*", "file:/a.txt", true},
		{"file:*", "tool:x", false},
		{"tool:*", "tool:web_search", true},
		{"tool:execute_", "tool:execute_code", false},
	}
	for _, c := range cases {
		if got := matches(c.pattern, c.target); got != c.want {
			t.Errorf("matches(%q, %q) = %v, want %v", c.pattern, c.target, got, c.want)
		}
	}
}

func TestActionsCSVSortsAndDedupes(t *testing.T) {
	got := actionsCSV([]string{"write", "read", "read", " "})
	if got != "read,write" {
		t.Fatalf("actionsCSV = %q, want %q", got, "read,write")
	}
}

func TestParseActionsCSV(t *testing.T) {
	got := parseActionsCSV("read,write")
	if len(got) != 2 || got[0] != "read" || got[1] != "write" {
		t.Fatalf("unexpected parse result: %v", got)
	}
	if parseActionsCSV("") != nil {
		t.Fatal("expected nil for empty csv")
	}
}

package jira

import "strings"

// ValidProject reports whether s looks like a Jira project key: an
// uppercase letter followed by uppercase letters, digits or underscores.
func ValidProject(s string) bool {
	if len(s) < 1 || len(s) > 255 {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'A' && r <= 'Z':
		case i > 0 && (r >= '0' && r <= '9' || r == '_'):
		default:
			return false
		}
	}
	return true
}

// ValidKey reports whether s looks like an issue key such as "OPS-123".
func ValidKey(s string) bool {
	project, num, ok := strings.Cut(s, "-")
	if !ok || !ValidProject(project) || num == "" {
		return false
	}
	for _, r := range num {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

package render

import (
	"regexp"
	"strings"
)

var (
	jiraHeading = regexp.MustCompile(`^h[1-6]\.\s+(.*)$`)
	jiraBullet  = regexp.MustCompile(`^(\*+|-)\s+(.*)$`)
	jiraNumber  = regexp.MustCompile(`^#+\s+(.*)$`)
	jiraLink    = regexp.MustCompile(`\[([^\[\]|]+)\|([^\[\]]+)\]`)
	jiraBare    = regexp.MustCompile(`\[(https?://[^\[\]|]+)\]`)
	jiraMono    = regexp.MustCompile(`\{\{([^}]*)\}\}`)
	jiraBlock   = regexp.MustCompile(`^\{(code|noformat)(:[^}]*)?\}$`)
)

// JiraToMrkdwn converts the Jira wiki markup produced for descriptions into
// Slack mrkdwn, for previews. Bold and italic markers are the same in both.
func JiraToMrkdwn(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	inCode := false
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if jiraBlock.MatchString(trimmed) {
			inCode = !inCode
			out = append(out, "```")
			continue
		}
		if inCode {
			out = append(out, line)
			continue
		}

		switch {
		case jiraHeading.MatchString(trimmed):
			line = "*" + jiraHeading.FindStringSubmatch(trimmed)[1] + "*"
		case jiraBullet.MatchString(trimmed):
			m := jiraBullet.FindStringSubmatch(trimmed)
			indent := strings.Repeat("  ", len(m[1])-1)
			line = indent + "• " + m[2]
		case jiraNumber.MatchString(trimmed):
			line = "1. " + jiraNumber.FindStringSubmatch(trimmed)[1]
		}
		out = append(out, convertInline(line))
	}
	return strings.Join(out, "\n")
}

func convertInline(s string) string {
	s = jiraLink.ReplaceAllString(s, "<$2|$1>")
	s = jiraBare.ReplaceAllString(s, "<$1>")
	s = jiraMono.ReplaceAllString(s, "`$1`")
	return s
}

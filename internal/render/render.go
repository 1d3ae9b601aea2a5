// Package render fills {{key}} placeholders in notification templates.
package render

import (
	"regexp"
	"strings"

	"github.com/spec-kit/case-service/internal/domain"
)

var placeholder = regexp.MustCompile(`(?s)\{\{(.*?)\}\}`)

// Render replaces every {{key}} with vars[key]. The key is the exact text
// between the braces and may contain spaces or braces; when several keys fit
// at one position the longest wins. A placeholder naming no variable renders
// as the empty string. Substituted values are never expanded again.
func Render(template string, vars map[string]string) string {
	var b strings.Builder
	b.Grow(len(template))
	rest := template
	for {
		start := strings.Index(rest, "{{")
		if start < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:start])
		inner := rest[start+2:]

		if key, ok := longestKey(inner, vars); ok {
			b.WriteString(vars[key])
			rest = inner[len(key)+2:]
			continue
		}
		end := strings.Index(inner, "}}")
		if end < 0 {
			b.WriteString(rest[start:])
			return b.String()
		}
		rest = inner[end+2:]
	}
}

// longestKey finds the longest variable name k such that s starts with k+"}}".
func longestKey(s string, vars map[string]string) (string, bool) {
	best, found := "", false
	for k := range vars {
		if (!found || len(k) > len(best)) && strings.HasPrefix(s, k) && strings.HasPrefix(s[len(k):], "}}") {
			best, found = k, true
		}
	}
	return best, found
}

// Placeholders lists the text inside each {{...}} in order of appearance.
func Placeholders(template string) []string {
	matches := placeholder.FindAllStringSubmatch(template, -1)
	keys := make([]string, 0, len(matches))
	for _, m := range matches {
		keys = append(keys, m[1])
	}
	return keys
}

var defaultTemplates = map[domain.NotificationEvent]string{
	domain.NotificationCaseCreated: "New case {{caseNumber}} [{{severity}}]\n" +
		"{{title}}\n" +
		"Customer: {{customerName}}\n" +
		"Type: {{caseType}}\n" +
		"Owner: {{ownerName}}\n" +
		"SLA deadline: {{slaDeadline}}",
	domain.NotificationSLAUrgent: "SLA warning: case {{caseNumber}} is due in {{minutesRemaining}} minutes\n" +
		"{{title}}\n" +
		"Status: {{status}} | Severity: {{severity}} | Owner: {{ownerName}}",
	domain.NotificationSLAMissed: "SLA missed: case {{caseNumber}} is {{minutesOverdue}} minutes overdue\n" +
		"{{title}}\n" +
		"Status: {{status}} | Severity: {{severity}} | Owner: {{ownerName}}",
}

// DefaultTemplate returns the built-in body for event, used until a template
// row is configured.
func DefaultTemplate(event domain.NotificationEvent) (string, bool) {
	body, ok := defaultTemplates[event]
	return body, ok
}

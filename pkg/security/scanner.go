// Package security detects and redacts likely secrets in captured
// variables before they leave the process.
package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

// RedactedValue replaces every flagged variable value.
const RedactedValue = "[REDACTED]"

// Severity levels for security flags.
const (
	SeverityMedium = "medium"
	SeverityHigh   = "high"
)

// Flag is a single security finding attached to a snapshot.
type Flag struct {
	Type     string `json:"type"`
	Severity string `json:"severity"`
	Variable string `json:"variable"`
}

var sensitiveName = regexp.MustCompile(`(?i)password|secret|token|key|credential`)

// dataPattern pairs a pattern name with its detection regexp. Evaluation
// order is fixed: the first matching pattern wins and the rest are not
// tested, so reordering changes the reported flag type.
type dataPattern struct {
	name string
	re   *regexp.Regexp
}

var dataPatterns = []dataPattern{
	{"password", regexp.MustCompile(`(?i)(password|passwd|pwd)\s*[=:]\s*['"]?[^'"\s]{6,}`)},
	{"api_key", regexp.MustCompile(`(?i)(api[_-]?key|apikey)\s*[=:]\s*['"]?[a-zA-Z0-9_\-]{20,}`)},
	{"jwt", regexp.MustCompile(`eyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+`)},
	{"credit_card", regexp.MustCompile(`\b(?:4[0-9]{12}(?:[0-9]{3})?|5[1-5][0-9]{14})\b`)},
}

// Scan inspects every top-level variable by name and by serialized value,
// substituting RedactedValue for anything that looks like a secret. The
// input is expected to be already sanitized; nested structure is not
// inspected. Variable names are visited in sorted order so the returned
// flag sequence is deterministic.
func Scan(vars map[string]any) (map[string]any, []Flag) {
	out := make(map[string]any, len(vars))
	var flags []Flag

	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		value := vars[name]

		if sensitiveName.MatchString(name) {
			out[name] = RedactedValue
			flags = append(flags, Flag{
				Type:     "sensitive_variable_name",
				Severity: SeverityMedium,
				Variable: name,
			})
			continue
		}

		if pattern, matched := matchValue(value); matched {
			out[name] = RedactedValue
			flags = append(flags, Flag{
				Type:     "sensitive_data_" + pattern,
				Severity: SeverityHigh,
				Variable: name,
			})
			continue
		}

		out[name] = value
	}

	return out, flags
}

func matchValue(value any) (string, bool) {
	serialized := serialize(value)
	for _, p := range dataPatterns {
		if p.re.MatchString(serialized) {
			return p.name, true
		}
	}
	return "", false
}

func serialize(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Sprintf("%v", value)
	}
	return string(data)
}

package memory

import (
	"regexp"
	"strings"
)

// The PII guard keeps secrets and government identifiers out of the
// vault. Stable personal facts, preferences, and project state are fine
// to store; passwords, keys, SSNs, and card numbers are not.

type piiPattern struct {
	re    *regexp.Regexp
	label string
}

var piiPatterns = []piiPattern{
	{regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`), "SSN (xxx-xx-xxxx)"},
	{regexp.MustCompile(`\b\d{9}\b`), "potential SSN (9 consecutive digits)"},
	{regexp.MustCompile(`\b(?:\d[ -]?){13,19}\b`), "credit/debit card number"},
}

var blockedKeywords = []string{
	"password:", "passwd:", "api_key:", "apikey:", "api key:",
	"secret_key:", "secretkey:", "secret key:",
	"access_token:", "auth_token:", "bearer ",
	"ssn:", "social security number:",
}

// CheckPII returns violation descriptions for sensitive content in
// text. An empty slice means the text is safe to store. Pure function,
// no side effects.
func CheckPII(text string) []string {
	var violations []string
	lower := strings.ToLower(strings.TrimSpace(text))

	for _, keyword := range blockedKeywords {
		if strings.Contains(lower, keyword) {
			label := strings.TrimSpace(strings.TrimSuffix(keyword, ":"))
			violations = append(violations, "blocked keyword detected: '"+label+"'")
		}
	}

	for _, p := range piiPatterns {
		if p.re.MatchString(text) {
			violations = append(violations, "pattern match: "+p.label)
		}
	}

	return violations
}

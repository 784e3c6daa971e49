package memory

import (
	"strings"
	"testing"
)

func TestCheckPIIClean(t *testing.T) {
	clean := []string{
		"alpha prefers green tea in the morning",
		"order #12345 shipped on the 3rd",
		"meeting at 4:15, room 302",
	}
	for _, text := range clean {
		if got := CheckPII(text); len(got) != 0 {
			t.Errorf("CheckPII(%q) = %v, want none", text, got)
		}
	}
}

func TestCheckPIIPatterns(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{"ssn is 123-45-6789", "ssn"},
		{"id number 123456789 on file", "ssn"},
		{"card 4111111111111111 expires soon", "card"},
	}
	for _, tc := range cases {
		got := CheckPII(tc.text)
		if len(got) == 0 {
			t.Errorf("CheckPII(%q) found nothing", tc.text)
			continue
		}
		if !strings.Contains(strings.ToLower(got[0]), tc.want) {
			t.Errorf("CheckPII(%q) = %v, want mention of %q", tc.text, got, tc.want)
		}
	}
}

func TestCheckPIIBlockedKeywords(t *testing.T) {
	secrets := []string{
		"password: hunter2",
		"api_key: sk-abcdef",
		"use bearer eyJhbGciOi to authenticate",
		"SSN: redacted but the label alone is enough",
	}
	for _, text := range secrets {
		if got := CheckPII(text); len(got) == 0 {
			t.Errorf("CheckPII(%q) found nothing", text)
		}
	}
}

func TestCheckPIIReportsAllViolations(t *testing.T) {
	text := "password: hunter2 and ssn 123-45-6789"
	if got := CheckPII(text); len(got) < 2 {
		t.Errorf("CheckPII = %v, want at least 2 violations", got)
	}
}

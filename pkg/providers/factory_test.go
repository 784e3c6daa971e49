package providers

import (
	"context"
	"strings"
	"testing"
)

type fakeProvider struct{ model string }

func (f *fakeProvider) Chat(context.Context, []Message, []ToolDefinition, string, map[string]interface{}) (*LLMResponse, error) {
	return &LLMResponse{Content: "ok", FinishReason: "stop"}, nil
}
func (f *fakeProvider) GetDefaultModel() string { return f.model }

func TestNormalizeName(t *testing.T) {
	if got := NormalizeName("  OpenAI "); got != ProviderOpenAI {
		t.Errorf("NormalizeName = %q", got)
	}
	if got := NormalizeName(""); got != ProviderOpenAI {
		t.Errorf("empty name = %q, want openai default", got)
	}
}

func TestCreateUnknownProvider(t *testing.T) {
	_, err := Create("definitely-not-registered", Settings{APIKey: "k"})
	if err == nil {
		t.Fatal("want error for unknown provider")
	}
	if !strings.Contains(err.Error(), "supported:") {
		t.Errorf("error should list supported providers: %v", err)
	}
}

func TestCreateRegisteredFake(t *testing.T) {
	RegisterFactory("fake-for-test", func(s Settings) (LLMProvider, error) {
		return &fakeProvider{model: s.Model}, nil
	})
	p, err := Create("Fake-For-Test", Settings{Model: "m1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if p.GetDefaultModel() != "m1" {
		t.Errorf("model = %q", p.GetDefaultModel())
	}
}

func TestBuiltinsRegistered(t *testing.T) {
	supported := SupportedProviders()
	for _, want := range []string{ProviderOpenAI, ProviderOpenRouter, ProviderAnthropic} {
		found := false
		for _, name := range supported {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Errorf("%s not registered: %v", want, supported)
		}
	}
}

func TestProviderRequiresAPIKey(t *testing.T) {
	for _, name := range []string{ProviderOpenAI, ProviderAnthropic, ProviderOpenRouter} {
		if _, err := Create(name, Settings{}); err == nil {
			t.Errorf("%s: want error without api key", name)
		}
	}
}

func TestParseToolArguments(t *testing.T) {
	args := parseToolArguments(`{"action":"search","top_k":3}`)
	if args["action"] != "search" || args["top_k"] != float64(3) {
		t.Errorf("args = %v", args)
	}

	broken := parseToolArguments(`{"action":`)
	if broken["raw"] != `{"action":` {
		t.Errorf("malformed args = %v, want raw passthrough", broken)
	}

	if got := parseToolArguments("  "); len(got) != 0 {
		t.Errorf("empty args = %v", got)
	}
}

func TestMapStopReason(t *testing.T) {
	cases := map[string]string{
		"end_turn":   "stop",
		"tool_use":   "tool_calls",
		"max_tokens": "length",
		"other":      "other",
	}
	for in, want := range cases {
		if got := mapStopReason(in); got != want {
			t.Errorf("mapStopReason(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSplitSystemMessages(t *testing.T) {
	system, turns := splitSystemMessages([]Message{
		{Role: RoleSystem, Content: "you are terse"},
		{Role: RoleUser, Content: "hello"},
		{Role: RoleAssistant, Content: "hi", ToolCalls: []ToolCall{{ID: "c1", Name: "memory", Arguments: map[string]interface{}{"action": "stats"}}}},
		{Role: RoleTool, ToolCallID: "c1", Content: `{"status":"ok"}`},
	})
	if system != "you are terse" {
		t.Errorf("system = %q", system)
	}
	if len(turns) != 3 {
		t.Errorf("turns = %d, want 3", len(turns))
	}
}

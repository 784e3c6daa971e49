package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Profile is a named capability grant: which tools the agent may call,
// under which identity, with what per-tick limits. Profiles are plain
// YAML files an operator edits by hand; denial payloads point at them.
type Profile struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Provider     string   `yaml:"provider"`
	Model        string   `yaml:"model"`
	AllowedTools []string `yaml:"allowed_tools"`
	Scopes       []string `yaml:"scopes"`

	// Zero values inherit the runner config.
	MaxStepsPerTick  int `yaml:"max_steps_per_tick"`
	ToolCallsPerTick int `yaml:"tool_calls_per_tick"`
	TaskInboxPerTick int `yaml:"task_inbox_per_tick"`
}

// DefaultProfile grants only the low-risk built-ins.
func DefaultProfile() *Profile {
	return &Profile{
		Name:         "default",
		Description:  "baseline capabilities",
		Provider:     "openai",
		AllowedTools: []string{"memory", "runtime_info", "task_inbox", "operator_inbox"},
		Scopes:       []string{"shared"},
	}
}

// LoadProfile reads profiles/<name>.yaml from dir. A missing file for
// the "default" profile falls back to DefaultProfile; any other
// missing profile is an error, never a silent grant.
func LoadProfile(dir, name string) (*Profile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "default"
	}
	path := filepath.Join(dir, name+".yaml")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && name == "default" {
			return DefaultProfile(), nil
		}
		return nil, fmt.Errorf("load profile %q: %w", name, err)
	}

	p := &Profile{}
	if err := yaml.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	if len(p.Scopes) == 0 {
		p.Scopes = []string{"shared"}
	}
	return p, nil
}

// SaveProfile writes the profile to dir as <name>.yaml.
func SaveProfile(dir string, p *Profile) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, p.Name+".yaml"), data, 0o644)
}

// IsToolAllowed checks a requested capability against the allow-list.
// Requests are qualified "tool.action" names; a bare tool entry in the
// list grants every action on that tool, a qualified entry grants
// exactly one. An empty allow-list denies everything.
func (p *Profile) IsToolAllowed(capability string) bool {
	capability = strings.TrimSpace(capability)
	if capability == "" {
		return false
	}
	base, _, _ := strings.Cut(capability, ".")
	for _, entry := range p.AllowedTools {
		entry = strings.TrimSpace(entry)
		if entry == capability || entry == base {
			return true
		}
	}
	return false
}

// PrimaryScope is the scope vault writes default to.
func (p *Profile) PrimaryScope() string {
	if len(p.Scopes) == 0 {
		return "shared"
	}
	return p.Scopes[0]
}

package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Known provider names.
const (
	ProviderOpenAI     = "openai"
	ProviderOpenRouter = "openrouter"
	ProviderAnthropic  = "anthropic"
)

// Settings is everything a factory needs to build a provider. APIKey
// resolution (env, config file) happens upstream; factories only see
// the final value.
type Settings struct {
	APIKey  string
	Model   string
	BaseURL string
}

type buildFunc func(Settings) (LLMProvider, error)

var (
	factoryMu sync.RWMutex
	factories = map[string]buildFunc{}
)

// RegisterFactory installs a named provider constructor. Adapters call
// this from init; tests may register fakes.
func RegisterFactory(name string, build buildFunc) {
	name = NormalizeName(name)
	if name == "" || build == nil {
		return
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = build
}

// SupportedProviders lists registered provider names, sorted.
func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NormalizeName lowercases and trims a provider name; empty defaults
// to openai.
func NormalizeName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderOpenAI
	}
	return name
}

// Create builds the named provider from settings.
func Create(name string, settings Settings) (LLMProvider, error) {
	name = NormalizeName(name)
	factoryMu.RLock()
	build, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q (supported: %s)", name, strings.Join(SupportedProviders(), ", "))
	}
	return build(settings)
}

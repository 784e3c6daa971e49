package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lanternsoft/reverie/pkg/boundary"
	"github.com/lanternsoft/reverie/pkg/config"
	"github.com/lanternsoft/reverie/pkg/events"
	"github.com/lanternsoft/reverie/pkg/logger"
	"github.com/lanternsoft/reverie/pkg/memory"
	"github.com/lanternsoft/reverie/pkg/memory/embedder/mock"
	openaiembed "github.com/lanternsoft/reverie/pkg/memory/embedder/openai"
	"github.com/lanternsoft/reverie/pkg/metering"
	"github.com/lanternsoft/reverie/pkg/providers"
	"github.com/lanternsoft/reverie/pkg/runner"
	"github.com/lanternsoft/reverie/pkg/tools"
)

// appRuntime wires the full stack for one CLI invocation: config,
// profile, vault and index, tool registry, provider, pricing.
type appRuntime struct {
	cfg      *config.Config
	profile  *config.Profile
	vault    *memory.Vault
	index    *memory.Index
	registry *tools.ToolRegistry
	recorder *boundary.Recorder
	provider providers.LLMProvider
	pricing  *metering.PricingTable
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "reverie.json"
	}
	return filepath.Join(home, ".reverie", "config.json")
}

// newRuntime loads config and builds everything a command needs.
// withProvider=false skips the model backend so vault commands work
// without an API key.
func newRuntime(configPath, profileName string, withProvider bool) (*appRuntime, error) {
	if configPath == "" {
		configPath = defaultConfigPath()
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(cfg.Logging.Level)

	if profileName == "" {
		profileName = cfg.Runtime.Profile
	}
	profile, err := config.LoadProfile(cfg.ProfilesDir(), profileName)
	if err != nil {
		return nil, err
	}

	vault, err := memory.NewVault(memory.VaultConfig{
		Path:               cfg.VaultPath(),
		Capacity:           cfg.Memory.Capacity,
		DuplicateThreshold: cfg.Memory.DuplicateThreshold,
		OverlapThreshold:   cfg.Memory.OverlapThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("open vault: %w", err)
	}

	index := buildIndex(cfg, vault)

	recorder, err := boundary.NewRecorder(cfg.BoundaryLogPath())
	if err != nil {
		return nil, fmt.Errorf("open boundary log: %w", err)
	}

	registry := tools.NewToolRegistry()
	registry.Register(tools.NewMemoryTool(vault, index, profile.PrimaryScope()))
	registry.Register(tools.NewRuntimeInfoTool(profile.Name))
	taskTool, err := tools.NewTaskInboxTool(cfg.TaskDBPath(), taskInboxCap(cfg, profile))
	if err != nil {
		return nil, fmt.Errorf("open task inbox: %w", err)
	}
	registry.Register(taskTool)
	registry.Register(tools.NewOperatorInboxTool(cfg.OutboxPath(), recorder, profile.Name))

	rt := &appRuntime{
		cfg:      cfg,
		profile:  profile,
		vault:    vault,
		index:    index,
		registry: registry,
		recorder: recorder,
		pricing:  loadPricing(cfg),
	}

	if withProvider {
		name := providers.NormalizeName(profile.Provider)
		apiKey, apiBase := cfg.ProviderSettings(name)
		provider, err := providers.Create(name, providers.Settings{
			APIKey:  apiKey,
			BaseURL: apiBase,
			Model:   profile.Model,
		})
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.provider = provider
	}

	return rt, nil
}

func taskInboxCap(cfg *config.Config, profile *config.Profile) int {
	if profile.TaskInboxPerTick > 0 {
		return profile.TaskInboxPerTick
	}
	return cfg.Runner.TaskInboxPerTick
}

// buildIndex wires the semantic layer when an embedder is available;
// without one the vault falls back to lexical search.
func buildIndex(cfg *config.Config, vault *memory.Vault) *memory.Index {
	var embedder memory.Embedder
	switch strings.ToLower(cfg.Memory.Embedder) {
	case "mock":
		embedder = mock.New()
	case "openai", "":
		apiKey, apiBase := cfg.ProviderSettings("openai")
		if apiKey == "" {
			logger.WarnCF("runtime", "no openai key, semantic search disabled", nil)
			return nil
		}
		e, err := openaiembed.New(openaiembed.Config{
			APIKey:  apiKey,
			BaseURL: apiBase,
			Model:   cfg.Memory.EmbeddingModel,
		})
		if err != nil {
			logger.WarnCF("runtime", "embedder init failed, semantic search disabled", map[string]interface{}{"error": err.Error()})
			return nil
		}
		embedder = e
	case "none":
		return nil
	default:
		logger.WarnCF("runtime", "unknown embedder, semantic search disabled", map[string]interface{}{"embedder": cfg.Memory.Embedder})
		return nil
	}

	index, err := memory.NewIndex(vault, embedder)
	if err != nil {
		logger.WarnCF("runtime", "index init failed, semantic search disabled", map[string]interface{}{"error": err.Error()})
		return nil
	}
	if n, err := index.Rebuild(context.Background()); err != nil {
		logger.WarnCF("runtime", "index warm-up failed", map[string]interface{}{"error": err.Error()})
	} else if n > 0 {
		logger.InfoCF("runtime", "semantic index ready", map[string]interface{}{"records": n})
	}
	return index
}

func loadPricing(cfg *config.Config) *metering.PricingTable {
	path := cfg.PricingPath()
	if path == "" {
		return nil
	}
	table, err := metering.LoadPricingTable(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.WarnCF("runtime", "pricing table unavailable, reporting raw tokens only", map[string]interface{}{"error": err.Error()})
		}
		return nil
	}
	return table
}

// executor builds a runner wired to an event stream for live output.
func (rt *appRuntime) executor(stream *events.Stream) *runner.Executor {
	return &runner.Executor{
		Provider: rt.provider,
		Registry: rt.registry,
		Vault:    rt.vault,
		Index:    rt.index,
		Profile:  rt.profile,
		Recorder: rt.recorder,
		Pricing:  rt.pricing,
		Stream:   stream,
		Runner:   rt.cfg.Runner,
		Model:    rt.profile.Model,
	}
}

func (rt *appRuntime) Close() {
	if err := rt.registry.Close(); err != nil {
		logger.WarnCF("runtime", "tool teardown failed", map[string]interface{}{"error": err.Error()})
	}
}

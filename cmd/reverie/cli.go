package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lanternsoft/reverie/pkg/config"
	"github.com/lanternsoft/reverie/pkg/events"
	"github.com/lanternsoft/reverie/pkg/memory"
	"github.com/lanternsoft/reverie/pkg/runner"
)

func executeCLI() error {
	return buildRootCommand().Execute()
}

func buildRootCommand() *cobra.Command {
	var showVersion bool

	root := &cobra.Command{
		Use:   "reverie",
		Short: "Autonomous agent runtime with a durable memory vault",
		Long: strings.TrimSpace(`reverie runs bounded autonomous agent ticks against a versioned,
append-only memory vault. Use bursts for unattended runs, the console
for interactive ones, and the vault commands for memory maintenance.`),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showVersion {
				printVersion()
				return nil
			}
			_ = cmd.Help()
			return fmt.Errorf("a subcommand is required")
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.Flags().BoolVarP(&showVersion, "version", "v", false, "Show build/version metadata")

	root.AddCommand(newInitCommand())
	root.AddCommand(newBurstCommand())
	root.AddCommand(newConsoleCommand())
	root.AddCommand(newVaultCommand())
	root.AddCommand(newScheduleCommand())
	root.AddCommand(newBoundaryCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func addRuntimeFlags(cmd *cobra.Command, configPath, profile *string) {
	cmd.Flags().StringVar(configPath, "config", "", "Config file (default ~/.reverie/config.json)")
	cmd.Flags().StringVar(profile, "profile", "", "Capability profile name (default from config)")
}

func newInitCommand() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Create the default config, profile, and pricing files",
		Example: "  reverie init",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				configPath = defaultConfigPath()
			}
			if _, err := os.Stat(configPath); err == nil {
				return fmt.Errorf("%s already exists", configPath)
			}
			cfg := config.DefaultConfig()
			if err := config.SaveConfig(configPath, cfg); err != nil {
				return err
			}
			if err := config.SaveProfile(cfg.ProfilesDir(), config.DefaultProfile()); err != nil {
				return err
			}
			pricing := cfg.PricingPath()
			if _, err := os.Stat(pricing); os.IsNotExist(err) {
				if err := os.MkdirAll(filepath.Dir(pricing), 0o755); err != nil {
					return err
				}
				if err := os.WriteFile(pricing, []byte(samplePricing), 0o644); err != nil {
					return err
				}
			}
			fmt.Printf("Initialized %s\n", filepath.Dir(configPath))
			fmt.Println("Set an API key (OPENAI_API_KEY or ANTHROPIC_API_KEY) and run: reverie burst")
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "Config file (default ~/.reverie/config.json)")
	return cmd
}

const samplePricing = `# per-million-token rates, used for burst cost reporting
gpt-4o-mini:
  prompt_per_mtok: 0.15
  completion_per_mtok: 0.60
claude-sonnet-4-20250514:
  prompt_per_mtok: 3.00
  completion_per_mtok: 15.00
_default:
  prompt_per_mtok: 1.00
  completion_per_mtok: 3.00
`

func newBurstCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		ticks      int
		stimulus   string
	)
	cmd := &cobra.Command{
		Use:   "burst",
		Short: "Run N autonomous ticks and report the outcomes",
		Example: strings.Join([]string{
			"  reverie burst",
			"  reverie burst --ticks 5",
			"  reverie burst --stimulus \"review the open tasks\"",
		}, "\n"),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if ticks <= 0 {
				ticks = rt.cfg.Runner.DefaultTicks
			}

			stream := events.NewStream()
			done := make(chan struct{})
			go func() {
				defer close(done)
				printEvents(stream)
			}()

			result := rt.executor(stream).RunBurst(cmd.Context(), ticks, stimulus)
			stream.Close()
			<-done

			printBurstResult(result)
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 0, "Ticks to run (default from config)")
	cmd.Flags().StringVarP(&stimulus, "stimulus", "s", "", "External stimulus injected into every tick")
	return cmd
}

func printEvents(stream *events.Stream) {
	ctx := context.Background()
	for {
		event, ok := stream.Next(ctx)
		if !ok {
			return
		}
		switch event.Kind {
		case events.KindTickStarted:
			fmt.Printf("── tick %d ──\n", event.TickIndex)
		case events.KindStep:
			fmt.Printf("  step %d [%s] %s\n", event.Step+1, event.Action, event.Summary)
		case events.KindToolResult:
			status := "ok"
			if event.IsError {
				status = "error"
			}
			fmt.Printf("    tool %s -> %s\n", event.Action, status)
		case events.KindDenial:
			fmt.Printf("    tool %s -> denied\n", event.Action)
		case events.KindToolCall:
			if event.IsError {
				fmt.Printf("    tool %s -> blocked (cap)\n", event.Action)
			}
		case events.KindMemoryFlush:
			fmt.Printf("  memories: %s\n", event.Summary)
		case events.KindError:
			fmt.Printf("  error: %s\n", event.Detail)
		}
	}
}

func printBurstResult(result runner.BurstResult) {
	fmt.Println()
	for _, tick := range result.Ticks {
		fmt.Printf("tick %d: steps=%d tools=%d stop=%s written=%d/%d errors=%d\n",
			tick.TickIndex, tick.StepsTaken, tick.ToolsUsed, tick.StopReason,
			tick.MemoriesWritten, tick.MemoriesProposed, len(tick.Errors))
		for _, e := range tick.Errors {
			fmt.Printf("  ! %s\n", e)
		}
	}
	usage := result.Totals.Usage
	estimate := ""
	if usage.IsEstimated {
		estimate = " (estimated)"
	}
	fmt.Printf("\ntotal: %d calls, %d tokens%s", result.Totals.Calls, usage.TotalTokens, estimate)
	if result.Totals.Cost.TotalCost > 0 {
		fmt.Printf(", $%.4f", result.Totals.Cost.TotalCost)
	}
	fmt.Println()
}

func newScheduleCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		ticks      int
		stimulus   string
	)
	cmd := &cobra.Command{
		Use:     "schedule",
		Short:   "Run bursts on the configured interval or cron schedule until interrupted",
		Example: "  reverie schedule --ticks 3",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			if ticks <= 0 {
				ticks = rt.cfg.Runner.DefaultTicks
			}

			sched, err := runner.NewScheduler(rt.executor(nil), rt.cfg.Scheduler)
			if err != nil {
				return err
			}
			sched.SetBurst(ticks, stimulus)

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			sched.Start(ctx)
			fmt.Println("Scheduler running. Ctrl+C to stop.")

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
			<-sig
			fmt.Println("\nStopping...")
			cancel()
			sched.Stop()
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().IntVarP(&ticks, "ticks", "n", 0, "Ticks per scheduled burst")
	cmd.Flags().StringVarP(&stimulus, "stimulus", "s", "", "Standing stimulus for scheduled bursts")
	return cmd
}

func newBoundaryCommand() *cobra.Command {
	var (
		configPath string
		profile    string
	)
	cmd := &cobra.Command{
		Use:     "boundary",
		Short:   "List recorded capability denials and requests",
		Example: "  reverie boundary",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			recorded, err := rt.recorder.ReadEvents()
			if err != nil {
				return err
			}
			if len(recorded) == 0 {
				fmt.Println("No boundary events recorded.")
				return nil
			}
			for _, e := range recorded {
				fmt.Printf("%s  tick=%d  risk=%-4s  %s  (%s)\n",
					e.Timestamp, e.TickIndex, e.RiskLevel, e.RequestedCapability, e.Reason)
			}
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	return cmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show build/version metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			printVersion()
			return nil
		},
	}
}

// searchVault is shared by the console and the vault search command:
// semantic when the index is up, lexical otherwise.
func searchVault(rt *appRuntime, query, scope, category string, topK int) ([]memory.SearchResult, error) {
	if rt.index != nil {
		return rt.index.Search(context.Background(), query, memory.SearchOptions{Scope: scope, Category: category, TopK: topK})
	}
	return rt.vault.SearchLexical(query, scope, category, topK)
}

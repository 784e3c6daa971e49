package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/lanternsoft/reverie/pkg/events"
)

func newConsoleCommand() *cobra.Command {
	var (
		configPath string
		profile    string
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Drive ticks interactively; each line becomes a tick stimulus",
		Long: strings.TrimSpace(`Interactive mode. Every line you type runs one tick with that line as
the stimulus. Meta commands:
  /search <query>   search the vault
  /stats            vault utilization
  /tick             run a tick without a stimulus
  exit              leave`),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, true)
			if err != nil {
				return err
			}
			defer rt.Close()
			return runConsole(rt)
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	return cmd
}

func runConsole(rt *appRuntime) error {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          fmt.Sprintf("%s> ", appName),
		HistoryFile:     filepath.Join(os.TempDir(), ".reverie_history"),
		HistoryLimit:    100,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("initialize readline: %w", err)
	}
	defer rl.Close()

	fmt.Printf("%s console, profile %q (Ctrl+C to exit)\n\n", appName, rt.profile.Name)

	tickIndex := 0
	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("\nGoodbye!")
				return nil
			}
			fmt.Printf("Error reading input: %v\n", err)
			continue
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Goodbye!")
			return nil
		}
		if strings.HasPrefix(input, "/") {
			if err := runConsoleMeta(rt, input); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			if input == "/tick" {
				tickIndex++
				runConsoleTick(rt, tickIndex, "")
			}
			continue
		}

		tickIndex++
		runConsoleTick(rt, tickIndex, input)
	}
}

func runConsoleTick(rt *appRuntime, tickIndex int, stimulus string) {
	stream := events.NewStream()
	done := make(chan struct{})
	go func() {
		defer close(done)
		printEvents(stream)
	}()

	outcome := rt.executor(stream).RunTick(context.Background(), tickIndex, tickIndex, stimulus, nil)
	stream.Close()
	<-done

	if outcome.OutcomeSummary != "" {
		fmt.Printf("\n%s\n", outcome.OutcomeSummary)
	}
	fmt.Printf("(stop=%s steps=%d tools=%d written=%d/%d errors=%d)\n\n",
		outcome.StopReason, outcome.StepsTaken, outcome.ToolsUsed,
		outcome.MemoriesWritten, outcome.MemoriesProposed, len(outcome.Errors))
	for _, e := range outcome.Errors {
		fmt.Printf("  ! %s\n", e)
	}
}

func runConsoleMeta(rt *appRuntime, input string) error {
	cmd, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/tick":
		return nil // handled by the caller so it shares the tick counter
	case "/search":
		if rest == "" {
			return fmt.Errorf("usage: /search <query>")
		}
		results, err := searchVault(rt, rest, "", "", 5)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			fmt.Println("No results.")
			return nil
		}
		for _, r := range results {
			fmt.Printf("%.3f  ", r.Score)
			printMemory(r.Memory)
		}
		return nil
	case "/stats":
		stats, err := rt.vault.Stats()
		if err != nil {
			return err
		}
		fmt.Printf("active %d/%d (%.1f%%), %d deleted, %d raw lines\n",
			stats.Active, stats.Capacity, stats.UtilizationPct, stats.Deleted, stats.RawLines)
		return nil
	default:
		return fmt.Errorf("unknown command %s", cmd)
	}
}

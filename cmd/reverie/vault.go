package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lanternsoft/reverie/pkg/memory"
)

func newVaultCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vault",
		Short: "Inspect and maintain the memory vault",
	}
	cmd.AddCommand(newVaultStatusCommand())
	cmd.AddCommand(newVaultListCommand())
	cmd.AddCommand(newVaultSearchCommand())
	cmd.AddCommand(newVaultAddCommand())
	cmd.AddCommand(newVaultDeleteCommand())
	cmd.AddCommand(newVaultCompactCommand())
	cmd.AddCommand(newVaultPruneCommand())
	cmd.AddCommand(newVaultPromoteCommand())
	cmd.AddCommand(newVaultSnapshotCommand())
	return cmd
}

func newVaultStatusCommand() *cobra.Command {
	var (
		configPath string
		profile    string
	)
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show vault utilization and breakdowns",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			stats, err := rt.vault.Stats()
			if err != nil {
				return err
			}
			fmt.Printf("Vault: %s\n", rt.vault.Path())
			fmt.Printf("  active:   %d / %d (%.1f%%)\n", stats.Active, stats.Capacity, stats.UtilizationPct)
			fmt.Printf("  deleted:  %d\n", stats.Deleted)
			fmt.Printf("  raw:      %d lines (%d reclaimable by compact)\n", stats.RawLines, stats.CompactSavings)
			fmt.Printf("  bloat:    %.2fx\n", stats.BloatRatio)
			fmt.Printf("  topics:   %d register topics\n", stats.RegisterTopics)
			printBreakdown("tier", stats.ByTier)
			printBreakdown("scope", stats.ByScope)
			printBreakdown("category", stats.ByCategory)
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	return cmd
}

func printBreakdown(label string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%d", k, counts[k]))
	}
	fmt.Printf("  by %s: %s\n", label, strings.Join(parts, " "))
}

func newVaultListCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		scope      string
		tier       string
		category   string
		limit      int
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List active memories, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			active, err := rt.vault.ReadActive()
			if err != nil {
				return err
			}
			var filtered []memory.Memory
			for _, m := range active {
				if scope != "" && m.Scope != scope {
					continue
				}
				if tier != "" && string(m.Tier) != tier {
					continue
				}
				if category != "" && m.Category != category {
					continue
				}
				filtered = append(filtered, m)
			}
			sort.Slice(filtered, func(i, j int) bool { return filtered[i].CreatedAt > filtered[j].CreatedAt })
			if limit > 0 && len(filtered) > limit {
				filtered = filtered[:limit]
			}
			if len(filtered) == 0 {
				fmt.Println("No memories match.")
				return nil
			}
			for _, m := range filtered {
				printMemory(m)
			}
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().StringVar(&scope, "scope", "", "Filter by scope")
	cmd.Flags().StringVar(&tier, "tier", "", "Filter by tier (canon/register)")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum rows")
	return cmd
}

func printMemory(m memory.Memory) {
	topic := ""
	if m.TopicID != "" {
		topic = " topic=" + m.TopicID
	}
	fmt.Printf("%s v%d [%s/%s/%s]%s %s\n", m.ID, m.Version, m.Scope, m.Tier, m.Category, topic, m.Text)
}

func newVaultSearchCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		scope      string
		category   string
		topK       int
	)
	cmd := &cobra.Command{
		Use:     "search <query>",
		Short:   "Search memories (semantic when an embedder is configured)",
		Args:    cobra.MinimumNArgs(1),
		Example: "  reverie vault search \"deploy schedule\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			results, err := searchVault(rt, strings.Join(args, " "), scope, category, topK)
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
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().StringVar(&scope, "scope", "", "Filter by scope")
	cmd.Flags().StringVar(&category, "category", "", "Filter by category")
	cmd.Flags().IntVarP(&topK, "top", "k", 5, "Result count")
	return cmd
}

func newVaultAddCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		scope      string
		category   string
		tier       string
		topicID    string
		tags       []string
	)
	cmd := &cobra.Command{
		Use:     "add <text>",
		Short:   "Store a memory by hand",
		Args:    cobra.MinimumNArgs(1),
		Example: "  reverie vault add \"release train leaves thursdays\" --tier canon --category ops",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if scope == "" {
				scope = rt.profile.PrimaryScope()
			}
			m, err := rt.vault.Add(memory.AddRequest{
				Text:     strings.Join(args, " "),
				Scope:    scope,
				Category: category,
				Tier:     memory.Tier(tier),
				TopicID:  topicID,
				Tags:     tags,
				Source:   memory.SourceManual,
			})
			if err != nil {
				return err
			}
			if rt.index != nil {
				_ = rt.index.Upsert(cmd.Context(), m)
			}
			fmt.Printf("Stored %s v%d\n", m.ID, m.Version)
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().StringVar(&scope, "scope", "", "Scope (default: profile's primary scope)")
	cmd.Flags().StringVar(&category, "category", "", "Category label")
	cmd.Flags().StringVar(&tier, "tier", "", "canon or register")
	cmd.Flags().StringVar(&topicID, "topic", "", "Register topic key (upserts)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Tags (repeatable)")
	return cmd
}

func newVaultDeleteCommand() *cobra.Command {
	var (
		configPath string
		profile    string
	)
	cmd := &cobra.Command{
		Use:   "delete <id>...",
		Short: "Tombstone one or more memories",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.vault.BulkDelete(args)
			if err != nil {
				return err
			}
			for _, id := range result.Deleted {
				if rt.index != nil {
					rt.index.Remove(id)
				}
				fmt.Printf("deleted %s\n", id)
			}
			for _, id := range result.NotFound {
				fmt.Printf("not found: %s\n", id)
			}
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	return cmd
}

func newVaultCompactCommand() *cobra.Command {
	var (
		configPath string
		profile    string
	)
	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Rewrite the log to active records only",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			result, err := rt.vault.Compact()
			if err != nil {
				return err
			}
			fmt.Printf("Compacted %d -> %d lines (%d removed)\n", result.LinesBefore, result.LinesAfter, result.LinesRemoved)
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	return cmd
}

func newVaultPruneCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		scope      string
		floor      float64
	)
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Show consolidation candidates and deletion proposals (no side effects)",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if scope == "" {
				scope = rt.profile.PrimaryScope()
			}

			candidates, err := rt.vault.FindConsolidationCandidates(scope, floor)
			if err != nil {
				return err
			}
			if len(candidates) > 0 {
				fmt.Println("Near-duplicate pairs (review and merge by hand):")
				for _, c := range candidates {
					fmt.Printf("  %.3f  %s <-> %s\n", c.Score, c.FirstID, c.SecondID)
					fmt.Printf("         a: %s\n", c.First)
					fmt.Printf("         b: %s\n", c.Second)
				}
			}

			proposals, err := rt.vault.ProposeDeletions(scope)
			if err != nil {
				return err
			}
			if len(proposals) > 0 {
				fmt.Println("Deletion proposals:")
				for _, p := range proposals {
					fmt.Printf("  %s  (%s)  %s\n", p.ID, p.Reason, p.Text)
				}
			}
			if len(candidates) == 0 && len(proposals) == 0 {
				fmt.Println("Nothing to prune.")
			}
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().StringVar(&scope, "scope", "", "Scope to inspect (default: profile's primary scope)")
	cmd.Flags().Float64Var(&floor, "floor", 0.5, "Similarity floor for duplicate pairs")
	return cmd
}

func newVaultPromoteCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		text       string
		tags       []string
	)
	cmd := &cobra.Command{
		Use:     "promote <id>",
		Short:   "Promote a register memory to canon",
		Args:    cobra.ExactArgs(1),
		Example: "  reverie vault promote ab12cd34ef56 --text \"refined durable fact\"",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			m, err := rt.vault.PromoteToCanon(args[0], text, tags)
			if err != nil {
				return err
			}
			if rt.index != nil {
				_ = rt.index.Upsert(cmd.Context(), m)
			}
			fmt.Printf("Promoted %s to canon (v%d)\n", m.ID, m.Version)
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().StringVar(&text, "text", "", "Replacement text (default: keep current)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "Replacement tags")
	return cmd
}

func newVaultSnapshotCommand() *cobra.Command {
	var (
		configPath string
		profile    string
		scope      string
	)
	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Render the markdown memory snapshot an agent would see",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(configPath, profile, false)
			if err != nil {
				return err
			}
			defer rt.Close()

			if scope == "" {
				scope = rt.profile.PrimaryScope()
			}
			snapshot, err := rt.vault.BuildSnapshot(scope)
			if err != nil {
				return err
			}
			fmt.Println(snapshot)
			return nil
		},
	}
	addRuntimeFlags(cmd, &configPath, &profile)
	cmd.Flags().StringVar(&scope, "scope", "", "Scope to render")
	return cmd
}

package cli

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xiaot623/thirdeye/internal/domain"
)

var duelCmd = &cobra.Command{
	Use:   "duel",
	Short: "Compare provider/model pairs on one eye",
}

var duelRaceCmd = &cobra.Command{
	Use:   "race <eye> <prompt>",
	Short: "Race 2-4 provider/model pairs and rank them",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringSlice("model")
		configs, err := parseConfigs(specs)
		if err != nil {
			return err
		}
		run, err := newClient().RunDuel(cmd.Context(), domain.DuelRequest{
			Eye:     domain.Eye(args[0]),
			Prompt:  strings.Join(args[1:], " "),
			Configs: configs,
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), run)
		}
		printDuel(cmd, run)
		return nil
	},
}

var duelStartCmd = &cobra.Command{
	Use:   "start <eye> <input>",
	Short: "Start a background A/B duel",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		specs, _ := cmd.Flags().GetStringSlice("model")
		iterations, _ := cmd.Flags().GetInt("iterations")
		configs, err := parseConfigs(specs)
		if err != nil {
			return err
		}
		if len(configs) != 2 {
			return errors.New("a background duel needs exactly two --model values")
		}
		resp, err := newClient().StartBackgroundDuel(cmd.Context(), domain.BackgroundDuelRequest{
			Eye:        domain.Eye(args[0]),
			ModelA:     configs[0],
			ModelB:     configs[1],
			Input:      strings.Join(args[1:], " "),
			Iterations: iterations,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Duel %s %s\n", resp.DuelID, resp.Status)

		wait, _ := cmd.Flags().GetBool("wait")
		if !wait {
			return nil
		}
		interval, _ := cmd.Flags().GetDuration("poll")
		for {
			run, err := newClient().GetDuel(cmd.Context(), resp.DuelID)
			if err != nil {
				return err
			}
			if run.Status.Terminal() {
				if jsonOutput(cmd) {
					return printJSON(cmd.OutOrStdout(), run)
				}
				printDuel(cmd, run)
				return nil
			}
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(interval):
			}
		}
	},
}

var duelGetCmd = &cobra.Command{
	Use:   "get <duel_id>",
	Short: "Show a duel record",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		run, err := newClient().GetDuel(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), run)
		}
		printDuel(cmd, run)
		return nil
	},
}

func init() {
	duelRaceCmd.Flags().StringSliceP("model", "m", nil, "provider/model pair, repeatable")
	duelStartCmd.Flags().StringSliceP("model", "m", nil, "provider/model pair for A then B")
	duelStartCmd.Flags().IntP("iterations", "n", 3, "rounds to play")
	duelStartCmd.Flags().Bool("wait", false, "poll until the duel finishes")
	duelStartCmd.Flags().Duration("poll", 2*time.Second, "poll interval with --wait")

	duelCmd.AddCommand(duelRaceCmd)
	duelCmd.AddCommand(duelStartCmd)
	duelCmd.AddCommand(duelGetCmd)
}

// parseConfigs turns "provider/model" pairs into duel configs. The model part may contain slashes.
func parseConfigs(pairs []string) ([]domain.DuelConfig, error) {
	configs := make([]domain.DuelConfig, 0, len(pairs))
	for _, pair := range pairs {
		provider, model, ok := strings.Cut(pair, "/")
		if !ok || provider == "" || model == "" {
			return nil, fmt.Errorf("invalid model %q, want provider/model", pair)
		}
		configs = append(configs, domain.DuelConfig{Provider: provider, Model: model})
	}
	return configs, nil
}

func printDuel(cmd *cobra.Command, run *domain.DuelRun) {
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Duel %s (%s, %s) on %s\n", run.DuelID, run.Mode, run.Status, run.Eye)
	if run.Error != "" {
		fmt.Fprintf(w, "Error: %s\n", run.Error)
	}
	if s := run.Summary; s != nil {
		fmt.Fprintf(w, "Rounds %d: A %d approvals %.0fms avg, B %d approvals %.0fms avg, winner %s\n",
			s.RoundsPlayed, s.ApprovalsA, s.AvgLatencyA, s.ApprovalsB, s.AvgLatencyB, s.Winner)
		return
	}
	fmt.Fprintf(w, "%-24s %-14s %8s %6s\n", "LABEL", "VERDICT", "LATENCY", "SCORE")
	for _, r := range run.Results {
		fmt.Fprintf(w, "%-24s %-14s %6dms %6.1f\n", r.Label, r.Verdict, r.LatencyMs, r.Score)
	}
	if len(run.Ranking) > 0 {
		fmt.Fprintf(w, "Ranking: %s\n", strings.Join(run.Ranking, ", "))
	}
}

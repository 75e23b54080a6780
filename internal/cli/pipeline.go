package cli

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xiaot623/thirdeye/internal/apiclient"
	"github.com/xiaot623/thirdeye/internal/domain"
)

var submitCmd = &cobra.Command{
	Use:   "submit <task>",
	Short: "Analyze a task and run its flow",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		result, err := newClient().Submit(cmd.Context(), sessionID, strings.Join(args, " "))
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), result)
		}
		printFlow(cmd.OutOrStdout(), result)
		return nil
	},
}

var runCmd = &cobra.Command{
	Use:   "run <eye> <input>",
	Short: "Run a single eye for a session",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		if sessionID == "" {
			return errors.New("--session is required")
		}
		env, err := newClient().RunEye(cmd.Context(), sessionID, domain.Eye(args[0]), strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), env)
		}
		printEnvelope(cmd.OutOrStdout(), env)
		return nil
	},
}

var rerunCmd = &cobra.Command{
	Use:   "rerun <eye> <input>",
	Short: "Re-run a completed eye as a supervised override",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID, _ := cmd.Flags().GetString("session")
		reason, _ := cmd.Flags().GetString("reason")
		if sessionID == "" || reason == "" {
			return errors.New("--session and --reason are required")
		}
		env, err := newClient().Rerun(cmd.Context(), domain.RerunRequest{
			SessionID: sessionID,
			Eye:       domain.Eye(args[0]),
			Input:     strings.Join(args[1:], " "),
			Reason:    reason,
		})
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), env)
		}
		printEnvelope(cmd.OutOrStdout(), env)
		return nil
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze <task>",
	Short: "Classify a task and show the recommended flow",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		decision, err := newClient().Analyze(cmd.Context(), strings.Join(args, " "))
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), decision)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Type:       %s\n", decision.TaskType)
		fmt.Fprintf(w, "Domain:     %s\n", decision.Domain)
		fmt.Fprintf(w, "Complexity: %s\n", decision.Complexity)
		fmt.Fprintf(w, "Flow:       %s\n", joinEyes(decision.RecommendedFlow))
		fmt.Fprintf(w, "Reasoning:  %s\n", decision.Reasoning)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <session>",
	Short: "Show a session and its pipeline progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := newClient().Status(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), status)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "Session: %s (%s)\n", status.Session.SessionID, status.Session.Status)
		p := status.PipelineProgress
		if p == nil {
			return nil
		}
		if len(p.Route) > 0 {
			fmt.Fprintf(w, "Route:   %s\n", joinEyes(p.Route))
		}
		for _, e := range p.Entries {
			marker := ""
			if e.Rerun {
				marker = " (rerun: " + e.Reason + ")"
			}
			fmt.Fprintf(w, "  %-3d %-14s %s%s\n", e.Seq, e.Eye, e.Outcome, marker)
		}
		switch {
		case p.Complete:
			fmt.Fprintln(w, "Complete.")
		case p.Permissive:
			fmt.Fprintln(w, "Next:    any eye (no route)")
		default:
			fmt.Fprintf(w, "Next:    %s\n", joinEyes(p.CurrentlyAllowed))
		}
		return nil
	},
}

var killCmd = &cobra.Command{
	Use:   "kill <session>",
	Short: "Block further eye invocations for a session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().KillSession(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Session %s killed.\n", args[0])
		return nil
	},
}

var eyesCmd = &cobra.Command{
	Use:   "eyes",
	Short: "List the registered eyes",
	RunE: func(cmd *cobra.Command, args []string) error {
		eyes, err := newClient().ListEyes(cmd.Context())
		if err != nil {
			return err
		}
		if jsonOutput(cmd) {
			return printJSON(cmd.OutOrStdout(), eyes)
		}
		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%-14s %-10s %s\n", "EYE", "STAGE", "DESCRIPTION")
		for _, e := range eyes {
			fmt.Fprintf(w, "%-14s %-10s %s\n", e.Name, e.Stage, e.Description)
		}
		return nil
	},
}

func init() {
	submitCmd.Flags().StringP("session", "s", "", "session id (generated when empty)")
	runCmd.Flags().StringP("session", "s", "", "session id")
	rerunCmd.Flags().StringP("session", "s", "", "session id")
	rerunCmd.Flags().String("reason", "", "why the eye is re-run")
}

func printFlow(w io.Writer, result *domain.FlowResult) {
	fmt.Fprintf(w, "Session: %s\n", result.SessionID)
	if result.Decision != nil {
		fmt.Fprintf(w, "Flow:    %s (%s)\n", joinEyes(result.Decision.RecommendedFlow), result.Decision.TaskType)
	}
	for _, step := range result.Results {
		switch {
		case step.Violation != nil:
			fmt.Fprintf(w, "  %-14s violation: %s\n", step.Eye, step.Violation.Reason)
		case step.Error != "":
			fmt.Fprintf(w, "  %-14s error: %s\n", step.Eye, step.Error)
		case step.Envelope != nil:
			fmt.Fprintf(w, "  %-14s %s\n", step.Eye, step.Envelope.Code)
		}
	}
	if result.Completed {
		fmt.Fprintln(w, "Completed.")
	} else if result.StoppedAt != nil {
		fmt.Fprintf(w, "Stopped at step %d: %s\n", *result.StoppedAt, result.StopReason)
	}
}

func printEnvelope(w io.Writer, env *domain.Envelope) {
	fmt.Fprintf(w, "%s: %s (ok=%t)\n", env.Eye, env.Code, env.OK)
	if text := env.Text(); text != "" {
		fmt.Fprintln(w, text)
	}
}

func joinEyes(eyes []domain.Eye) string {
	return strings.Join(domain.EyesToStrings(eyes), " -> ")
}

// IsViolation reports whether err is an order violation returned by the server.
func IsViolation(err error) bool {
	var verr *apiclient.ViolationError
	return errors.As(err, &verr)
}

// Package cli implements the eyectl command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/xiaot623/thirdeye/internal/apiclient"
)

var version = "dev"

// SetVersion sets the version reported by `eyectl version`.
func SetVersion(v string) {
	version = v
}

var settings = viper.New()

var rootCmd = &cobra.Command{
	Use:   "eyectl",
	Short: "eyectl drives the thirdeye validation pipeline",
	Long: `eyectl submits tasks to a thirdeye server, runs individual eyes,
inspects session progress, launches model duels and streams live events.

The server address is read from --server or THIRDEYE_URL.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("server", "http://localhost:8080", "thirdeye server base URL")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Minute, "request timeout")
	rootCmd.PersistentFlags().Bool("json", false, "print raw JSON")
	_ = settings.BindPFlag("url", rootCmd.PersistentFlags().Lookup("server"))
	_ = settings.BindPFlag("timeout", rootCmd.PersistentFlags().Lookup("timeout"))
	settings.SetEnvPrefix("THIRDEYE")
	_ = settings.BindEnv("url")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rerunCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(killCmd)
	rootCmd.AddCommand(eyesCmd)
	rootCmd.AddCommand(duelCmd)
	rootCmd.AddCommand(watchCmd)
}

func newClient() *apiclient.Client {
	return apiclient.NewClient(settings.GetString("url"), settings.GetDuration("timeout"))
}

func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshalling output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

package cmd

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "memory",
	Short: "Memory matching card game",
	Long: `Memory deals a board of face-down cards, each sharing its image with exactly
one other card, and lets you flip two at a time until every pair is found.

Play in the terminal with 'memory play' or serve the game over HTTP with 'memory serve'.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		_ = godotenv.Load()
		setupLogging()
	},
}

func init() {
	RootCmd.PersistentFlags().String("layout", "", "board layout TOML file (default: built-in 3x4 board, or $LAYOUT_FILE)")
}

// setupLogging configures the global zerolog logger from LOG_LEVEL and LOG_FORMAT.
func setupLogging() {
	if lvl, err := zerolog.ParseLevel(getEnv("LOG_LEVEL", "info")); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if getEnv("LOG_FORMAT", "json") == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

// layoutPath returns --layout, falling back to $LAYOUT_FILE.
func layoutPath(cmd *cobra.Command) string {
	if p, _ := cmd.Flags().GetString("layout"); p != "" {
		return p
	}
	return os.Getenv("LAYOUT_FILE")
}

// getEnv returns the value of k or def if unset/empty.
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// envInt parses k as an integer, returning def when unset or malformed.
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

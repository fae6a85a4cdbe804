package main

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

const defaultAPIURL = "http://localhost:42100"

// options holds the persistent flags shared by every command.
type options struct {
	url     string
	channel int
	token   string
	json    bool
	timeout time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:           "playoutctl",
		Short:         "Control a Nebula playout worker",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return err
			}
			applyEnvDefaults(cmd, opts)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.url, "url", defaultAPIURL, "Control API base URL (env NEBULA_API_URL)")
	flags.IntVarP(&opts.channel, "channel", "c", 1, "Playout channel id (env NEBULA_CHANNEL)")
	flags.StringVar(&opts.token, "token", "", "Bearer token (env NEBULA_TOKEN)")
	flags.BoolVar(&opts.json, "json", false, "Print raw JSON responses")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "Request timeout")

	for _, cmd := range newPlaybackCommands(opts) {
		rootCmd.AddCommand(cmd)
	}
	rootCmd.AddCommand(newCueCommand(opts))
	rootCmd.AddCommand(newSetCommand(opts))
	rootCmd.AddCommand(newStatCommand(opts))
	rootCmd.AddCommand(newPluginCommand(opts))
	rootCmd.AddCommand(newAsRunCommand(opts))
	rootCmd.AddCommand(newTokenCommand())

	return rootCmd
}

// applyEnvDefaults fills flags the user did not set from NEBULA_* variables.
func applyEnvDefaults(cmd *cobra.Command, opts *options) {
	flags := cmd.Flags()
	if v := strings.TrimSpace(os.Getenv("NEBULA_API_URL")); v != "" && !flags.Changed("url") {
		opts.url = v
	}
	if v := strings.TrimSpace(os.Getenv("NEBULA_TOKEN")); v != "" && !flags.Changed("token") {
		opts.token = v
	}
	if v := strings.TrimSpace(os.Getenv("NEBULA_CHANNEL")); v != "" && !flags.Changed("channel") {
		if id, err := strconv.Atoi(v); err == nil {
			opts.channel = id
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nebulabroadcast/nebula-worker/internal/auth"
)

// run sends one channel command and prints its outcome.
func run(cmd *cobra.Command, opts *options, method string, args map[string]any) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
	defer cancel()

	reply, err := newClient(opts).command(ctx, opts.channel, method, args)
	if err != nil {
		return err
	}
	return printReply(cmd, opts, reply)
}

func printReply(cmd *cobra.Command, opts *options, reply map[string]any) error {
	if opts.json {
		if reply == nil {
			reply = map[string]any{"response": 204}
		}
		return writeJSON(cmd, reply)
	}
	if reply == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "Nothing to cue")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), replyMessage(reply))
	return nil
}

func newPlaybackCommands(opts *options) []*cobra.Command {
	simple := []struct {
		use, method, short string
	}{
		{"take", "take", "Start the cued item"},
		{"retake", "retake", "Restart the on-air item from its mark-in"},
		{"freeze", "freeze", "Pause or resume the on-air item"},
		{"abort", "abort", "Stop the on-air item and clear the background"},
		{"clear", "clear", "Clear the playout layer"},
		{"next", "cue_forward", "Cue the item after the cued one"},
		{"prev", "cue_backward", "Cue the item before the cued one"},
		{"recover", "recover", "Restore playback from the as-run log"},
	}

	cmds := make([]*cobra.Command, 0, len(simple))
	for _, s := range simple {
		cmds = append(cmds, &cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return run(cmd, opts, s.method, nil)
			},
		})
	}
	return cmds
}

func newCueCommand(opts *options) *cobra.Command {
	var play bool
	cmd := &cobra.Command{
		Use:   "cue <id_item>",
		Short: "Cue an item, optionally playing it at once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid item id %q", args[0])
			}
			return run(cmd, opts, "cue", map[string]any{"id_item": id, "play": play})
		},
	}
	cmd.Flags().BoolVar(&play, "play", false, "Take the item as soon as it is cued")
	return cmd
}

func newSetCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Change a playback setting such as loop",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts, "set", map[string]any{"key": args[0], "value": args[1]})
		},
	}
}

func newStatCommand(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stat",
		Short: "Show what the channel is playing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			reply, err := newClient(opts).command(ctx, opts.channel, "stat", nil)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, reply)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderStat(reply, shouldColorize(cmd.OutOrStdout())))
			return nil
		},
	}
}

func newPluginCommand(opts *options) *cobra.Command {
	pluginCmd := &cobra.Command{
		Use:   "plugin",
		Short: "List or drive channel plugins",
	}

	pluginCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List plugins that accept commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			reply, err := newClient(opts).command(ctx, opts.channel, "plugin_list", nil)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, reply)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderPlugins(reply))
			return nil
		},
	})

	var data string
	execCmd := &cobra.Command{
		Use:   "exec <name> <action>",
		Short: "Run a plugin action",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload := map[string]any{}
			if data != "" {
				if err := json.Unmarshal([]byte(data), &payload); err != nil {
					return fmt.Errorf("--data must be a JSON object: %w", err)
				}
			}
			return run(cmd, opts, "plugin_exec", map[string]any{
				"name":   args[0],
				"action": args[1],
				"data":   payload,
			})
		},
	}
	execCmd.Flags().StringVar(&data, "data", "", `Action data as a JSON object, e.g. '{"text":"Breaking"}'`)
	pluginCmd.AddCommand(execCmd)

	return pluginCmd
}

func newAsRunCommand(opts *options) *cobra.Command {
	var (
		limit    int
		from, to string
		all      bool
	)
	cmd := &cobra.Command{
		Use:   "asrun",
		Short: "Show the as-run log, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			query := url.Values{}
			if !all {
				query.Set("id_channel", strconv.Itoa(opts.channel))
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}
			for key, v := range map[string]string{"from": from, "to": to} {
				if v == "" {
					continue
				}
				if _, err := time.Parse(time.RFC3339, v); err != nil {
					return fmt.Errorf("--%s must be RFC 3339, e.g. 2026-03-01T06:00:00Z", key)
				}
				query.Set(key, v)
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()

			reply, err := newClient(opts).get(ctx, "/api/v1/asrun", query)
			if err != nil {
				return err
			}
			if opts.json {
				return writeJSON(cmd, reply)
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderAsRun(reply))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Number of records")
	cmd.Flags().StringVar(&from, "from", "", "Only records starting at or after this time (RFC 3339)")
	cmd.Flags().StringVar(&to, "to", "", "Only records starting before this time (RFC 3339)")
	cmd.Flags().BoolVar(&all, "all", false, "Include every channel")
	return cmd
}

func newTokenCommand() *cobra.Command {
	var (
		secret  string
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the control API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if secret == "" {
				secret = os.Getenv("NEBULA_JWT_SECRET")
			}
			if secret == "" {
				return errors.New("a signing secret is required: pass --secret or set NEBULA_JWT_SECRET")
			}
			token, err := auth.GenerateToken(strings.TrimSpace(subject), auth.Role(role), secret, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", "", "HS256 signing secret (env NEBULA_JWT_SECRET)")
	cmd.Flags().StringVar(&subject, "subject", "playoutctl", "Token subject")
	cmd.Flags().StringVar(&role, "role", string(auth.RoleOperator), "Role: viewer, operator or admin")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

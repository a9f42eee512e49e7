package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipvault/internal/hub"
)

func newWatchCmd() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Stream daemon notifications until interrupted",
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, transport, err := dialDaemon(v)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			out := cmd.OutOrStdout()
			jsonOut := v.GetBool("json")
			fmt.Fprintf(cmd.ErrOrStderr(), "watching via %s\n", transport)
			return c.Watch(ctx, "cli", func(ev hub.Event) error {
				if jsonOut {
					return json.NewEncoder(out).Encode(ev)
				}
				_, err := fmt.Fprintln(out, formatEvent(ev))
				return err
			})
		},
	}
	cmd.Flags().Bool("json", false, "print events as JSON lines")
	addClientFlags(cmd)
	return cmd
}

func formatEvent(ev hub.Event) string {
	ts := ev.Time.Local().Format(time.TimeOnly)
	switch ev.Type {
	case hub.EventHistoryChanged:
		if ev.ItemID != "" {
			return fmt.Sprintf("%s  history changed (%s)", ts, shortID(ev.ItemID))
		}
		return fmt.Sprintf("%s  history changed", ts)
	case hub.EventOpenFailure:
		return fmt.Sprintf("%s  unable to open %s", ts, ev.Path)
	case hub.EventRetentionChanged:
		if ev.Days != nil {
			return fmt.Sprintf("%s  retention set to %s", ts, retentionLabel(*ev.Days))
		}
	case hub.EventStorageError:
		return fmt.Sprintf("%s  storage error: %s", ts, ev.Message)
	}
	return fmt.Sprintf("%s  %s", ts, ev.Type)
}

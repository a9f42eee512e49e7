package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipvault/internal/api"
	"go.klb.dev/clipvault/internal/grpcservice"
)

func newStatusCmd() *cobra.Command {
	return newClientCmd("status", "Show daemon status", cobra.NoArgs,
		func(cmd *cobra.Command) {
			cmd.Flags().Bool("json", false, "output raw JSON")
		},
		func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *grpcservice.Client, _ []string) error {
			st, err := c.Status(ctx)
			if err != nil {
				return err
			}
			if v.GetBool("json") {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(st)
			}
			printStatus(cmd.OutOrStdout(), st, time.Now())
			return nil
		})
}

func printStatus(w io.Writer, st *api.StatusResponse, now time.Time) {
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Version:\t%s\n", st.Version)
	fmt.Fprintf(tw, "Clipboard:\t%s\n", st.Monitor)
	fmt.Fprintf(tw, "Items:\t%d\n", st.Items)
	retention := retentionLabel(st.Retention.Days)
	if !st.Retention.Configured {
		retention += " (default)"
	}
	fmt.Fprintf(tw, "Retention:\t%s\n", retention)
	if st.NextPrune != nil {
		fmt.Fprintf(tw, "Next prune:\t%s\n", st.NextPrune.Local().Format(time.RFC3339))
	} else {
		fmt.Fprintf(tw, "Next prune:\t-\n")
	}
	if !st.StartedAt.IsZero() {
		fmt.Fprintf(tw, "Up since:\t%s (%s)\n", st.StartedAt.Local().Format(time.RFC3339), now.Sub(st.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(tw, "Watchers:\t%d\n", st.Subscribers)
	_ = tw.Flush()
}

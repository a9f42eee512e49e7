package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipvault/internal/api"
	"go.klb.dev/clipvault/internal/grpcservice"
)

// retentionChoices are the windows offered in the help text. Any
// non-negative value is accepted.
var retentionChoices = []int{7, 30, 90, 0}

func newSettingsCmd() *cobra.Command {
	cmd := newClientCmd("settings", "Show or change the history retention window", cobra.NoArgs,
		func(cmd *cobra.Command) {
			cmd.Flags().Int("retention", -1, "retention window in days (e.g. 7, 30, 90; 0 = keep forever)")
		},
		func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *grpcservice.Client, _ []string) error {
			var (
				resp *api.SettingsResponse
				err  error
			)
			if cmd.Flags().Changed("retention") {
				resp, err = c.SetRetention(ctx, v.GetInt("retention"))
			} else {
				resp, err = c.Settings(ctx)
			}
			if err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), resp)
			return nil
		})
	cmd.Long = fmt.Sprintf(`Without flags, prints the retention window. With --retention, stores a new
window and prunes immediately.

Common choices: %s.`, describeChoices(retentionChoices))
	return cmd
}

func describeChoices(days []int) string {
	s := ""
	for i, d := range days {
		if i > 0 {
			s += ", "
		}
		s += retentionLabel(d)
	}
	return s
}

func retentionLabel(days int) string {
	switch days {
	case 0:
		return "forever"
	case 1:
		return "1 day"
	default:
		return fmt.Sprintf("%d days", days)
	}
}

func printSettings(w io.Writer, s *api.SettingsResponse) {
	suffix := ""
	if !s.Configured {
		suffix = " (default)"
	}
	fmt.Fprintf(w, "Retention: %s%s\n", retentionLabel(s.RetentionDays), suffix)
}

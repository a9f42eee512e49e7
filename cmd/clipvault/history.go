package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipvault/internal/api"
	"go.klb.dev/clipvault/internal/grpcservice"
)

func newListCmd() *cobra.Command {
	return newClientCmd("list", "List clipboard history, newest first", cobra.NoArgs,
		func(cmd *cobra.Command) {
			f := cmd.Flags()
			f.Bool("all", false, "list the full history instead of the recent view")
			f.Int("limit", 0, "show at most this many items (0 = no limit)")
			f.Bool("json", false, "output raw JSON")
		},
		func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *grpcservice.Client, _ []string) error {
			items, err := c.List(ctx, v.GetBool("all"), v.GetInt("limit"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if v.GetBool("json") {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			printItems(out, items, time.Now())
			return nil
		})
}

func printItems(w io.Writer, items []api.Item, now time.Time) {
	if len(items) == 0 {
		fmt.Fprintln(w, "History is empty.")
		return
	}
	tw := tabwriter.NewWriter(w, 1, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(tw, "ID\tKIND\tCOPIED\tPREVIEW\n")
	for _, it := range items {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			shortID(it.ID), it.Kind, fmtAge(it.CreatedAt, now), oneLine(it.Preview))
	}
	_ = tw.Flush()
}

// shortID trims a UUID to its first group for display. Commands accept
// either form.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func fmtAge(t, now time.Time) string {
	age := now.Sub(t).Round(time.Second)
	switch {
	case age < time.Minute:
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	case age < time.Hour:
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	case age < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(age.Hours()))
	default:
		return t.Local().Format("2006-01-02 15:04")
	}
}

// resolveID expands a short id prefix to a full id using the full history.
func resolveID(ctx context.Context, c *grpcservice.Client, prefix string) (string, error) {
	items, err := c.List(ctx, true, 0)
	if err != nil {
		return "", err
	}
	var match string
	for _, it := range items {
		if it.ID == prefix {
			return it.ID, nil
		}
		if strings.HasPrefix(it.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("id prefix %q is ambiguous", prefix)
			}
			match = it.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no history item with id %q", prefix)
	}
	return match, nil
}

func newPasteCmd() *cobra.Command {
	return newClientCmd("paste <id>", "Put a history item back on the clipboard", cobra.ExactArgs(1),
		func(cmd *cobra.Command) {
			cmd.Flags().Bool("open", false, "for file items, open the file instead of copying a reference")
		},
		func(ctx context.Context, cmd *cobra.Command, v *viper.Viper, c *grpcservice.Client, args []string) error {
			id, err := resolveID(ctx, c, args[0])
			if err != nil {
				return err
			}
			res, err := c.Paste(ctx, id, v.GetBool("open"))
			if err != nil {
				return err
			}
			switch res {
			case "skipped":
				fmt.Fprintln(cmd.OutOrStdout(), "Item holds unsupported content; clipboard left unchanged.")
			case "opened":
				fmt.Fprintln(cmd.OutOrStdout(), "Opened.")
			default:
				fmt.Fprintln(cmd.OutOrStdout(), "Copied to clipboard.")
			}
			return nil
		})
}

func newDeleteCmd() *cobra.Command {
	return newClientCmd("delete <id>", "Delete one history item", cobra.ExactArgs(1), nil,
		func(ctx context.Context, cmd *cobra.Command, _ *viper.Viper, c *grpcservice.Client, args []string) error {
			id, err := resolveID(ctx, c, args[0])
			if err != nil {
				return err
			}
			if err := c.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", shortID(id))
			return nil
		})
}

func newClearCmd() *cobra.Command {
	return newClientCmd("clear", "Delete the entire history", cobra.NoArgs, nil,
		func(ctx context.Context, cmd *cobra.Command, _ *viper.Viper, c *grpcservice.Client, _ []string) error {
			if err := c.Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "History cleared.")
			return nil
		})
}

func newPruneCmd() *cobra.Command {
	return newClientCmd("prune", "Delete items older than the retention window now", cobra.NoArgs, nil,
		func(ctx context.Context, cmd *cobra.Command, _ *viper.Viper, c *grpcservice.Client, _ []string) error {
			n, err := c.Prune(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d item(s).\n", n)
			return nil
		})
}

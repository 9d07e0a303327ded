package cmd

import (
	"context"
	"fmt"
	"text/tabwriter"
	"time"

	"ghost-publish/internal/redisclient"
	"ghost-publish/internal/storage"

	"github.com/spf13/cobra"
)

var historyLimit int

// historyCmd lists recent publishes recorded in Redis.
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recently published notes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if !cfg.Redis.Enabled() {
			return errRedisDisabled
		}
		rdb := redisclient.New(cfg.Redis)
		defer rdb.Close()
		store := storage.NewRedisStore(rdb, cfg.Redis.TTL())

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		recs, err := store.Recent(ctx, historyLimit)
		if err != nil {
			return err
		}
		if len(recs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "no publishes recorded")
			return nil
		}
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "WHEN\tACTION\tSTATUS\tTITLE\tURL\tNOTE")
		for _, r := range recs {
			action := "updated"
			if r.Created {
				action = "created"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
				r.PublishedAt.Local().Format("2006-01-02 15:04"), action, r.Status, r.Title, r.URL, r.NotePath)
		}
		return tw.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of records to show")
	rootCmd.AddCommand(historyCmd)
}

package cmd

import (
	"fmt"
	"sort"

	"ghost-publish/internal/markdown"
	"ghost-publish/internal/publisher"

	"github.com/spf13/cobra"
)

var debugParseCmd = &cobra.Command{
	Use:   "debug-parse <markdown_path>",
	Short: "Debug: parse a markdown note and print what would be published",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		note, err := markdown.OpenNote(args[0])
		if err != nil {
			return err
		}
		w := cmd.OutOrStdout()
		fm := note.Frontmatter()
		keys := make([]string, 0, len(fm))
		for k := range fm {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintf(w, "frontmatter keys: %v\n", keys)

		post, id, err := publisher.New(nil, nil, publisher.WithRenderer(markdown.NewRenderer(GetConfig().Ghost.UnsafeHTML))).Preview(note)
		if err != nil {
			return err
		}
		mode := "create"
		if id != "" {
			mode = "update " + id
		}
		fmt.Fprintf(w, "mode: %s\n", mode)
		fmt.Fprintf(w, "title: %s\n", post.Title)
		fmt.Fprintf(w, "status: %s\n", post.Status)
		fmt.Fprintf(w, "featured: %t\n", post.Featured)
		fmt.Fprintf(w, "tags: %d\n", len(post.Tags))
		fmt.Fprintf(w, "html bytes: %d\n", len(post.HTML))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(debugParseCmd)
}

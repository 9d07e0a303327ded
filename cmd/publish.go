package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"ghost-publish/internal/ai"
	"ghost-publish/internal/ghost"
	"ghost-publish/internal/markdown"
	"ghost-publish/internal/publisher"
	"ghost-publish/internal/redisclient"
	"ghost-publish/internal/storage"

	"github.com/spf13/cobra"
)

var (
	publishURL      string
	publishKey      string
	publishDryRun   bool
	publishNoImages bool
)

var publishCmd = &cobra.Command{
	Use:   "publish <markdown_path>",
	Short: "Create or update a Ghost post from a markdown note",
	Args: func(cmd *cobra.Command, args []string) error {
		if len(args) != 1 {
			return errors.New("requires exactly one <markdown_path>")
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()
		if strings.TrimSpace(publishURL) != "" {
			cfg.Ghost.URL = strings.TrimRight(strings.TrimSpace(publishURL), "/")
		}
		if strings.TrimSpace(publishKey) != "" {
			cfg.Ghost.AdminKey = strings.TrimSpace(publishKey)
		}

		mdPath := args[0]
		note, err := markdown.OpenNote(mdPath)
		if err != nil {
			return err
		}

		renderer := markdown.NewRenderer(cfg.Ghost.UnsafeHTML)
		if publishDryRun {
			return printPreview(cmd, note, renderer)
		}

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		tm := cfg.Ghost.RequestTimeout()
		cli := ghost.New(cfg.Ghost.URL, tm)
		// fetch, write and an optional image upload each get one timeout
		budget := 3 * tm

		opts := []publisher.Option{publisher.WithRenderer(renderer)}
		if !cfg.Ghost.DisableImageUpload && !publishNoImages {
			opts = append(opts, publisher.WithImageUploader(cli, cfg.Ghost.WebPQuality))
		}
		if cfg.OpenAI.GenerateExcerpt {
			w, err := ai.NewOpenAI(ai.Config{APIKey: cfg.OpenAI.APIKey, Model: cfg.OpenAI.Model, BaseURL: cfg.OpenAI.BaseURL})
			if err != nil {
				return err
			}
			opts = append(opts, publisher.WithExcerptWriter(w, cfg.OpenAI.Language))
			budget += 60 * time.Second
		}

		ctx, cancel := context.WithTimeout(context.Background(), budget)
		defer cancel()

		if cfg.Redis.Enabled() {
			rdb := redisclient.New(cfg.Redis)
			defer rdb.Close()
			store := storage.NewRedisStore(rdb, cfg.Redis.TTL())
			opts = append(opts, publisher.WithRecorder(store))
			warnLostRemoteID(ctx, store, note)
		}

		notifier := publisher.WriterNotifier{Out: cmd.OutOrStdout(), Err: cmd.ErrOrStderr()}
		out := publisher.New(cli, notifier, opts...).Publish(ctx, note, cfg.Ghost.AdminKey)
		if !out.OK() {
			// the notifier has already shown the failure
			return fmt.Errorf("publish %s: %s: %w", mdPath, out.Kind, ErrReported)
		}
		if out.Post != nil && out.Post.URL != "" {
			fmt.Fprintln(cmd.OutOrStdout(), out.Post.URL)
		}
		return nil
	},
}

// warnLostRemoteID flags a note that was published before but lost its ghost_id,
// since publishing it again creates a second post.
func warnLostRemoteID(ctx context.Context, store *storage.RedisStore, note *markdown.FileNote) {
	if publisher.RemoteID(note.Frontmatter()) != "" {
		return
	}
	id, err := store.PostIDForNote(ctx, note.Path())
	if err != nil {
		slog.Warn("publish: history lookup failed", "note", note.Path(), "error", err)
		return
	}
	if id != "" {
		slog.Warn("publish: note has no ghost_id but was published before; a new post will be created",
			"note", note.Path(), "previous_post_id", id)
	}
}

func printPreview(cmd *cobra.Command, note *markdown.FileNote, renderer *markdown.Renderer) error {
	post, id, err := publisher.New(nil, nil, publisher.WithRenderer(renderer)).Preview(note)
	if err != nil {
		return err
	}
	method, path := "POST", "/ghost/api/"+ghost.APIVersion+"/admin/posts/?source=html"
	if id != "" {
		method, path = "PUT", "/ghost/api/"+ghost.APIVersion+"/admin/posts/"+id+"/?source=html"
	}
	b, err := json.MarshalIndent(map[string][]ghost.Post{"posts": {post}}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n%s\n", method, path, b)
	return nil
}

func init() {
	publishCmd.Flags().StringVar(&publishURL, "url", "", "Ghost site URL (overrides ghost.url)")
	publishCmd.Flags().StringVar(&publishKey, "key", "", "Admin API key <id>:<secret> (overrides ghost.admin_key)")
	publishCmd.Flags().BoolVar(&publishDryRun, "dry-run", false, "print the request payload without sending it")
	publishCmd.Flags().BoolVar(&publishNoImages, "no-images", false, "do not upload a local feature image")
	rootCmd.AddCommand(publishCmd)
}

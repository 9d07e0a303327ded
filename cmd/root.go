package cmd

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"ghost-publish/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	appCfg  config.Config
)

// rootCmd is the base command called without any subcommands.
var rootCmd = &cobra.Command{
	Use:           "ghost-publish",
	Short:         "Publish Markdown notes to a Ghost blog",
	Long:          "Publish a Markdown note with YAML front matter to Ghost through the Admin API, and record the post id back into the note.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// ErrReported marks a failure the user has already been told about.
var ErrReported = errors.New("already reported")

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}

func initConfig() {
	v := viper.GetViper()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ghost-publish")
		v.AddConfigPath("configs")
	}

	// GHOST_PUBLISH_GHOST_ADMIN_KEY overrides ghost.admin_key, and so on.
	v.SetEnvPrefix("GHOST_PUBLISH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"app.log_level",
		"ghost.url", "ghost.admin_key", "ghost.timeout", "ghost.disable_image_upload", "ghost.webp_quality", "ghost.unsafe_html",
		"redis.addr", "redis.username", "redis.password", "redis.db", "redis.history_ttl",
		"openai.api_key", "openai.model", "openai.base_url", "openai.language", "openai.generate_excerpt",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			fmt.Fprintf(os.Stderr, "error reading config: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", v.ConfigFileUsed())
	}

	if err := v.Unmarshal(&appCfg); err != nil {
		fmt.Fprintf(os.Stderr, "error parsing config: %v\n", err)
		os.Exit(1)
	}

	appCfg.FillDefaults()

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: appCfg.App.SlogLevel()})
	slog.SetDefault(slog.New(h))
}

// GetConfig exposes the loaded configuration to subcommands.
func GetConfig() config.Config {
	return appCfg
}

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"Prism/internal/logging"
)

const envPrefix = "PRISM"

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "prism",
		Short:         "prism resizes and re-encodes images on demand and caches every variant",
		SilenceErrors: true,
		SilenceUsage:  true,
		Example: `
  # Originals and variants on local disk
  prism serve --origin-backend disk --origin-dir ./originals --variants-backend disk --variants-dir ./variants

  # Originals from a web server, variants in S3 behind CloudFront
  PRISM_ORIGIN_URL=https://assets.example.com PRISM_VARIANTS_BACKEND=aws PRISM_VARIANTS_BUCKET=variants \
    PRISM_CLOUDFRONT_DISTRIBUTION=E123 PRISM_SHARED_SECRET=... prism serve

  # Canonical identity of a request
  prism normalize '/photos/cat.jpg?width=300&format=webp'
`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := loadConfigFile(); err != nil {
				return err
			}
			return nil
		},
	}

	persistent := cmd.PersistentFlags()
	persistent.StringP("config", "c", "", "path to YAML config file")
	persistent.String("log-level", "info", "log level (debug, info, warn, error)")
	persistent.Bool("dev", false, "human-readable development logging")

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(persistent); err != nil {
		panic(err)
	}

	cmd.AddCommand(
		newServeCommand(),
		newInvalidateCommand(),
		newNormalizeCommand(),
		newSignCommand(),
		newKeygenCommand(),
	)
	return cmd
}

func loadConfigFile() (string, error) {
	cfgPath := strings.TrimSpace(viper.GetString("config"))
	if cfgPath == "" {
		return "", nil
	}
	expanded, err := filepath.Abs(cfgPath)
	if err != nil {
		return "", fmt.Errorf("expand config path %q: %w", cfgPath, err)
	}
	info, err := os.Stat(expanded)
	if err != nil {
		return "", fmt.Errorf("config file %q: %w", expanded, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("config file %q is a directory", expanded)
	}
	viper.SetConfigFile(expanded)
	if err := viper.ReadInConfig(); err != nil {
		return "", fmt.Errorf("read config file %q: %w", expanded, err)
	}
	return expanded, nil
}

// newLogger builds the process logger from --log-level and --dev and installs it as
// the default.
func newLogger() (*zap.Logger, error) {
	opts := logging.OptionsFromEnv()
	if viper.GetBool("dev") {
		opts.Development = true
	}
	if level := strings.TrimSpace(viper.GetString("log-level")); level != "" {
		opts.Level = level
	}
	logger, err := logging.New(opts)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logging.SetDefault(logger)
	return logger.With(zap.String("app", "prism")), nil
}

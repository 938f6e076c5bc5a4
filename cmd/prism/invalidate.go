package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"Prism/internal/core/edge"
	"Prism/internal/core/variants"
	"Prism/internal/storage/factory"
)

func newInvalidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "invalidate ORIGINAL-PATH...",
		Short:   "Delete every stored variant of an original and purge it from the edge",
		Args:    cobra.MinimumNArgs(1),
		PreRunE: bindFlags,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			ctx := cmd.Context()
			storeCfg, err := storeConfig("variants")
			if err != nil {
				return err
			}
			store, err := factory.Open(ctx, storeCfg, logger.Named("variants"))
			if err != nil {
				return fmt.Errorf("open variant store: %w", err)
			}
			defer func() { _ = store.Close() }()

			var invalidator variants.Invalidator
			if dist := viper.GetString("cloudfront-distribution"); dist != "" {
				cf, err := newCloudFrontInvalidator(ctx, dist, logger)
				if err != nil {
					return err
				}
				invalidator = cf
			} else {
				invalidator = edge.NopInvalidator{}
			}

			cache, err := variants.NewCache(variants.Config{Store: store, Invalidator: invalidator, Logger: logger})
			if err != nil {
				return err
			}

			for _, originalPath := range args {
				removed, err := cache.Invalidate(ctx, originalPath)
				if err != nil {
					logger.Error("invalidation failed", zap.String("original_path", originalPath), zap.Error(err))
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", originalPath, removed)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	addStoreFlags(flags, "variants", "variant store")
	flags.String("cloudfront-distribution", "", "CloudFront distribution to invalidate")
	return cmd
}

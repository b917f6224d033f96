package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/artur/tubedrop/internal/config"
	"github.com/artur/tubedrop/internal/delivery"
	"github.com/artur/tubedrop/internal/logger"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "Download one video through the same pipeline the bot uses",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		quality, _ := cmd.Flags().GetString("quality")
		out, _ := cmd.Flags().GetString("out")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		logging := cfg.Logging
		logging.OutputPath = "stderr"
		log, err := logger.New(logging)
		if err != nil {
			log = logger.Fallback()
		}
		defer log.Sync()

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if cfg.Download.RequestTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, cfg.Download.RequestTimeout)
			defer cancel()
		}

		service, gate := newPipeline(cfg, log)
		result, err := service.HandleDownloadRequest(ctx, args[0], quality)
		if err != nil {
			return err
		}

		outcome, err := gate.Finalize(ctx, result.Path, result.Kind, delivery.DirSender{Dir: out})
		if err != nil {
			return err
		}
		if outcome.Status == delivery.Rejected {
			return fmt.Errorf("file is %.1f MiB, limit is %.0f MiB", outcome.SizeMiB, gate.MaxMiB())
		}

		fmt.Printf("Saved %s to %s (%s, strategy %s)\n",
			result.Kind, out, humanize.IBytes(uint64(result.Size)), result.Strategy)
		return nil
	},
}

package main

import (
	"github.com/artur/tubedrop/internal/config"
	"github.com/artur/tubedrop/internal/delivery"
	"github.com/artur/tubedrop/internal/downloader"
	"go.uber.org/zap"
)

// newPipeline wires the acquisition chain and the delivery gate from cfg.
func newPipeline(cfg *config.Config, log *zap.Logger) (*downloader.Service, *delivery.Gate) {
	httpClient := downloader.NewHTTPClient()

	var primary downloader.Extractor
	if cfg.YtDlp.Enabled {
		primary = downloader.NewYtDlpBackend(downloader.YtDlpConfig{
			Binary:        cfg.YtDlp.Binary,
			WorkDir:       cfg.Download.Dir,
			CookieFile:    cfg.YtDlp.CookieFile,
			UserAgent:     cfg.YtDlp.UserAgent,
			PlayerClients: cfg.YtDlp.PlayerClients,
		}, log)
	}

	var embedded downloader.StreamSource
	if cfg.Relays.Embedded {
		embedded = downloader.NewYouTubeSource(httpClient)
	}

	var relays downloader.StreamSource
	if len(cfg.Relays.Instances) > 0 {
		relays = downloader.NewRelayPool(cfg.Relays.Instances, httpClient, cfg.Relays.MetadataTimeout, log)
	}

	fetcher := downloader.NewFetcher(cfg.Download.Dir, downloader.NewFFmpeg(cfg.FFmpeg.Binary), cfg.Download.StreamTimeout, log)
	engine := downloader.NewEngine(primary, embedded, relays, fetcher, cfg.Download.Dir, log)

	return downloader.NewService(engine, log), delivery.NewGate(cfg.MaxUploadBytes(), log)
}

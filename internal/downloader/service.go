package downloader

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Acquirer runs the strategy chain for a parsed request.
type Acquirer interface {
	Acquire(ctx context.Context, req Request) (*AcquisitionResult, error)
}

// Service is the entry point used by the bot and the CLI.
type Service struct {
	engine Acquirer
	logger *zap.Logger
}

func NewService(engine Acquirer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{engine: engine, logger: logger}
}

func (s *Service) HandleDownloadRequest(ctx context.Context, url, quality string) (*AcquisitionResult, error) {
	log := s.logger.With(zap.String("request_id", uuid.NewString()))

	req, err := NewRequest(url, quality)
	if err != nil {
		log.Info("rejected request", zap.String("url", url), zap.String("quality", quality), zap.Error(err))
		return nil, err
	}

	log.Info("download requested", zap.String("video_id", req.VideoID), zap.Stringer("quality", req.Quality))
	result, err := s.engine.Acquire(ctx, req)
	if err != nil {
		log.Warn("download failed", zap.String("video_id", req.VideoID), zap.Error(err))
		return nil, err
	}
	log.Info("download ready",
		zap.String("video_id", req.VideoID),
		zap.String("strategy", result.Strategy),
		zap.Int64("bytes", result.Size),
	)
	return result, nil
}

// Package delivery checks a finished artifact against the upload ceiling and
// hands it to whoever delivers it to the user.
package delivery

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/artur/tubedrop/internal/downloader"
	"go.uber.org/zap"
)

// MaxUploadBytes is Telegram's bot upload ceiling.
const MaxUploadBytes = 50 * 1024 * 1024

const bytesPerMiB = 1024 * 1024

// Artifact is what a Sender receives.
type Artifact struct {
	Path string
	Name string
	Kind downloader.MediaKind
	Size int64
}

// Sender delivers an open artifact stream to the user.
type Sender interface {
	Send(ctx context.Context, a Artifact, r io.Reader) error
}

// Status of a finalize call.
type Status int

const (
	Delivered Status = iota
	Rejected
)

// Outcome reports what happened to the artifact. SizeMiB is always measured.
type Outcome struct {
	Status  Status
	SizeMiB float64
	Reason  string
}

// TooLarge is the rejection reason for files above the ceiling.
const TooLarge = "too large"

// Gate validates artifacts and removes them after every delivery attempt.
type Gate struct {
	maxBytes int64
	logger   *zap.Logger
}

func NewGate(maxBytes int64, logger *zap.Logger) *Gate {
	if maxBytes <= 0 {
		maxBytes = MaxUploadBytes
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gate{maxBytes: maxBytes, logger: logger.Named("gate")}
}

// MaxMiB is the ceiling in MiB, for user-facing messages.
func (g *Gate) MaxMiB() float64 {
	return float64(g.maxBytes) / bytesPerMiB
}

// Finalize sends path through sender unless it exceeds the ceiling. The file
// is gone when Finalize returns, whatever the outcome.
func (g *Gate) Finalize(ctx context.Context, path string, kind downloader.MediaKind, sender Sender) (Outcome, error) {
	defer func() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			g.logger.Warn("failed to remove artifact", zap.String("path", path), zap.Error(err))
		}
	}()

	info, err := os.Stat(path)
	if err != nil {
		return Outcome{}, fmt.Errorf("artifact unavailable: %w", err)
	}
	size := info.Size()
	outcome := Outcome{SizeMiB: float64(size) / bytesPerMiB}

	if size > g.maxBytes {
		g.logger.Info("artifact rejected", zap.String("path", path), zap.Float64("size_mib", outcome.SizeMiB))
		outcome.Status = Rejected
		outcome.Reason = TooLarge
		return outcome, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return outcome, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer file.Close()

	artifact := Artifact{Path: path, Name: info.Name(), Kind: kind, Size: size}
	if err := sender.Send(ctx, artifact, file); err != nil {
		return outcome, fmt.Errorf("failed to deliver %s: %w", kind, err)
	}

	g.logger.Info("artifact delivered", zap.String("path", path), zap.Float64("size_mib", outcome.SizeMiB))
	outcome.Status = Delivered
	return outcome, nil
}

// DirSender copies artifacts into a directory; used by the CLI.
type DirSender struct {
	Dir string
}

func (s DirSender) Send(ctx context.Context, a Artifact, r io.Reader) error {
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	out, err := os.Create(filepath.Join(s.Dir, a.Name))
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

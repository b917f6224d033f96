package downloader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/kkdai/youtube/v2"
)

// YouTubeSource is the embedded extraction backend: the Go YouTube client
// talking to the origin without yt-dlp.
type YouTubeSource struct {
	client youtube.Client
}

func NewYouTubeSource(httpClient *http.Client) *YouTubeSource {
	return &YouTubeSource{
		client: youtube.Client{HTTPClient: httpClient},
	}
}

func (s *YouTubeSource) Name() string { return "embedded" }

func (s *YouTubeSource) ListStreams(ctx context.Context, videoID string) ([]StreamDescriptor, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, classifyYouTubeError(err)
	}
	descriptors := descriptorsFromFormats(video.Formats)
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("embedded: no formats found: %w", ErrFormatUnavailable)
	}
	return descriptors, nil
}

func (s *YouTubeSource) OpenStream(ctx context.Context, videoID string, d StreamDescriptor) (io.ReadCloser, error) {
	video, err := s.client.GetVideoContext(ctx, videoID)
	if err != nil {
		return nil, classifyYouTubeError(err)
	}

	itag, _ := strconv.Atoi(d.FormatID)
	formats := video.Formats.Itag(itag)
	if len(formats) == 0 {
		return nil, fmt.Errorf("embedded: itag %s disappeared: %w", d.FormatID, ErrFormatUnavailable)
	}

	stream, _, err := s.client.GetStreamContext(ctx, video, &formats[0])
	if err != nil {
		return nil, classifyYouTubeError(err)
	}
	return stream, nil
}

func descriptorsFromFormats(formats youtube.FormatList) []StreamDescriptor {
	result := make([]StreamDescriptor, 0, len(formats))
	for _, f := range formats {
		kind := StreamVideoOnly
		switch {
		case strings.HasPrefix(f.MimeType, "audio/"):
			kind = StreamAudioOnly
		case f.AudioChannels > 0:
			kind = StreamCombined
		}

		height := f.Height
		if height == 0 && kind != StreamAudioOnly {
			height = parseQualityNum(f.QualityLabel)
		}

		result = append(result, StreamDescriptor{
			FormatID: strconv.Itoa(f.ItagNo),
			Ext:      extFromMime(f.MimeType),
			Height:   height,
			Bitrate:  f.Bitrate,
			Kind:     kind,
			URL:      f.URL,
		})
	}
	return result
}

// Any failure of the embedded client means the origin is not usable from here,
// so it is always worth moving on to the relays.
func classifyYouTubeError(err error) error {
	return fmt.Errorf("embedded: %v: %w", err, ErrBackendBlocked)
}

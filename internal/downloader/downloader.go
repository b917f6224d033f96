package downloader

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Downloader is the contract the chat front-end talks to.
type Downloader interface {
	HandleDownloadRequest(ctx context.Context, url, quality string) (*AcquisitionResult, error)
}

// MediaKind tells the delivery side which send method to use.
type MediaKind string

const (
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Quality is either a height cap or the audio rendition.
type Quality struct {
	Audio  bool
	Height int
}

var (
	QualityAudio  = Quality{Audio: true}
	QualityMedium = Quality{Height: 480}
	QualityHigh   = Quality{Height: 720}
)

func (q Quality) String() string {
	if q.Audio {
		return "mp3"
	}
	return strconv.Itoa(q.Height)
}

// Kind returns the media kind produced for this quality.
func (q Quality) Kind() MediaKind {
	if q.Audio {
		return MediaAudio
	}
	return MediaVideo
}

// Container is the file extension the request must end up with.
func (q Quality) Container() string {
	if q.Audio {
		return "mp3"
	}
	return "mp4"
}

// ParseQuality accepts "mp3", "audio", "480" or "480p".
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "mp3", "audio":
		return QualityAudio, nil
	}
	h := parseQualityNum(s)
	if h <= 0 {
		return Quality{}, fmt.Errorf("unknown quality %q", s)
	}
	return Quality{Height: h}, nil
}

// Request is one accepted download request. Never mutated after creation.
type Request struct {
	URL     string
	VideoID string
	Quality Quality
}

// NewRequest parses the URL and quality selector.
func NewRequest(url, quality string) (Request, error) {
	id := ParseVideoID(url)
	if id == "" {
		return Request{}, fmt.Errorf("%q: %w", url, ErrNotFound)
	}
	q, err := ParseQuality(quality)
	if err != nil {
		return Request{}, err
	}
	return Request{URL: url, VideoID: id, Quality: q}, nil
}

// AcquisitionResult is the verified local artifact of one request.
type AcquisitionResult struct {
	Path     string
	Size     int64
	Kind     MediaKind
	Strategy string
}

var videoIDPattern = regexp.MustCompile(`(?:youtube\.com/watch\?(?:.*&)?v=|youtu\.be/|youtube\.com/(?:shorts|embed|live)/)([a-zA-Z0-9_-]{11})`)

// ParseVideoID returns the 11 character video id, or "" when none is found.
func ParseVideoID(text string) string {
	matches := videoIDPattern.FindStringSubmatch(text)
	if len(matches) > 1 {
		return matches[1]
	}
	return ""
}

// IsYouTubeLink reports whether text looks like it points at YouTube at all.
func IsYouTubeLink(text string) bool {
	return strings.Contains(text, "youtube.com") || strings.Contains(text, "youtu.be")
}

// WatchURL builds the canonical watch URL for a video id.
func WatchURL(videoID string) string {
	return "https://www.youtube.com/watch?v=" + videoID
}

func parseQualityNum(quality string) int {
	var num int
	fmt.Sscanf(quality, "%dp", &num)
	return num
}

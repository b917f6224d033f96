package downloader

import (
	"regexp"
	"strings"
)

// StreamKind describes which tracks a stream carries.
type StreamKind int

const (
	StreamVideoOnly StreamKind = iota
	StreamAudioOnly
	StreamCombined
)

func (k StreamKind) String() string {
	switch k {
	case StreamAudioOnly:
		return "audio"
	case StreamCombined:
		return "combined"
	default:
		return "video"
	}
}

// HasAudio reports whether the stream carries an audio track.
func (k StreamKind) HasAudio() bool {
	return k == StreamAudioOnly || k == StreamCombined
}

// StreamDescriptor is one candidate stream as listed by a backend.
type StreamDescriptor struct {
	FormatID string
	Ext      string
	Height   int // 0 when unknown or audio-only
	Bitrate  int
	Kind     StreamKind
	URL      string
}

// Select picks exactly one descriptor for the quality, or returns ErrNoStream.
//
// Audio takes the highest bitrate audio-capable stream. Video takes the tallest
// combined stream within the cap, falling back to the shortest combined stream
// when every one is above it. Ties keep the first listed descriptor.
func Select(descriptors []StreamDescriptor, q Quality) (StreamDescriptor, error) {
	if q.Audio {
		return selectAudio(descriptors)
	}
	return selectVideo(descriptors, q.Height)
}

func selectAudio(descriptors []StreamDescriptor) (StreamDescriptor, error) {
	best := -1
	for i, d := range descriptors {
		if !d.Kind.HasAudio() {
			continue
		}
		if best < 0 || d.Bitrate > descriptors[best].Bitrate {
			best = i
		}
	}
	if best < 0 {
		return StreamDescriptor{}, ErrNoStream
	}
	return descriptors[best], nil
}

func selectVideo(descriptors []StreamDescriptor, maxHeight int) (StreamDescriptor, error) {
	best, lowest := -1, -1
	for i, d := range descriptors {
		if d.Kind != StreamCombined {
			continue
		}
		if lowest < 0 || d.Height < descriptors[lowest].Height {
			lowest = i
		}
		if d.Height > maxHeight {
			continue
		}
		if best < 0 || d.Height > descriptors[best].Height {
			best = i
		}
	}
	switch {
	case best >= 0:
		return descriptors[best], nil
	case lowest >= 0:
		return descriptors[lowest], nil
	default:
		return StreamDescriptor{}, ErrNoStream
	}
}

// extFromMime maps "video/mp4; codecs=..." style types to a file extension.
func extFromMime(mime string) string {
	base, _, _ := strings.Cut(mime, ";")
	base = strings.TrimSpace(strings.ToLower(base))
	switch base {
	case "audio/mp4":
		return "m4a"
	case "audio/mpeg":
		return "mp3"
	case "video/3gpp":
		return "3gp"
	case "video/x-matroska":
		return "mkv"
	}
	if _, sub, ok := strings.Cut(base, "/"); ok {
		if ext := cleanExt(sub); ext != "" {
			return ext
		}
	}
	return "bin"
}

var extPattern = regexp.MustCompile(`^[a-z0-9]{1,5}$`)

// cleanExt returns ext lowercased when it is safe to use in a file name,
// or "" otherwise. Extensions reported by relays are untrusted.
func cleanExt(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if !extPattern.MatchString(ext) {
		return ""
	}
	return ext
}

// kindFromMime guesses the track layout from a mime type and its codec list.
func kindFromMime(mime string) StreamKind {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(mime)), "audio/") {
		return StreamAudioOnly
	}
	if _, codecs, ok := strings.Cut(mime, "codecs="); ok && strings.Contains(codecs, ",") {
		return StreamCombined
	}
	return StreamVideoOnly
}

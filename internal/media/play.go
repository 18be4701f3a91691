package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
)

var ErrUnsupportedCodec = errors.New("media: unsupported codec")

// mimeTypeForFourCC maps IVF FourCC codes to RTP mime types.
func mimeTypeForFourCC(fourcc string) (string, error) {
	switch strings.ToUpper(strings.TrimSpace(fourcc)) {
	case "VP80":
		return webrtc.MimeTypeVP8, nil
	case "VP90":
		return webrtc.MimeTypeVP9, nil
	case "AV01":
		return webrtc.MimeTypeAV1, nil
	default:
		return "", fmt.Errorf("%w: fourcc %q", ErrUnsupportedCodec, fourcc)
	}
}

// IVFSource plays IVF frames into a local video track.
type IVFSource struct {
	reader        *ivfreader.IVFReader
	track         *webrtc.TrackLocalStaticSample
	frameDuration time.Duration
	log           *slog.Logger
}

// NewIVFSource reads the IVF header from r and creates a matching track.
func NewIVFSource(r io.Reader, trackID, streamID string, log *slog.Logger) (*IVFSource, error) {
	if log == nil {
		log = slog.Default()
	}
	reader, header, err := ivfreader.NewWith(r)
	if err != nil {
		return nil, fmt.Errorf("read ivf header: %w", err)
	}
	mimeType, err := mimeTypeForFourCC(header.FourCC)
	if err != nil {
		return nil, err
	}
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{MimeType: mimeType}, trackID, streamID)
	if err != nil {
		return nil, fmt.Errorf("new video track: %w", err)
	}

	frameDuration := 33 * time.Millisecond
	if header.TimebaseDenominator > 0 && header.TimebaseNumerator > 0 {
		frameDuration = time.Duration(uint64(time.Second) * uint64(header.TimebaseNumerator) / uint64(header.TimebaseDenominator))
	}

	log.Info("ivf source opened",
		"codec", mimeType,
		"width", header.Width,
		"height", header.Height,
		"frame_duration", frameDuration,
	)
	return &IVFSource{
		reader:        reader,
		track:         track,
		frameDuration: frameDuration,
		log:           log,
	}, nil
}

func (s *IVFSource) Track() *webrtc.TrackLocalStaticSample { return s.track }

func (s *IVFSource) FrameDuration() time.Duration { return s.frameDuration }

// Play writes one frame per frame duration until EOF or ctx is done. It
// returns the number of frames written; EOF is not an error.
func (s *IVFSource) Play(ctx context.Context) (int, error) {
	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()

	frames := 0
	for {
		frame, _, err := s.reader.ParseNextFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			s.log.Info("ivf playback finished", "frames", frames)
			return frames, nil
		}
		if err != nil {
			return frames, fmt.Errorf("read ivf frame: %w", err)
		}

		select {
		case <-ctx.Done():
			return frames, ctx.Err()
		case <-ticker.C:
		}

		if err := s.track.WriteSample(pionmedia.Sample{Data: frame, Duration: s.frameDuration}); err != nil {
			return frames, fmt.Errorf("write sample: %w", err)
		}
		frames++
	}
}

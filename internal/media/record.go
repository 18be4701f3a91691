package media

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
)

// CanRecordIVF reports whether IVF can hold the given codec.
func CanRecordIVF(mimeType string) bool {
	switch strings.ToLower(mimeType) {
	case strings.ToLower(webrtc.MimeTypeVP8), strings.ToLower(webrtc.MimeTypeVP9), strings.ToLower(webrtc.MimeTypeAV1):
		return true
	}
	return false
}

// RecordIVF depacketizes track into w until the track ends. It returns the
// number of RTP packets consumed.
func RecordIVF(track *webrtc.TrackRemote, w io.Writer, log *slog.Logger) (int, error) {
	buf := make([]byte, 1500)
	next := func() (*rtp.Packet, error) {
		n, _, err := track.Read(buf)
		if err != nil {
			return nil, err
		}
		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			return nil, fmt.Errorf("unmarshal rtp: %w", err)
		}
		return pkt, nil
	}
	return recordPackets(next, track.Codec().MimeType, w, log)
}

func recordPackets(next func() (*rtp.Packet, error), mimeType string, w io.Writer, log *slog.Logger) (int, error) {
	if log == nil {
		log = slog.Default()
	}
	if !CanRecordIVF(mimeType) {
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCodec, mimeType)
	}
	writer, err := ivfwriter.NewWith(w, ivfwriter.WithCodec(mimeType))
	if err != nil {
		return 0, fmt.Errorf("new ivf writer: %w", err)
	}

	packets := 0
	for {
		pkt, err := next()
		if err != nil {
			closeErr := writer.Close()
			if errors.Is(err, io.EOF) {
				log.Info("remote track ended", "packets", packets)
				return packets, closeErr
			}
			return packets, err
		}
		if err := writer.WriteRTP(pkt); err != nil {
			log.Debug("dropping rtp packet", "seq", pkt.SequenceNumber, "err", err)
			continue
		}
		packets++
	}
}

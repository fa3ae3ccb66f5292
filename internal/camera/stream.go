package camera

import (
	"strings"
	"sync"

	"github.com/pion/rtp"

	"github.com/weiawesome/wes-io-stage/internal/webrtc"
)

const streamBuffer = 256

// Stream is the video of one live session. Renderers read packets from it;
// they never touch the peer connection.
type Stream struct {
	DeviceID string
	TrackID  string
	MimeType string

	packets chan *rtp.Packet
	done    chan struct{}
	once    sync.Once
}

func isVideo(t webrtc.RemoteTrack) bool {
	return strings.HasPrefix(strings.ToLower(t.MimeType()), "video/")
}

// newStream starts pumping t. The pump ends when the track errors, which
// pion guarantees once the owning connection closes.
func newStream(deviceID string, t webrtc.RemoteTrack) *Stream {
	s := &Stream{
		DeviceID: deviceID,
		TrackID:  t.ID(),
		MimeType: t.MimeType(),
		packets:  make(chan *rtp.Packet, streamBuffer),
		done:     make(chan struct{}),
	}
	go s.pump(t)
	return s
}

func (s *Stream) pump(t webrtc.RemoteTrack) {
	defer close(s.packets)
	for {
		p, err := t.ReadRTP()
		if err != nil {
			return
		}
		select {
		case <-s.done:
			return
		case s.packets <- p:
		default:
			// Slow consumer; drop rather than stall the receiver.
		}
	}
}

// Packets yields RTP packets until the stream ends.
func (s *Stream) Packets() <-chan *rtp.Packet {
	return s.packets
}

// Done is closed when the session drops this stream.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) stop() {
	s.once.Do(func() { close(s.done) })
}

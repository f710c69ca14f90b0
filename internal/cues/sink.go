package cues

import (
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/pion/rtp"
	"github.com/zaf/g711"
)

// payloadTypePCMU is the static RTP payload type of G.711 µ-law.
const payloadTypePCMU = 0

// OpenSink resolves an audio_output setting:
//
//	"" or "none"        discard
//	"rtp://host:port"   RTP/PCMU over UDP, e.g. to a local media player
//	"file:///path", path  raw PCM appended to a file
func OpenSink(target string) (io.WriteCloser, error) {
	switch {
	case target == "" || target == "none":
		return nopCloser{io.Discard}, nil
	case strings.HasPrefix(target, "rtp://"):
		u, err := url.Parse(target)
		if err != nil {
			return nil, fmt.Errorf("parse audio output: %w", err)
		}
		conn, err := net.Dial("udp", u.Host)
		if err != nil {
			return nil, fmt.Errorf("dial audio output: %w", err)
		}
		return NewRTPSink(conn), nil
	default:
		path := strings.TrimPrefix(target, "file://")
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open audio output: %w", err)
		}
		return f, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// RTPSink packetizes PCM frames as PCMU RTP packets. Pacing is left to the
// caller; the players already write one frame per tick.
type RTPSink struct {
	conn io.WriteCloser

	mu        sync.Mutex
	ssrc      uint32
	seq       uint16
	timestamp uint32
	marker    bool
}

// NewRTPSink sends packets over conn.
func NewRTPSink(conn io.WriteCloser) *RTPSink {
	return &RTPSink{
		conn:      conn,
		ssrc:      rand.Uint32(),
		seq:       uint16(rand.UintN(1 << 16)),
		timestamp: rand.Uint32(),
		marker:    true,
	}
}

// Write encodes one PCM frame and sends it as a single packet.
func (s *RTPSink) Write(pcm []byte) (int, error) {
	payload := g711.EncodeUlaw(pcm)

	s.mu.Lock()
	defer s.mu.Unlock()

	pkt := &rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         s.marker,
			PayloadType:    payloadTypePCMU,
			SequenceNumber: s.seq,
			Timestamp:      s.timestamp,
			SSRC:           s.ssrc,
		},
		Payload: payload,
	}
	data, err := pkt.Marshal()
	if err != nil {
		return 0, err
	}
	if _, err := s.conn.Write(data); err != nil {
		return 0, err
	}

	s.marker = false
	s.seq++
	s.timestamp += uint32(len(payload))
	return len(pcm), nil
}

// Close closes the underlying connection.
func (s *RTPSink) Close() error {
	return s.conn.Close()
}

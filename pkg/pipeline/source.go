package pipeline

import (
	"io"

	"github.com/uhyunpark/itchmoe/pkg/itch"
)

// Source yields raw frames. Next returns io.EOF when the stream ends. The
// returned slice may be reused by the following call.
type Source interface {
	Next() ([]byte, error)
}

type sliceSource struct {
	frames [][]byte
	i      int
}

func (s *sliceSource) Next() ([]byte, error) {
	if s.i >= len(s.frames) {
		return nil, io.EOF
	}
	f := s.frames[s.i]
	s.i++
	return f, nil
}

// Frames serves pre-split buffers in order.
func Frames(frames [][]byte) Source { return &sliceSource{frames: frames} }

// Orders encodes orders to the wire format and serves them, so in-memory
// scenarios exercise the decoder exactly like a file would.
func Orders(orders []itch.AddOrder) Source {
	frames := make([][]byte, len(orders))
	for i := range orders {
		frames[i] = itch.Encode(&orders[i])
	}
	return Frames(frames)
}

// Reader splits r into frames.
func Reader(r io.Reader) Source { return itch.NewFrameReader(r) }

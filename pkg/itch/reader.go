package itch

import (
	"bufio"
	"errors"
	"fmt"
	"io"
)

// FrameReader splits a concatenated feed into AddOrderSize frames. A short
// final frame is returned as-is so the decoder can reject and count it.
type FrameReader struct {
	r   *bufio.Reader
	buf [AddOrderSize]byte
}

func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReader(r)}
}

// Next returns the next frame. The slice is only valid until the following
// call. It returns io.EOF once the input is exhausted.
func (fr *FrameReader) Next() ([]byte, error) {
	n, err := io.ReadFull(fr.r, fr.buf[:])
	switch {
	case err == nil:
		return fr.buf[:], nil
	case errors.Is(err, io.ErrUnexpectedEOF):
		return fr.buf[:n], nil
	case errors.Is(err, io.EOF):
		return nil, io.EOF
	default:
		return nil, fmt.Errorf("read frame: %w", err)
	}
}

// ReadAll collects every frame, copying each one.
func ReadAll(r io.Reader) ([][]byte, error) {
	fr := NewFrameReader(r)
	var frames [][]byte
	for {
		f, err := fr.Next()
		if errors.Is(err, io.EOF) {
			return frames, nil
		}
		if err != nil {
			return frames, err
		}
		frames = append(frames, append([]byte(nil), f...))
	}
}

// WriteFrames encodes orders back to back onto w.
func WriteFrames(w io.Writer, orders []AddOrder) error {
	bw := bufio.NewWriter(w)
	var buf [AddOrderSize]byte
	for i := range orders {
		EncodeTo(buf[:], &orders[i])
		if _, err := bw.Write(buf[:]); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("flush frames: %w", err)
	}
	return nil
}

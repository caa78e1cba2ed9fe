package agvtcp

import (
	"io"
	"sync"
)

// Writer encodes frames onto w with a per-stream wrapping sequence number.
// It is safe for concurrent use.
type Writer struct {
	mu  sync.Mutex
	w   io.Writer
	seq uint16
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteFrame stamps the next sequence number and writes one frame. The
// sequence number used is returned.
func (w *Writer) WriteFrame(msgType uint16, body []byte) (uint16, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.seq++
	if err := w.write(Frame{Sequence: w.seq, Type: msgType, Body: body}); err != nil {
		return 0, err
	}
	return w.seq, nil
}

// Reply writes a response frame carrying the sequence number of the request
// it answers. The stream's own counter is left untouched.
func (w *Writer) Reply(seq, msgType uint16, body []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(Frame{Sequence: seq, Type: msgType, Body: body})
}

func (w *Writer) write(f Frame) error {
	buf, err := f.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = w.w.Write(buf)
	return err
}

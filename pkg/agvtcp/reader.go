package agvtcp

import (
	"bufio"
	"io"
)

// Reader extracts frames from a byte stream, resynchronising on garbage.
type Reader struct {
	br      *bufio.Reader
	maxBody uint32

	// Skipped counts bytes dropped while searching for a valid header.
	Skipped uint64
}

// NewReader wraps r. maxBody <= 0 selects DefaultMaxBodyLength.
func NewReader(r io.Reader, maxBody int) *Reader {
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyLength
	}
	return &Reader{br: bufio.NewReader(r), maxBody: uint32(maxBody)}
}

// ReadFrame blocks until a complete frame is available. Bytes before a sync
// byte are skipped; a header declaring an oversized body is skipped one byte
// at a time until the next plausible header. io.EOF is returned only on a
// frame boundary; a stream cut inside a frame yields io.ErrUnexpectedEOF.
func (r *Reader) ReadFrame() (*Frame, error) {
	for {
		if err := r.seekSync(); err != nil {
			return nil, err
		}

		hb, err := r.br.Peek(HeaderSize)
		if err != nil {
			if err == io.EOF {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}

		h := parseHeader(hb)
		if h.length > r.maxBody {
			r.discard(1)
			continue
		}

		buf := make([]byte, HeaderSize+int(h.length))
		if _, err := io.ReadFull(r.br, buf); err != nil {
			if err == io.EOF {
				err = io.ErrUnexpectedEOF
			}
			return nil, err
		}

		return &Frame{
			Version:  h.version,
			Sequence: h.sequence,
			Type:     h.msgType,
			Body:     buf[HeaderSize:],
		}, nil
	}
}

func (r *Reader) seekSync() error {
	for {
		b, err := r.br.Peek(1)
		if err != nil {
			return err
		}
		if b[0] == SyncByte {
			return nil
		}
		r.discard(1)
	}
}

func (r *Reader) discard(n int) {
	d, _ := r.br.Discard(n)
	r.Skipped += uint64(d)
}

// Package permessage implements the permessage-deflate WebSocket
// extension (RFC 7692) as an nbws.Extension.
package permessage

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/klauspost/compress/flate"

	"github.com/coregx/nbws"
)

// deflateTail is the fixed 4-byte sequence RFC 7692 §7.2.1 says a sender
// strips from the end of every DEFLATE block and a receiver must restore
// before inflating.
var deflateTail = []byte{0x00, 0x00, 0xff, 0xff}

// Extension is an nbws.Extension implementing permessage-deflate with
// context takeover on the outbound side (the compressor's dictionary
// persists across messages on one connection, RFC 7692's default).
// Inbound messages are inflated independently by Decompress.
type Extension struct {
	level int
}

// New returns a permessage-deflate Extension compressing at level (use
// flate.DefaultCompression for the library default).
func New(level int) *Extension {
	return &Extension{level: level}
}

func (e *Extension) Name() string { return "permessage-deflate" }

// OkToPropose always allows proposing permessage-deflate alongside any
// other registered extension; this package registers nothing else that
// would conflict with it.
func (e *Extension) OkToPropose(string) bool { return true }

// State is the per-connection compressor ClientConstruct allocates.
// Compress is safe for concurrent use. State holds no decompressor:
// inflating is done by the package-level Decompress.
//
// buf is the flate.Writer's only destination, for the life of the
// connection: Compress never calls w.Reset, since that would discard the
// sliding-window dictionary and defeat context takeover. Each call instead
// records buf's length beforehand and slices out only the bytes that call
// appended.
type State struct {
	mu  sync.Mutex
	w   *flate.Writer
	buf bytes.Buffer
}

func (e *Extension) ClientConstruct(_ *nbws.Connection) (any, error) {
	s := &State{}
	w, err := flate.NewWriter(&s.buf, e.level)
	if err != nil {
		return nil, fmt.Errorf("permessage-deflate: %w", err)
	}
	s.w = w
	return s, nil
}

func (e *Extension) AnyWsiEstablished(_ *nbws.Connection, _ any) {}

// Compress deflates payload for one outbound message and returns the
// wire-ready bytes with the trailing 00 00 FF FF removed. The writer's
// dictionary carries over to the next call (context takeover).
func (s *State) Compress(payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	start := s.buf.Len()
	if _, err := s.w.Write(payload); err != nil {
		return nil, fmt.Errorf("permessage-deflate: compress: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return nil, fmt.Errorf("permessage-deflate: compress: %w", err)
	}

	written := s.buf.Bytes()[start:]
	b := make([]byte, len(written))
	copy(b, written)
	if bytes.HasSuffix(b, deflateTail) {
		b = b[:len(b)-len(deflateTail)]
	}
	return b, nil
}

// Decompress restores deflateTail and inflates one message's payload with
// a fresh reader. No dictionary carries over from earlier messages, so a
// payload that refers back to a previous message's data is not decoded.
func Decompress(payload []byte) ([]byte, error) {
	padded := make([]byte, 0, len(payload)+len(deflateTail))
	padded = append(padded, payload...)
	padded = append(padded, deflateTail...)

	r := flate.NewReader(bytes.NewReader(padded))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("permessage-deflate: decompress: %w", err)
	}
	return out, nil
}

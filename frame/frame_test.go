package frame

import (
	"bufio"
	"bytes"
	"errors"
	"testing"
)

// TestReadFrame_TextUnmasked tests reading an unmasked text frame from a
// server (client-role reader expects unmasked frames).
// RFC 6455 Section 5.6: Text frames contain UTF-8 data.
func TestReadFrame_TextUnmasked(t *testing.T) {
	data := []byte{
		0x81, // FIN=1, RSV=0, opcode=0x1 (text)
		0x05, // MASK=0, length=5
		'H', 'e', 'l', 'l', 'o',
	}

	r := bufio.NewReader(bytes.NewReader(data))
	f, err := readFrame(r, false)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if !f.fin {
		t.Error("expected FIN=1")
	}
	if f.opcode != opcodeText {
		t.Errorf("expected opcode text(0x1), got 0x%X", f.opcode)
	}
	if string(f.payload) != "Hello" {
		t.Errorf("expected payload 'Hello', got %q", f.payload)
	}
}

// TestReadFrame_MaskedFromServer_Rejected enforces RFC 6455 Section 5.3:
// server-to-client frames must not be masked.
func TestReadFrame_MaskedFromServer_Rejected(t *testing.T) {
	payload := []byte("Hello")
	mask := [4]byte{0x12, 0x34, 0x56, 0x78}
	masked := append([]byte(nil), payload...)
	applyMask(masked, mask)

	data := []byte{0x81, 0x85, mask[0], mask[1], mask[2], mask[3]}
	data = append(data, masked...)

	r := bufio.NewReader(bytes.NewReader(data))
	_, err := readFrame(r, false)
	if !errors.Is(err, ErrMaskUnexpected) {
		t.Fatalf("expected ErrMaskUnexpected, got %v", err)
	}
}

// TestReadFrame_UnmaskedFromClient_Rejected enforces the converse rule for
// a server-role reader (exercised only by tests standing in for a peer).
func TestReadFrame_UnmaskedFromClient_Rejected(t *testing.T) {
	data := []byte{0x81, 0x05, 'H', 'e', 'l', 'l', 'o'}
	r := bufio.NewReader(bytes.NewReader(data))
	_, err := readFrame(r, true)
	if !errors.Is(err, ErrMaskRequired) {
		t.Fatalf("expected ErrMaskRequired, got %v", err)
	}
}

// TestReadFrame_ExtendedLength16 tests the 126 payload-length escape.
func TestReadFrame_ExtendedLength16(t *testing.T) {
	payload := bytes.Repeat([]byte{'x'}, 300)

	var buf bytes.Buffer
	buf.WriteByte(0x82) // FIN=1, opcode=binary
	buf.WriteByte(0x7E) // MASK=0, len=126 (extended 16-bit follows)
	buf.WriteByte(byte(len(payload) >> 8))
	buf.WriteByte(byte(len(payload)))
	buf.Write(payload)

	r := bufio.NewReader(&buf)
	f, err := readFrame(r, false)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if len(f.payload) != len(payload) {
		t.Fatalf("expected %d bytes, got %d", len(payload), len(f.payload))
	}
}

// TestReadFrame_ReservedBits rejects RSV bits without a negotiated extension.
func TestReadFrame_ReservedBits(t *testing.T) {
	data := []byte{0xC1, 0x00} // FIN=1, RSV1=1, opcode=text
	r := bufio.NewReader(bytes.NewReader(data))
	_, err := readFrame(r, false)
	if !errors.Is(err, ErrReservedBits) {
		t.Fatalf("expected ErrReservedBits, got %v", err)
	}
}

// TestReadFrame_ControlFragmented rejects a control frame with FIN=0.
func TestReadFrame_ControlFragmented(t *testing.T) {
	data := []byte{0x08, 0x00} // FIN=0, opcode=close
	r := bufio.NewReader(bytes.NewReader(data))
	_, err := readFrame(r, false)
	if !errors.Is(err, ErrControlFragmented) {
		t.Fatalf("expected ErrControlFragmented, got %v", err)
	}
}

// TestReadFrame_ControlTooLarge rejects a control frame with payload > 125.
func TestReadFrame_ControlTooLarge(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0x89) // FIN=1, opcode=ping
	buf.WriteByte(0x7E) // MASK=0, len=126 -> extended length
	buf.WriteByte(0x00)
	buf.WriteByte(200)
	buf.Write(make([]byte, 200))

	r := bufio.NewReader(&buf)
	_, err := readFrame(r, false)
	if !errors.Is(err, ErrControlTooLarge) {
		t.Fatalf("expected ErrControlTooLarge, got %v", err)
	}
}

// TestWriteFrame_RoundTrip writes a masked client frame and reads it back.
func TestWriteFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	f := &frame{
		fin:     true,
		opcode:  opcodeText,
		masked:  true,
		mask:    [4]byte{1, 2, 3, 4},
		payload: []byte("round trip"),
	}
	if err := writeFrame(w, f); err != nil {
		t.Fatalf("writeFrame failed: %v", err)
	}

	r := bufio.NewReader(&buf)
	got, err := readFrame(r, true)
	if err != nil {
		t.Fatalf("readFrame failed: %v", err)
	}
	if string(got.payload) != "round trip" {
		t.Errorf("expected 'round trip', got %q", got.payload)
	}
}

// TestWriteFrame_InvalidUTF8 rejects a text frame with invalid UTF-8.
func TestWriteFrame_InvalidUTF8(t *testing.T) {
	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	f := &frame{fin: true, opcode: opcodeText, payload: []byte{0xff, 0xfe}}
	if err := writeFrame(w, f); !errors.Is(err, ErrInvalidUTF8) {
		t.Fatalf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestApplyMask_Reversible(t *testing.T) {
	mask := [4]byte{9, 8, 7, 6}
	orig := []byte("the quick brown fox")
	data := append([]byte(nil), orig...)

	applyMask(data, mask)
	if bytes.Equal(data, orig) {
		t.Fatal("masking did not change the payload")
	}
	applyMask(data, mask)
	if !bytes.Equal(data, orig) {
		t.Fatal("applying mask twice did not restore the original payload")
	}
}

package frame

import (
	"bufio"
	"errors"
	"net"
	"testing"
	"time"
)

// pipe builds a client Conn and a server Conn back to back over net.Pipe,
// mirroring how nbws hands a Conn a bare transport at ESTABLISHED.
func pipe(t *testing.T) (client, server *Conn) {
	t.Helper()
	a, b := net.Pipe()
	client = NewConn(a, bufio.NewReader(a), bufio.NewWriter(a), false)
	server = NewConn(b, bufio.NewReader(b), bufio.NewWriter(b), true)
	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})
	return client, server
}

func TestConn_WriteRead_Text(t *testing.T) {
	client, server := pipe(t)

	done := make(chan error, 1)
	go func() {
		done <- client.WriteText("hello server")
	}()

	mt, data, err := server.Read()
	if err != nil {
		t.Fatalf("server.Read: %v", err)
	}
	if mt != TextMessage || string(data) != "hello server" {
		t.Fatalf("got (%v, %q)", mt, data)
	}
	if err := <-done; err != nil {
		t.Fatalf("client.WriteText: %v", err)
	}
}

func TestConn_Fragmentation_Reassembled(t *testing.T) {
	client, server := pipe(t)

	go func() {
		mask := [4]byte{1, 2, 3, 4}
		_ = writeFrame(client.writer, &frame{opcode: opcodeText, masked: true, mask: mask, payload: []byte("foo")})
		_ = writeFrame(client.writer, &frame{opcode: opcodeContinuation, masked: true, mask: mask, payload: []byte("bar")})
		_ = writeFrame(client.writer, &frame{fin: true, opcode: opcodeContinuation, masked: true, mask: mask, payload: []byte("baz")})
	}()

	mt, data, err := server.Read()
	if err != nil {
		t.Fatalf("server.Read: %v", err)
	}
	if mt != TextMessage || string(data) != "foobarbaz" {
		t.Fatalf("got (%v, %q)", mt, data)
	}
}

func TestConn_Ping_AutoPong(t *testing.T) {
	client, server := pipe(t)

	go func() {
		_ = client.Ping([]byte("hi"))
		_ = client.WriteText("after ping")
	}()

	done := make(chan struct{})
	var pongData []byte
	go func() {
		f, err := readFrame(client.reader, false)
		if err == nil && f.opcode == opcodePong {
			pongData = f.payload
		}
		close(done)
	}()

	mt, data, err := server.Read()
	if err != nil {
		t.Fatalf("server.Read: %v", err)
	}
	if mt != TextMessage || string(data) != "after ping" {
		t.Fatalf("got (%v, %q)", mt, data)
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pong")
	}
	if string(pongData) != "hi" {
		t.Fatalf("expected pong payload 'hi', got %q", pongData)
	}
}

func TestConn_Close_ThenReadReturnsErrClosed(t *testing.T) {
	client, _ := pipe(t)
	_ = client.conn.Close()
	client.closed = true

	if _, _, err := client.Read(); !errors.Is(err, ErrClosed) {
		t.Fatalf("expected ErrClosed, got %v", err)
	}
}

func TestConn_MasksClientWrites(t *testing.T) {
	client, server := pipe(t)

	go func() { _ = client.WriteText("masked?") }()

	f, err := readFrame(server.reader, true)
	if err != nil {
		t.Fatalf("readFrame: %v", err)
	}
	if !f.masked {
		t.Fatal("expected client write to be masked")
	}
}

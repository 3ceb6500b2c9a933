package poller

import (
	"bytes"
	"crypto/sha1" //#nosec G505 -- test-only peer simulating RFC 6455's mandated Accept derivation
	"encoding/base64"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/coregx/nbws"
)

const testWebsocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// extractKey pulls the Sec-WebSocket-Key value out of a raw handshake
// request, standing in for a real WebSocket server for this loop test.
func extractKey(req []byte) (string, error) {
	const marker = "Sec-WebSocket-Key: "
	i := bytes.Index(req, []byte(marker))
	if i < 0 {
		return "", fmt.Errorf("no Sec-WebSocket-Key header in request")
	}
	rest := req[i+len(marker):]
	j := bytes.IndexByte(rest, '\r')
	if j < 0 {
		return "", fmt.Errorf("malformed Sec-WebSocket-Key header")
	}
	return string(rest[:j]), nil
}

func computeAccept(key string) string {
	h := sha1.New() //#nosec G401 -- RFC 6455 mandates SHA-1 here
	h.Write([]byte(key))
	h.Write([]byte(testWebsocketGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func TestLoop_ArmReadable_DrivesServiceOnData(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx := nbws.NewContext([]nbws.ProtocolHandler{{Name: "chat"}}, nil)
	l := NewLoop()
	ctx.Loop = l

	established := make(chan struct{}, 1)
	c := nbws.NewConnection(ctx, client, nbws.Target{Host: "h", Path: "/"}, nbws.TLSOff, []string{"chat"}, &nbws.Handlers{
		Established: func(*nbws.Connection) { established <- struct{}{} },
	})
	l.Register(c)
	defer l.Unregister(c)

	req := make([]byte, 4096)
	go func() {
		n, _ := server.Read(req)
		req = req[:n]

		key, err := extractKey(req)
		if err != nil {
			return
		}
		resp := "HTTP/1.1 101 Switching Protocols\r\n" +
			"Upgrade: websocket\r\n" +
			"Connection: Upgrade\r\n" +
			"Sec-WebSocket-Accept: " + computeAccept(key) + "\r\n" +
			"\r\n"
		_, _ = server.Write([]byte(resp))
	}()

	select {
	case <-established:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Established via poller.Loop")
	}
}

func TestLoop_UnregisterStopsPolling(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	ctx := nbws.NewContext([]nbws.ProtocolHandler{{Name: "chat"}}, nil)
	l := NewLoop()
	ctx.Loop = l
	c := nbws.NewConnection(ctx, client, nbws.Target{Host: "h", Path: "/"}, nbws.TLSOff, []string{"chat"}, &nbws.Handlers{})

	l.Register(c)
	l.Unregister(c)

	// A second Unregister must not panic.
	l.Unregister(c)
}

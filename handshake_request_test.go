package nbws

import (
	"net"
	"strings"
	"testing"
)

// newTestConnection builds a Connection over an in-memory pipe, bypassing
// net.Dial, for request/response unit tests that never touch a real socket.
func newTestConnection(t *testing.T, target Target) (*Connection, net.Conn) {
	t.Helper()
	client, server := net.Pipe()
	t.Cleanup(func() { _ = client.Close(); _ = server.Close() })

	ctx := NewContext([]ProtocolHandler{{Name: "chat"}}, nil)
	c := NewConnection(ctx, client, target, TLSOff, []string{"chat"}, &Handlers{})
	return c, server
}

func TestBuildClientRequest_FieldOrderAndHostPort(t *testing.T) {
	c, _ := newTestConnection(t, Target{Host: "example.com", Port: 8080, Path: "/ws", Origin: "http://example.com"})

	req, err := buildClientRequest(c, nil)
	if err != nil {
		t.Fatalf("buildClientRequest: %v", err)
	}
	s := string(req)

	order := []string{
		"GET /ws HTTP/1.1\r\n",
		"Host: example.com:8080\r\n",
		"Upgrade: websocket\r\n",
		"Sec-WebSocket-Key: ",
		"Origin: http://example.com\r\n",
		"Sec-WebSocket-Protocol: chat\r\n",
		"Sec-WebSocket-Extensions: \r\n",
		"Sec-WebSocket-Version: 13\r\n",
	}
	pos := 0
	for _, tok := range order {
		i := strings.Index(s[pos:], tok)
		if i < 0 {
			t.Fatalf("missing %q in order, request:\n%s", tok, s)
		}
		pos += i + len(tok)
	}
	if !strings.HasSuffix(s, "\r\n\r\n") {
		t.Fatalf("request does not end with blank line: %q", s)
	}
}

func TestBuildClientRequest_DefaultPortOmitted(t *testing.T) {
	c, _ := newTestConnection(t, Target{Host: "example.com", Port: 80, Path: "/"})
	req, err := buildClientRequest(c, nil)
	if err != nil {
		t.Fatalf("buildClientRequest: %v", err)
	}
	if !strings.Contains(string(req), "Host: example.com\r\n") {
		t.Fatalf("expected bare host without default port, got:\n%s", req)
	}
}

func TestBuildClientRequest_SetsKeyAndExpectedAccept(t *testing.T) {
	c, _ := newTestConnection(t, Target{Host: "h", Path: "/"})
	if _, err := buildClientRequest(c, nil); err != nil {
		t.Fatalf("buildClientRequest: %v", err)
	}
	if c.key == "" {
		t.Fatal("expected Sec-WebSocket-Key to be recorded on the connection")
	}
	want := computeExpectedAccept(c.key)
	if c.expectedAccept != want {
		t.Fatalf("expectedAccept = %q, want %q", c.expectedAccept, want)
	}
}

func TestBuildClientRequest_NoOriginWhenUnset(t *testing.T) {
	c, _ := newTestConnection(t, Target{Host: "h", Path: "/"})
	req, err := buildClientRequest(c, nil)
	if err != nil {
		t.Fatalf("buildClientRequest: %v", err)
	}
	if strings.Contains(string(req), "Origin") {
		t.Fatalf("did not expect an Origin header, got:\n%s", req)
	}
}

func TestBuildClientRequest_OldVersionUsesSecWebSocketOrigin(t *testing.T) {
	c, _ := newTestConnection(t, Target{Host: "h", Path: "/", Origin: "http://h", Version: 8})
	req, err := buildClientRequest(c, nil)
	if err != nil {
		t.Fatalf("buildClientRequest: %v", err)
	}
	s := string(req)
	if !strings.Contains(s, "Sec-WebSocket-Origin: http://h\r\n") {
		t.Fatalf("expected Sec-WebSocket-Origin for version 8, got:\n%s", s)
	}
	if strings.Contains(s, "\r\nOrigin:") {
		t.Fatalf("did not expect a plain Origin header for version 8, got:\n%s", s)
	}
}

func TestBuildClientRequest_AppendHandshakeHeaderInserted(t *testing.T) {
	c, _ := newTestConnection(t, Target{Host: "h", Path: "/"})
	c.handlers = &Handlers{
		AppendHandshakeHeader: func(buf []byte, _ int) []byte {
			return append(buf, "X-Custom: yes\r\n"...)
		},
	}
	req, err := buildClientRequest(c, nil)
	if err != nil {
		t.Fatalf("buildClientRequest: %v", err)
	}
	if !strings.Contains(string(req), "X-Custom: yes\r\n") {
		t.Fatalf("expected custom header injected, got:\n%s", req)
	}
}

func TestHostHeaderValue(t *testing.T) {
	cases := []struct {
		t    Target
		tls  bool
		want string
	}{
		{Target{Host: "h", Port: 80}, false, "h"},
		{Target{Host: "h", Port: 443}, true, "h"},
		{Target{Host: "h", Port: 8080}, false, "h:8080"},
		{Target{Host: "h", Port: 0}, false, "h"},
	}
	for _, tc := range cases {
		if got := hostHeaderValue(tc.t, tc.tls); got != tc.want {
			t.Errorf("hostHeaderValue(%+v, %v) = %q, want %q", tc.t, tc.tls, got, tc.want)
		}
	}
}

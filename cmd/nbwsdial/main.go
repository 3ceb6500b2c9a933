// Command nbwsdial dials a single WebSocket URL end to end using the nbws
// handshake core, for manual testing and as a runnable demonstration of
// the library. It is demonstration/integration tooling, not part of the
// core's public contract.
package main

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/coregx/nbws"
	nbwstransport "github.com/coregx/nbws/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		protocols []string
		origin    string
		insecure  bool
		timeout   time.Duration
		verbose   bool
	)

	cmd := &cobra.Command{
		Use:   "nbwsdial <ws:// or wss:// URL>",
		Short: "Dial a WebSocket server using the nbws handshake core",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			log := logrus.StandardLogger()
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}
			return dial(args[0], protocols, origin, insecure, timeout, log)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceVarP(&protocols, "protocol", "p", nil, "sub-protocols to offer, comma-separated")
	flags.StringVar(&origin, "origin", "", "Origin header value")
	flags.BoolVar(&insecure, "insecure", false, "skip TLS certificate verification (wss:// only)")
	flags.DurationVar(&timeout, "timeout", 10*time.Second, "overall dial timeout")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every state transition")

	return cmd
}

func dial(rawURL string, protocols []string, origin string, insecure bool, timeout time.Duration, log *logrus.Logger) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("parsing URL: %w", err)
	}

	useTLS := nbws.TLSOff
	defaultPort := "80"
	switch u.Scheme {
	case "ws":
	case "wss":
		useTLS = nbws.TLSOnVerified
		if insecure {
			useTLS = nbws.TLSOnPermissive
		}
		defaultPort = "443"
	default:
		return fmt.Errorf("unsupported scheme %q (want ws or wss)", u.Scheme)
	}

	host := u.Hostname()
	portStr := u.Port()
	if portStr == "" {
		portStr = defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("parsing port %q: %w", portStr, err)
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	raw, err := net.DialTimeout("tcp", net.JoinHostPort(host, portStr), timeout)
	if err != nil {
		return fmt.Errorf("dialing %s:%s: %w", host, portStr, err)
	}

	var transport nbws.Transport = raw
	if useTLS != nbws.TLSOff {
		transport = nbwstransport.NewTLS(raw, &tls.Config{MinVersion: tls.VersionTLS12}, host, useTLS == nbws.TLSOnPermissive) //nolint:gosec // InsecureSkipVerify gated on explicit --insecure
	}

	ctx := nbws.NewContext(
		[]nbws.ProtocolHandler{{Name: "nbwsdial"}},
		nil,
	)
	ctx.Logger = log

	established := make(chan *nbws.Connection, 1)
	failed := make(chan error, 1)

	handlers := &nbws.Handlers{
		Established: func(c *nbws.Connection) {
			established <- c
		},
		ConnectionError: func(_ *nbws.Connection, err *nbws.Error) {
			failed <- err
		},
	}

	target := nbws.Target{Host: host, Port: port, Path: path, Origin: origin}

	loop, err := newLoop()
	if err != nil {
		return fmt.Errorf("starting event loop: %w", err)
	}
	ctx.Loop = loop

	conn := nbws.NewConnection(ctx, transport, target, useTLS, protocols, handlers)
	if err := loop.register(conn); err != nil {
		return fmt.Errorf("registering connection with event loop: %w", err)
	}

	deadline := time.After(timeout)
	for {
		if err := loop.pump(); err != nil {
			return err
		}
		select {
		case c := <-established:
			fmt.Printf("established: protocol=%q live_connections=%d\n", protoName(c.SelectedProtocol()), ctx.LiveConnections())
			return nil
		case err := <-failed:
			return fmt.Errorf("handshake failed: %w", err)
		case <-deadline:
			return fmt.Errorf("timed out after %s", timeout)
		default:
		}
	}
}

func protoName(p *nbws.ProtocolHandler) string {
	if p == nil {
		return ""
	}
	return p.Name
}

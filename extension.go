package nbws

import "strings"

// Extension is a per-connection frame transformer (compression,
// multiplexing) negotiated over Sec-WebSocket-Extensions.
//
// Per-connection instances are values owned by the Connection, created by
// ClientConstruct only for extensions the server actually accepted, never
// eagerly for the whole registry.
type Extension interface {
	// Name is matched against the comma/whitespace-separated names in a
	// server's Sec-WebSocket-Extensions response, and is what this
	// extension proposes under in the client's request.
	Name() string

	// OkToPropose implements CHECK_OK_TO_PROPOSE_EXTENSION: every other
	// registered extension is asked whether candidate may be proposed
	// alongside it. Returning false vetoes the candidate.
	OkToPropose(candidate string) bool

	// ClientConstruct implements LWS_EXT_CALLBACK_CLIENT_CONSTRUCT,
	// allocating per-connection state for an extension the server
	// accepted. Fires in the order the server listed extensions.
	ClientConstruct(c *Connection) (state any, err error)

	// AnyWsiEstablished implements LWS_EXT_CALLBACK_ANY_WSI_ESTABLISHED,
	// delivered to every *registered* extension after ESTABLISHED. State
	// is non-nil only for extensions this connection actually activated.
	AnyWsiEstablished(c *Connection, state any)
}

// activeExtension pairs an accepted Extension with the per-connection state
// ClientConstruct allocated for it.
type activeExtension struct {
	ext   Extension
	state any
}

// proposeExtensions runs the Extension Proposer algorithm: for each
// registered extension, every other registered extension is polled via
// OkToPropose; survivors are further filtered by confirm (the
// CLIENT_CONFIRM_EXTENSION_SUPPORTED callback, where returning false means
// "do not propose"). Ordering mirrors registry order.
func proposeExtensions(registry []Extension, confirm func(name string) bool) []string {
	var proposal []string

	for i, candidate := range registry {
		vetoed := false
		for j, other := range registry {
			if i == j {
				continue
			}
			if !other.OkToPropose(candidate.Name()) {
				vetoed = true
				break
			}
		}
		if vetoed {
			continue
		}
		if confirm != nil && !confirm(candidate.Name()) {
			continue
		}
		proposal = append(proposal, candidate.Name())
	}

	return proposal
}

// findExtension looks up name in the registry by exact match, the way
// negotiateExtensions must once it has split the server's CSV into tokens.
func findExtension(registry []Extension, name string) Extension {
	for _, e := range registry {
		if e.Name() == name {
			return e
		}
	}
	return nil
}

// splitExtensionNames tokenizes a Sec-WebSocket-Extensions value into bare
// extension names, dropping any ";param=value" qualifiers. This module
// negotiates presence of an extension, not its per-extension parameters.
func splitExtensionNames(value string) []string {
	var names []string
	for _, tok := range strings.Split(value, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if semi := strings.IndexByte(tok, ';'); semi >= 0 {
			tok = tok[:semi]
		}
		names = append(names, strings.Fields(tok)...)
	}
	return names
}

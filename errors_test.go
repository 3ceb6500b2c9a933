package nbws

import (
	"errors"
	"testing"
)

func TestError_ErrorString_WithAndWithoutCause(t *testing.T) {
	bare := newError(KindBadAccept, CloseProtocolErr, "mismatch", nil)
	if bare.Error() == "" {
		t.Fatal("expected non-empty message")
	}

	wrapped := newError(KindTransportDead, CloseNoStatus, "read failed", errors.New("boom"))
	if wrapped.Error() == bare.Error() {
		t.Fatal("expected distinct messages")
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("boom")
	e := newError(KindTransportDead, CloseNoStatus, "read failed", cause)
	if !errors.Is(e, cause) {
		t.Fatal("errors.Is should see through Unwrap to cause")
	}
}

func TestError_Is_MatchesByKindOnly(t *testing.T) {
	a := newError(KindBadAccept, CloseProtocolErr, "reason one", nil)
	b := newError(KindBadAccept, CloseNoStatus, "reason two", errors.New("x"))
	if !errors.Is(a, b) {
		t.Fatal("same Kind should compare equal via errors.Is")
	}

	c := newError(KindBadUpgrade, CloseProtocolErr, "reason one", nil)
	if errors.Is(a, c) {
		t.Fatal("different Kind should not compare equal")
	}
}

func TestKind_String_CoversEveryValue(t *testing.T) {
	kinds := []Kind{
		KindTransportDead, KindProxyRejected, KindTLSHandshakeFailed,
		KindBadStatusLine, KindBadUpgrade, KindBadConnection, KindBadAccept,
		KindUnknownProtocol, KindUnknownExtension, KindAllocFailed,
		KindRandomExhausted, KindTimeout, KindParseError, KindRejectedByFilter,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "" || s == "unknown" {
			t.Errorf("Kind(%d).String() = %q", k, s)
		}
		if seen[s] {
			t.Errorf("Kind(%d).String() = %q duplicates another kind", k, s)
		}
		seen[s] = true
	}
}

func TestKind_String_OutOfRange(t *testing.T) {
	if got := Kind(999).String(); got != "unknown" {
		t.Errorf("Kind(999).String() = %q, want %q", got, "unknown")
	}
}

package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"connectrpc.com/connect"
)

func TestKindOf(t *testing.T) {
	notFound := New(KindNotFound, "GetGame", "game not found")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"direct", notFound, KindNotFound},
		{"wrapped", fmt.Errorf("load: %w", notFound), KindNotFound},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), KindTimeout},
		{"plain", errors.New("boom"), KindInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRetryable(t *testing.T) {
	if !Retryable(New(KindNetwork, "", "not connected")) {
		t.Error("network errors should be retryable")
	}
	if !Retryable(New(KindTimeout, "", "ack timeout")) {
		t.Error("timeouts should be retryable")
	}
	if Retryable(New(KindInvalidState, "", "game ended")) {
		t.Error("invalid state must not be retried")
	}
	if Retryable(nil) {
		t.Error("nil is not retryable")
	}
}

func TestConnectRoundTrip(t *testing.T) {
	kinds := []Kind{KindNotFound, KindInvalidState, KindInvalidArgument, KindConflict,
		KindNetwork, KindTimeout, KindExhausted, KindUnauthenticated}

	for _, kind := range kinds {
		err := ToConnect(New(kind, "op", "failure"))
		var ce *connect.Error
		if !errors.As(err, &ce) {
			t.Fatalf("%s: expected *connect.Error", kind)
		}
		back := FromConnect("client", err)
		if got := KindOf(back); got != kind {
			t.Errorf("round trip of %s gave %s", kind, got)
		}
	}
}

func TestErrorMessage(t *testing.T) {
	err := Wrap(KindNetwork, "Request", errors.New("connection reset"))
	if err.Error() != "Request: connection reset" {
		t.Errorf("unexpected message %q", err.Error())
	}

	err = &Error{Kind: KindInternal, Op: "Save", Msg: "write failed", Err: errors.New("disk full")}
	if err.Error() != "Save: write failed: disk full" {
		t.Errorf("unexpected message %q", err.Error())
	}
}

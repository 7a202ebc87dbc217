package channel

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestPairDelivery(t *testing.T) {
	requester, verifier := Pair("requester", "verifier", 4)
	ctx := context.Background()

	msgs := []Message{
		{Type: "trust_claim", Payload: json.RawMessage(`{"id":"claim_1"}`)},
		{Type: "trust_claim", Payload: json.RawMessage(`{"id":"claim_2"}`)},
	}
	for _, m := range msgs {
		if err := requester.Send(ctx, "verifier", m); err != nil {
			t.Fatalf("Send failed: %v", err)
		}
	}

	// Delivery preserves order and stamps the sender.
	for i, want := range msgs {
		got := <-verifier.Receive()
		if got.Type != want.Type || string(got.Payload) != string(want.Payload) {
			t.Errorf("message %d: got %+v", i, got)
		}
		if got.From != "requester" {
			t.Errorf("message %d: expected From requester, got %q", i, got.From)
		}
	}

	// The reverse direction is independent.
	if err := verifier.Send(ctx, "requester", Message{Type: "access_decision"}); err != nil {
		t.Fatalf("reverse Send failed: %v", err)
	}
	if got := <-requester.Receive(); got.Type != "access_decision" {
		t.Errorf("unexpected reverse message: %+v", got)
	}
}

func TestSendUnknownPeer(t *testing.T) {
	a, _ := Pair("a", "b", 1)
	if err := a.Send(context.Background(), "c", Message{Type: "x"}); err == nil {
		t.Error("expected error for unknown peer")
	}
}

func TestSendContextCancellation(t *testing.T) {
	a, _ := Pair("a", "b", 1)
	ctx := context.Background()

	// Fill the buffer, then a canceled context must unblock the sender.
	if err := a.Send(ctx, "b", Message{Type: "x"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := a.Send(cctx, "b", Message{Type: "y"}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestCloseEndsPeerStream(t *testing.T) {
	a, b := Pair("a", "b", 4)
	ctx := context.Background()

	if err := a.Send(ctx, "b", Message{Type: "x"}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// Queued messages drain, then the stream ends.
	if got, ok := <-b.Receive(); !ok || got.Type != "x" {
		t.Fatalf("expected queued message, got %+v ok=%v", got, ok)
	}
	if _, ok := <-b.Receive(); ok {
		t.Error("expected closed stream after drain")
	}

	if err := a.Send(ctx, "b", Message{Type: "y"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}

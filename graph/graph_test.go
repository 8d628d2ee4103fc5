package graph

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/miken90/gonode/keys"
)

func TestLinkToDeliversEvents(t *testing.T) {
	src := NewNode(nil)
	dst := NewNode(nil)

	src.LinkTo(dst)

	if src.OutDegree() != 1 {
		t.Fatalf("OutDegree() = %d, want 1", src.OutDegree())
	}

	want := Event{Key: keys.NameToKey["KEY_A"], Value: keys.Down, From: src.ID()}
	src.SendAll(want)

	select {
	case got := <-dst.Inbound():
		if got != want {
			t.Errorf("received %+v, want %+v", got, want)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnlinkToRemovesEdge(t *testing.T) {
	src := NewNode(nil)
	dst := NewNode(nil)

	src.LinkTo(dst)

	if err := src.UnlinkTo(dst.ID(), dst); err != nil {
		t.Fatalf("UnlinkTo error = %v", err)
	}

	if src.OutDegree() != 0 {
		t.Fatalf("OutDegree() = %d, want 0", src.OutDegree())
	}

	if err := src.UnlinkTo(dst.ID(), dst); err == nil {
		t.Fatal("second UnlinkTo should error, no such link")
	}
}

func TestSendAllFatalOnFullChannel(t *testing.T) {
	var fatalCalls int

	// Backpressure is reported through the sending node's fatal callback.
	src := NewNode(func(err error) { fatalCalls++ })
	dst := NewNode(nil)
	src.LinkTo(dst)

	for i := 0; i < linkChanCapacity+1; i++ {
		src.SendAll(Event{From: src.ID()})
	}

	if fatalCalls == 0 {
		t.Fatal("expected fatal callback to fire on a full channel")
	}
}

func TestUnlinkAllClearsOutboundLinks(t *testing.T) {
	src := NewNode(nil)
	dst1 := NewNode(nil)
	dst2 := NewNode(nil)

	src.LinkTo(dst1)
	src.LinkTo(dst2)

	byID := map[uuid.UUID]*Node{dst1.ID(): dst1, dst2.ID(): dst2}

	src.UnlinkAll(func(id uuid.UUID) Destination {
		if n, ok := byID[id]; ok {
			return n
		}

		return nil
	})

	if src.OutDegree() != 0 {
		t.Fatalf("OutDegree() = %d, want 0 after UnlinkAll", src.OutDegree())
	}

	if len(dst1.in) != 0 || len(dst2.in) != 0 {
		t.Fatal("UnlinkAll should have dropped the destinations' inbound bookkeeping")
	}
}

package mapper

import (
	"testing"
	"time"

	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

func TestChordMapperResolvesMatch(t *testing.T) {
	m := NewChordMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	j := keys.NameToKey["KEY_J"]
	k := keys.NameToKey["KEY_K"]
	esc := keys.NameToKey["KEY_ESC"]

	trig, target := ClickToClick(j, esc)
	_ = trig
	m.Map([]keys.Key{j, k}, target)

	m.handle(graph.Event{Key: j, Value: keys.Down})
	m.handle(graph.Event{Key: k, Value: keys.Down})

	select {
	case ev := <-sink.Inbound():
		if ev.Key != esc {
			t.Errorf("first event key = %+v, want ESC", ev.Key)
		}
	case <-time.After(2 * chordWindow):
		t.Fatal("timed out waiting for chord resolution")
	}
}

func TestChordMapperFallsBackToIndividualKeys(t *testing.T) {
	m := NewChordMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	j := keys.NameToKey["KEY_J"]

	m.handle(graph.Event{Key: j, Value: keys.Down})

	select {
	case ev := <-sink.Inbound():
		if ev.Key != j || ev.Value != keys.Down {
			t.Errorf("got %+v, want KEY_J down (unresolved single press)", ev)
		}
	case <-time.After(2 * chordWindow):
		t.Fatal("timed out waiting for passthrough click")
	}
}

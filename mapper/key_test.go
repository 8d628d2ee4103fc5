package mapper

import (
	"testing"
	"time"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

func drain(t *testing.T, ch <-chan graph.Event, n int) []graph.Event {
	t.Helper()

	out := make([]graph.Event, 0, n)

	for i := 0; i < n; i++ {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d/%d", i+1, n)
		}
	}

	return out
}

func TestKeyMapperClickToClick(t *testing.T) {
	m := NewKeyMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	capsLock := keys.NameToKey["KEY_CAPSLOCK"]
	leftCtrl := keys.NameToKey["KEY_LEFTCTRL"]

	trig, target := ClickToClick(capsLock, leftCtrl)
	m.Map(trig, target)

	go func() {
		m.handle(graph.Event{Key: capsLock, Value: keys.Down})
		m.handle(graph.Event{Key: capsLock, Value: keys.Up})
	}()

	got := drain(t, sink.Inbound(), 2)

	if got[0].Key != leftCtrl || got[0].Value != keys.Down {
		t.Errorf("got[0] = %+v, want left ctrl down", got[0])
	}

	if got[1].Key != leftCtrl || got[1].Value != keys.Up {
		t.Errorf("got[1] = %+v, want left ctrl up", got[1])
	}
}

func TestKeyMapperUnmatchedPassesThrough(t *testing.T) {
	m := NewKeyMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	a := keys.NameToKey["KEY_A"]

	m.handle(graph.Event{Key: a, Value: keys.Down})

	got := drain(t, sink.Inbound(), 1)

	if got[0].Key != a || got[0].Value != keys.Down {
		t.Errorf("got[0] = %+v, want KEY_A down unchanged", got[0])
	}
}

func TestKeyMapperReleasesUnneededModifiers(t *testing.T) {
	m := NewKeyMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	shift := keys.NameToKey["KEY_LEFTSHIFT"]
	num1 := keys.NameToKey["KEY_1"]
	f1 := keys.NameToKey["KEY_F1"]

	act, err := action.ParseKey("+1")
	if err != nil {
		t.Fatalf("ParseKey error = %v", err)
	}

	trig, target := ActionToClick(act, f1)
	m.Map(trig, target)

	m.handle(graph.Event{Key: shift, Value: keys.Down})
	m.handle(graph.Event{Key: num1, Value: keys.Down})

	got := drain(t, sink.Inbound(), 4)

	if got[0].Key != shift || got[0].Value != keys.Down {
		t.Errorf("got[0] = %+v, want shift's own down passed through", got[0])
	}

	if got[1].Key != shift || got[1].Value != keys.Up {
		t.Errorf("got[1] = %+v, want shift released before the target fires", got[1])
	}

	if got[2].Key != f1 || got[2].Value != keys.Down {
		t.Errorf("got[2] = %+v, want F1 down", got[2])
	}

	if got[3].Key != f1 || got[3].Value != keys.Up {
		t.Errorf("got[3] = %+v, want F1 up", got[3])
	}
}

package mapper

import (
	"testing"

	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

func TestModifierMapperTableSubstitution(t *testing.T) {
	m := NewModifierMapper(keys.NameToKey["KEY_CAPSLOCK"], keys.LeftCtrl, nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	esc := keys.NameToKey["KEY_ESC"]
	q := keys.NameToKey["KEY_Q"]
	capslock := keys.NameToKey["KEY_CAPSLOCK"]

	m.Map(q, esc)

	go func() {
		m.handle(graph.Event{Key: capslock, Value: keys.Down})
		m.handle(graph.Event{Key: q, Value: keys.Down})
		m.handle(graph.Event{Key: q, Value: keys.Up})
		m.handle(graph.Event{Key: capslock, Value: keys.Up})
	}()

	got := drain(t, sink.Inbound(), 2)

	if got[0].Key != esc || got[0].Value != keys.Down {
		t.Errorf("got[0] = %+v, want ESC down", got[0])
	}

	if got[1].Key != esc || got[1].Value != keys.Up {
		t.Errorf("got[1] = %+v, want ESC up", got[1])
	}
}

func TestModifierMapperTapAloneEmitsClick(t *testing.T) {
	capslock := keys.NameToKey["KEY_CAPSLOCK"]

	m := NewModifierMapper(capslock, keys.LeftCtrl, nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	go func() {
		m.handle(graph.Event{Key: capslock, Value: keys.Down})
		m.handle(graph.Event{Key: capslock, Value: keys.Up})
	}()

	got := drain(t, sink.Inbound(), 2)

	if got[0].Key != capslock || got[0].Value != keys.Down {
		t.Errorf("got[0] = %+v, want capslock's own down", got[0])
	}

	if got[1].Key != capslock || got[1].Value != keys.Up {
		t.Errorf("got[1] = %+v, want capslock's own up", got[1])
	}
}

func TestModifierMapperFoldsUnmappedKeyToSide(t *testing.T) {
	capslock := keys.NameToKey["KEY_CAPSLOCK"]
	a := keys.NameToKey["KEY_A"]
	leftAlt := keys.KeyForSide(keys.LeftAlt)

	m := NewModifierMapper(capslock, keys.LeftAlt, nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	go func() {
		m.handle(graph.Event{Key: capslock, Value: keys.Down})
		m.handle(graph.Event{Key: a, Value: keys.Down})
		m.handle(graph.Event{Key: a, Value: keys.Up})
		m.handle(graph.Event{Key: capslock, Value: keys.Up})
	}()

	got := drain(t, sink.Inbound(), 4)

	if got[0].Key != leftAlt || got[0].Value != keys.Down {
		t.Errorf("got[0] = %+v, want left alt down", got[0])
	}

	if got[1].Key != a || got[1].Value != keys.Down {
		t.Errorf("got[1] = %+v, want KEY_A down passed through", got[1])
	}

	if got[2].Key != a || got[2].Value != keys.Up {
		t.Errorf("got[2] = %+v, want KEY_A up passed through", got[2])
	}

	if got[3].Key != leftAlt || got[3].Value != keys.Up {
		t.Errorf("got[3] = %+v, want left alt up", got[3])
	}
}

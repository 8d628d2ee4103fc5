package mapper

import (
	"testing"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
)

func typeWord(m *TextMapper, word string) {
	for _, r := range word {
		k := keys.NameToKey["KEY_"+string(r-('a'-'A'))]
		m.handle(graph.Event{Key: k, Value: keys.Down})
		m.handle(graph.Event{Key: k, Value: keys.Up})
	}
}

func TestTextMapperFiresBackspacesAndReplacement(t *testing.T) {
	m := NewTextMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	seq, err := action.ParseSequence("bye")
	if err != nil {
		t.Fatalf("ParseSequence error = %v", err)
	}

	m.Map("hello", Target{Kind: TargetSequence, Sequence: seq})

	go typeWord(m, "hello")

	// Each of the 5 letters passes through as its own down/up.
	typed := drain(t, sink.Inbound(), 10)

	for i, r := range "hello" {
		k := keys.NameToKey["KEY_"+string(r-('a'-'A'))]

		if typed[2*i].Key != k || typed[2*i].Value != keys.Down {
			t.Errorf("typed[%d] = %+v, want %q down", 2*i, typed[2*i], r)
		}

		if typed[2*i+1].Key != k || typed[2*i+1].Value != keys.Up {
			t.Errorf("typed[%d] = %+v, want %q up", 2*i+1, typed[2*i+1], r)
		}
	}

	// The match fires: 5 backspaces erase "hello", then "bye" is typed.
	fired := drain(t, sink.Inbound(), 16)

	backspace := keys.NameToKey["KEY_BACKSPACE"]
	for i := 0; i < 5; i++ {
		if fired[2*i].Key != backspace || fired[2*i].Value != keys.Down {
			t.Errorf("fired[%d] = %+v, want backspace down", 2*i, fired[2*i])
		}

		if fired[2*i+1].Key != backspace || fired[2*i+1].Value != keys.Up {
			t.Errorf("fired[%d] = %+v, want backspace up", 2*i+1, fired[2*i+1])
		}
	}

	rest := fired[10:]
	for i, r := range "bye" {
		k := keys.NameToKey["KEY_"+string(r-('a'-'A'))]

		if rest[2*i].Key != k || rest[2*i].Value != keys.Down {
			t.Errorf("rest[%d] = %+v, want %q down", 2*i, rest[2*i], r)
		}

		if rest[2*i+1].Key != k || rest[2*i+1].Value != keys.Up {
			t.Errorf("rest[%d] = %+v, want %q up", 2*i+1, rest[2*i+1], r)
		}
	}
}

func TestTextMapperLongestSuffixMatchOnly(t *testing.T) {
	m := NewTextMapper(nil)
	sink := graph.NewNode(nil)
	m.LinkTo(sink)

	seq, err := action.ParseSequence("y")
	if err != nil {
		t.Fatalf("ParseSequence error = %v", err)
	}

	m.Map("hello", Target{Kind: TargetSequence, Sequence: seq})

	go typeWord(m, "xhello")

	// 6 letters pass through untouched first.
	drain(t, sink.Inbound(), 12)

	fired := drain(t, sink.Inbound(), 12)

	backspace := keys.NameToKey["KEY_BACKSPACE"]
	for i := 0; i < 5; i++ {
		if fired[2*i].Key != backspace || fired[2*i].Value != keys.Down {
			t.Errorf("fired[%d] = %+v, want backspace down", 2*i, fired[2*i])
		}
	}

	yKey := keys.NameToKey["KEY_Y"]
	if fired[10].Key != yKey || fired[10].Value != keys.Down {
		t.Errorf("fired[10] = %+v, want KEY_Y click down", fired[10])
	}

	if fired[11].Key != yKey || fired[11].Value != keys.Up {
		t.Errorf("fired[11] = %+v, want KEY_Y click up", fired[11])
	}
}

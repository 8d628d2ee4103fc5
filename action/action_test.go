package action

import (
	"testing"

	"github.com/miken90/gonode/keys"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantKey keys.Key
		wantMod keys.ModMask
		wantErr bool
	}{
		{"bare letter", "a", keys.NameToKey["KEY_A"], 0, false},
		{"uppercase implies shift", "A", keys.NameToKey["KEY_A"], keys.ModShift, false},
		{"ctrl prefix", "^a", keys.NameToKey["KEY_A"], keys.ModCtrl, false},
		{"alt+shift prefix", "!+a", keys.NameToKey["KEY_A"], keys.ModAlt | keys.ModShift, false},
		{"canonical name", "KEY_ENTER", keys.NameToKey["KEY_ENTER"], 0, false},
		{"braced click", "{enter}", keys.NameToKey["KEY_ENTER"], 0, false},
		{"unknown key", "nosuchkey", keys.Key{}, 0, true},
		{"repeated modifier", "^^a", keys.Key{}, 0, true},
		{"empty input", "", keys.Key{}, 0, true},
		{"unterminated brace", "{enter", keys.Key{}, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			act, err := ParseKey(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("ParseKey(%q) error = nil, want error", tt.input)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseKey(%q) error = %v, want nil", tt.input, err)
			}

			if act.Key != tt.wantKey {
				t.Errorf("Key = %+v, want %+v", act.Key, tt.wantKey)
			}

			if act.Mods != tt.wantMod {
				t.Errorf("Mods = %v, want %v", act.Mods, tt.wantMod)
			}
		})
	}
}

func TestParseKeyAction(t *testing.T) {
	act, err := ParseKey("{a down}")
	if err != nil {
		t.Fatalf("ParseKey error = %v", err)
	}

	if act.Kind != KindKeyAction {
		t.Fatalf("Kind = %v, want KindKeyAction", act.Kind)
	}

	if act.Value != keys.Down {
		t.Errorf("Value = %d, want Down", act.Value)
	}
}

func TestParseAxisAction(t *testing.T) {
	act, err := ParseKey("{relative REL_X 5}")
	if err != nil {
		t.Fatalf("ParseKey error = %v", err)
	}

	if act.Kind != KindAxis {
		t.Fatalf("Kind = %v, want KindAxis", act.Kind)
	}

	if act.Axis != 5 {
		t.Errorf("Axis = %d, want 5", act.Axis)
	}

	if act.Key.Type != keys.EvRel {
		t.Errorf("Key.Type = %d, want EvRel", act.Key.Type)
	}
}

func TestParseSequence(t *testing.T) {
	seq, err := ParseSequence("Hi{enter}")
	if err != nil {
		t.Fatalf("ParseSequence error = %v", err)
	}

	if len(seq) != 3 {
		t.Fatalf("len(seq) = %d, want 3", len(seq))
	}

	if seq[0].Mods != keys.ModShift || seq[0].Key != keys.NameToKey["KEY_H"] {
		t.Errorf("seq[0] = %+v, want shifted H", seq[0])
	}

	if seq[1].Mods != 0 || seq[1].Key != keys.NameToKey["KEY_I"] {
		t.Errorf("seq[1] = %+v, want plain I", seq[1])
	}

	if seq[2].Key != keys.NameToKey["KEY_ENTER"] {
		t.Errorf("seq[2] = %+v, want ENTER", seq[2])
	}
}

func TestParseSequenceUnknownChar(t *testing.T) {
	if _, err := ParseSequence("é"); err == nil {
		t.Fatal("expected error for unmapped character")
	}
}

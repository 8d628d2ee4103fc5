package keys

import "testing"

func TestLookup(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Key
		wantOK  bool
	}{
		{"canonical name", "KEY_A", NameToKey["KEY_A"], true},
		{"bare suffix", "A", NameToKey["KEY_A"], true},
		{"unknown", "NOT_A_KEY", Key{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Lookup(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Lookup(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}

			if ok && got != tt.want {
				t.Errorf("Lookup(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestModifierStateObserve(t *testing.T) {
	var m ModifierState

	leftCtrl := KeyForSide(LeftCtrl)

	if consumed := m.Observe(leftCtrl, Down); !consumed {
		t.Fatal("Observe(left ctrl down) should report consumed")
	}

	if !m.Flags().Has(ModCtrl) {
		t.Fatal("Flags() should have ModCtrl set after left ctrl down")
	}

	if !m.Held(LeftCtrl) {
		t.Error("Held(LeftCtrl) should be true")
	}

	m.Observe(leftCtrl, Up)

	if m.Flags().Has(ModCtrl) {
		t.Fatal("Flags() should clear ModCtrl after left ctrl up")
	}
}

func TestModifierStateIgnoresNonModifiers(t *testing.T) {
	var m ModifierState

	if consumed := m.Observe(NameToKey["KEY_A"], Down); consumed {
		t.Fatal("Observe(KEY_A) should not be consumed as a modifier")
	}
}

func TestSidesForRoundTrip(t *testing.T) {
	mask := ModCtrl | ModShift

	sides := SidesFor(mask)
	if len(sides) != 2 {
		t.Fatalf("len(sides) = %d, want 2", len(sides))
	}

	var got ModMask
	for _, s := range sides {
		switch s {
		case LeftCtrl:
			got |= ModCtrl
		case LeftShift:
			got |= ModShift
		}
	}

	if got != mask {
		t.Errorf("SidesFor round trip = %v, want %v", got, mask)
	}
}

func TestClick(t *testing.T) {
	k := NameToKey["KEY_A"]

	actions := Click(k, ModShift)
	if len(actions) != 2 {
		t.Fatalf("len(actions) = %d, want 2", len(actions))
	}

	if actions[0].Value != Down || actions[1].Value != Up {
		t.Errorf("Click() = %+v, want down then up", actions)
	}

	if actions[0].Key != k || actions[1].Key != k {
		t.Errorf("Click() keys = %+v, want both %+v", actions, k)
	}
}

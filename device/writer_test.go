//go:build linux

package device

import (
	"io"
	"os"
	"testing"
	"unsafe"

	"github.com/miken90/gonode/evdevio"
)

func TestWriteEventRoundTrips(t *testing.T) {
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("os.Pipe error = %v", err)
	}
	defer r.Close()
	defer w.Close()

	want := evdevio.InputEvent{Type: 1, Code: 30, Value: 1}

	if err := writeEvent(w, want); err != nil {
		t.Fatalf("writeEvent error = %v", err)
	}

	buf := make([]byte, unsafe.Sizeof(evdevio.InputEvent{}))
	if _, err := io.ReadFull(r, buf); err != nil {
		t.Fatalf("read error = %v", err)
	}

	got := *(*evdevio.InputEvent)(unsafe.Pointer(&buf[0]))
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestBitSet(t *testing.T) {
	bits := []byte{0b00000101}

	cases := []struct {
		n    int
		want bool
	}{
		{0, true},
		{1, false},
		{2, true},
		{100, false},
	}

	for _, c := range cases {
		if got := bitSet(bits, c.n); got != c.want {
			t.Errorf("bitSet(bits, %d) = %v, want %v", c.n, got, c.want)
		}
	}
}

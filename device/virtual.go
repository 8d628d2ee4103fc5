//go:build linux

package device

import (
	"github.com/google/uuid"

	"github.com/miken90/gonode/action"
	"github.com/miken90/gonode/graph"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xkb"
)

// VirtualReader is a source node that synthesizes input instead of
// grabbing a real evdev device: a script injects text or a parsed action
// sequence, translated through an xkb.Transformer into the same raw
// key-event stream a physical Reader would produce.
type VirtualReader struct {
	*graph.Node

	xform *xkb.Transformer
	id    uuid.UUID
}

// NewVirtualReader builds a virtual reader whose text injection is
// translated under the given keyboard profile.
func NewVirtualReader(params xkb.Params, fatal func(error)) (*VirtualReader, error) {
	t, err := xkb.New(params)
	if err != nil {
		return nil, err
	}

	return &VirtualReader{Node: graph.NewNode(fatal), xform: t, id: uuid.New()}, nil
}

// Inject translates text through the transformer one rune at a time and
// plays out each rune's shortest raw sequence, exactly as a physical
// keyboard producing that grapheme would report it. Runes the layout
// cannot produce are silently skipped.
func (v *VirtualReader) Inject(text string) {
	for _, r := range text {
		seq, ok := v.xform.UTFToRaw(string(r))
		if !ok {
			continue
		}

		for _, ka := range seq {
			v.emit(ka.Key, ka.Value)
		}
	}
}

// InjectSequence plays a parsed action sequence directly, mirroring
// mapper.Base.runSequence's switch over action kinds. A virtual reader
// has no release/restore bracket responsibility of its own since it is
// the source of the stream, not a node qualifying someone else's.
func (v *VirtualReader) InjectSequence(seq []action.Action) {
	for _, a := range seq {
		switch a.Kind {
		case action.KindClick:
			v.emit(a.Key, keys.Down)
			v.emit(a.Key, keys.Up)
		case action.KindKeyAction:
			v.emit(a.Key, a.Value)
		case action.KindAxis:
			v.SendAll(graph.Event{Key: a.Key, Axis: a.Axis, From: v.id})
		}
	}
}

func (v *VirtualReader) emit(k keys.Key, value int32) {
	v.SendAll(graph.Event{Key: k, Value: value, From: v.id})
}

// Close satisfies supervisor.Closer. The underlying xkb.Transformer is
// left alone: it is a process-wide weak-registry singleton other holders
// may still reference.
func (v *VirtualReader) Close() error { return nil }

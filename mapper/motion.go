package mapper

import "github.com/miken90/gonode/graph"

// MotionMapper is the §4.6 axis specialization: its whole surface is the
// per-axis handlers every mapper shares via Base, with key events passed
// through untouched. Scripts use it to remap pointer motion or scroll
// wheel axes without pulling in any of the key/chord/text machinery.
type MotionMapper struct {
	Base
}

// NewMotionMapper allocates a motion mapper with no axis handlers
// installed; every EV_REL/EV_ABS event passes through until MapRelative
// or MapAbsolute is called.
func NewMotionMapper(fatal func(error)) *MotionMapper {
	return &MotionMapper{Base: newBase(fatal)}
}

// Run ranges over the mapper's inbound channel until it closes.
func (m *MotionMapper) Run() {
	for ev := range m.Inbound() {
		m.handle(ev)
	}
}

func (m *MotionMapper) handle(ev graph.Event) {
	if m.handleAxis(ev) {
		return
	}

	m.SendAll(ev)
}

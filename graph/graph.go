// Package graph implements the node-graph substrate: identity,
// linking, unlinking, lifetime, and event dispatch between nodes.
package graph

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/miken90/gonode/keys"
	"github.com/miken90/gonode/xerrors"
)

// Event is what flows across a link: a raw key/axis event tagged with
// the id of the device (or node) it originated from.
type Event struct {
	Key   keys.Key
	Value int32
	Axis  int32
	From  uuid.UUID
}

// linkChanCapacity bounds every outbound channel. A full channel is a
// fatal "too many events" condition, surfaced to the host.
const linkChanCapacity = 64

var errTooManyEvents = errors.New("too many events: peer channel full")

// outLink is one side of a reciprocal link: the peer's id and the
// channel toward it.
type outLink struct {
	peer uuid.UUID
	ch   chan Event
}

// Node is the shared substrate every source/destination-capable value
// embeds. A node's identity is a UUID; it owns exactly one goroutine
// processing its inbound channel serially (the embedder's run loop
// ranges over Inbound()), and two link tables keyed by peer id.
type Node struct {
	id uuid.UUID

	mu      sync.Mutex
	out     map[uuid.UUID]*outLink // this node -> peer
	in      map[uuid.UUID]struct{} // peer -> this node (bookkeeping only)
	inbound chan Event
	fatal   func(error)
}

// NewNode allocates a node with a fresh identity. fatal is invoked
// whenever a send would overflow a bounded channel; it is called from
// whichever goroutine attempted the send.
func NewNode(fatal func(error)) *Node {
	return &Node{
		id:      uuid.New(),
		out:     make(map[uuid.UUID]*outLink),
		in:      make(map[uuid.UUID]struct{}),
		inbound: make(chan Event, linkChanCapacity),
		fatal:   fatal,
	}
}

// ID returns the node's identity.
func (n *Node) ID() uuid.UUID { return n.id }

// Inbound returns the channel this node's owning goroutine ranges
// over to process events serially, in arrival order.
func (n *Node) Inbound() <-chan Event { return n.inbound }

// Channel exposes the raw inbound channel to Link; it is part of the
// Destination capability, not meant for general use.
func (n *Node) Channel() chan Event { return n.inbound }

// AddSource records the reciprocal inbound bookkeeping when this node
// becomes a link's destination.
func (n *Node) AddSource(peer uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.in[peer] = struct{}{}
}

// RemoveSource drops the bookkeeping entry for a source that unlinked.
func (n *Node) RemoveSource(peer uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	delete(n.in, peer)
}

// Destination is the capability view a node exposes to become a link
// target. Any *Node (mapper, emitter) satisfies it via promoted
// methods.
type Destination interface {
	ID() uuid.UUID
	Channel() chan Event
	AddSource(uuid.UUID)
	RemoveSource(uuid.UUID)
}

// LinkTo implements `link(A -> B)` atomically: A.link_to(B) followed
// by B.link_from(A). For every outbound link A->B there exists a
// matching inbound link at B with the same token.
func (n *Node) LinkTo(dst Destination) {
	n.mu.Lock()
	n.out[dst.ID()] = &outLink{peer: dst.ID(), ch: dst.Channel()}
	n.mu.Unlock()

	dst.AddSource(n.id)
}

// UnlinkTo removes the A->B edge and the matching B-side bookkeeping.
// A peer that has already dropped (dst == nil) is treated as a
// successful unlink.
func (n *Node) UnlinkTo(dstID uuid.UUID, dst Destination) error {
	n.mu.Lock()
	_, ok := n.out[dstID]
	delete(n.out, dstID)
	n.mu.Unlock()

	if !ok {
		return xerrors.Link("Node.UnlinkTo", errors.New("no such outbound link"))
	}

	if dst != nil {
		dst.RemoveSource(n.id)
	}

	return nil
}

// UnlinkAll drops every outbound link of this node and asks each
// destination that resolve returns to drop its inbound bookkeeping for
// this node; it is used when a node is dropped. The inbound table is not
// touched, so sources linked to this node keep their links to it.
func (n *Node) UnlinkAll(resolve func(uuid.UUID) Destination) {
	n.mu.Lock()
	peers := make([]uuid.UUID, 0, len(n.out))
	for p := range n.out {
		peers = append(peers, p)
	}
	n.out = make(map[uuid.UUID]*outLink)
	n.mu.Unlock()

	for _, p := range peers {
		if resolve == nil {
			continue
		}

		if dst := resolve(p); dst != nil {
			dst.RemoveSource(n.id)
		}
	}
}

// SendAll fans an event out to every outbound peer. Order among peers
// is unspecified; order per peer matches the source's emission order.
// A full peer channel is a fatal backpressure condition, not a silent
// drop.
func (n *Node) SendAll(ev Event) {
	n.mu.Lock()
	peers := make([]*outLink, 0, len(n.out))
	for _, l := range n.out {
		peers = append(peers, l)
	}
	n.mu.Unlock()

	for _, l := range peers {
		n.sendOne(l, ev)
	}
}

func (n *Node) sendOne(l *outLink, ev Event) {
	select {
	case l.ch <- ev:
	default:
		if n.fatal != nil {
			n.fatal(xerrors.Backpressure("Node.SendAll", errTooManyEvents))
		}
	}
}

// OutDegree reports how many outbound peers this node currently has;
// used by tests and by diagnostics, never by dispatch logic.
func (n *Node) OutDegree() int {
	n.mu.Lock()
	defer n.mu.Unlock()

	return len(n.out)
}

package gldev

import (
	"testing"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

// The GL calls themselves need a live context, but the destroy bookkeeping
// is plain map state and must hold the device contract on its own: a queued
// buffer stays resolvable until its frame's fence retires, because command
// lists look IDs up at Submit time, after upload helpers have already
// queued their staging buffers.
func TestQueueDestroyBufferKeepsEntryResolvable(t *testing.T) {
	const id = graphics.BufferID(7)
	d := &Device{
		buffers: map[graphics.BufferID]*buffer{
			id: {desc: graphics.BufferDesc{Name: "staging", Size: 64}},
		},
	}
	d.frame = 3

	d.QueueDestroyBuffer(id)

	b, ok := d.buffers[id]
	if !ok || b == nil {
		t.Fatal("queued buffer vanished from the map before its fence retired")
	}
	if !b.pending {
		t.Error("queued buffer not marked pending")
	}
	if len(d.destroys) != 1 {
		t.Fatalf("expected 1 pending destroy, got %d", len(d.destroys))
	}
	if d.destroys[0].id != id || d.destroys[0].fence != 3 {
		t.Errorf("pending destroy = %+v, want id %d at fence 3", d.destroys[0], id)
	}
}

func TestQueueDestroyBufferIdempotent(t *testing.T) {
	const id = graphics.BufferID(1)
	d := &Device{
		buffers: map[graphics.BufferID]*buffer{id: {}},
	}

	d.QueueDestroyBuffer(id)
	d.QueueDestroyBuffer(id)
	d.QueueDestroyBuffer(graphics.BufferID(99)) // unknown ID is a no-op

	if len(d.destroys) != 1 {
		t.Errorf("expected 1 pending destroy after re-queue, got %d", len(d.destroys))
	}
}

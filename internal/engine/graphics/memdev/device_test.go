package memdev

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/Faultbox/frostgard/internal/engine/graphics"
)

func TestBufferCreateMapCopy(t *testing.T) {
	d := New()

	staging, err := d.CreateBuffer(graphics.BufferDesc{
		Name: "staging", Size: 16,
		Usage:     graphics.UsageTransferSrc,
		CPUAccess: graphics.CPUAccessWriteOnly,
	})
	if err != nil {
		t.Fatal(err)
	}
	dst, err := d.CreateBuffer(graphics.BufferDesc{
		Name: "dst", Size: 16,
		Usage: graphics.UsageStorage | graphics.UsageTransferDst,
	})
	if err != nil {
		t.Fatal(err)
	}

	mem, err := d.MapBuffer(staging)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(mem[0:], 0xCAFEBABE)
	binary.LittleEndian.PutUint32(mem[12:], 42)
	d.UnmapBuffer(staging)

	cl := d.CreateCommandList()
	cl.CopyBuffer(dst, 0, staging, 0, 16)
	if err := d.Submit(cl, nil, nil); err != nil {
		t.Fatal(err)
	}

	got := d.BufferData(dst)
	if binary.LittleEndian.Uint32(got[0:]) != 0xCAFEBABE {
		t.Errorf("copy did not transfer word 0: %#x", binary.LittleEndian.Uint32(got[0:]))
	}
	if binary.LittleEndian.Uint32(got[12:]) != 42 {
		t.Errorf("copy did not transfer word 3: %d", binary.LittleEndian.Uint32(got[12:]))
	}
}

func TestMapBufferRequiresCPUAccess(t *testing.T) {
	d := New()
	id, _ := d.CreateBuffer(graphics.BufferDesc{Name: "gpu-only", Size: 4})

	if _, err := d.MapBuffer(id); !errors.Is(err, graphics.ErrNotMappable) {
		t.Errorf("expected ErrNotMappable, got %v", err)
	}
}

func TestFillBuffer(t *testing.T) {
	d := New()
	id, _ := d.CreateBuffer(graphics.BufferDesc{Name: "counter", Size: 8})

	cl := d.CreateCommandList()
	cl.FillBuffer(id, 0, 4, 7)
	d.Submit(cl, nil, nil)

	data := d.BufferData(id)
	if binary.LittleEndian.Uint32(data[0:]) != 7 {
		t.Errorf("fill missed word 0")
	}
	if binary.LittleEndian.Uint32(data[4:]) != 0 {
		t.Errorf("fill overran its size")
	}
}

// Upload helpers queue the staging buffer for destruction while the copy is
// only recorded, not yet submitted. The copy must still resolve its source.
func TestCopyBufferAfterQueuedSourceDestroy(t *testing.T) {
	d := New()
	d.BeginFrame()

	staging, _ := d.CreateBuffer(graphics.BufferDesc{
		Name: "staging", Size: 4,
		Usage:     graphics.UsageTransferSrc,
		CPUAccess: graphics.CPUAccessWriteOnly,
	})
	dst, _ := d.CreateBuffer(graphics.BufferDesc{
		Name: "dst", Size: 4,
		Usage: graphics.UsageStorage | graphics.UsageTransferDst,
	})

	mem, err := d.MapBuffer(staging)
	if err != nil {
		t.Fatal(err)
	}
	binary.LittleEndian.PutUint32(mem, 0xDEAD10CC)
	d.UnmapBuffer(staging)

	cl := d.CreateCommandList()
	cl.CopyBuffer(dst, 0, staging, 0, 4)
	d.QueueDestroyBuffer(staging)

	if err := d.Submit(cl, nil, nil); err != nil {
		t.Fatal(err)
	}
	if got := binary.LittleEndian.Uint32(d.BufferData(dst)); got != 0xDEAD10CC {
		t.Errorf("copy from queued-destroy staging lost data: %#x", got)
	}
}

// A queued destroy must survive the frames that may still reference it and
// retire only after the in-flight window has passed.
func TestDeferredDestroyRetiresAfterInFlightFrames(t *testing.T) {
	d := New()
	d.BeginFrame()

	id, _ := d.CreateBuffer(graphics.BufferDesc{Name: "old", Size: 4})
	if d.AliveBufferCount() != 1 {
		t.Fatalf("expected 1 buffer, got %d", d.AliveBufferCount())
	}

	d.QueueDestroyBuffer(id)
	if d.AliveBufferCount() != 1 {
		t.Error("destroy must be deferred, not immediate")
	}

	d.BeginFrame() // frame 2: still potentially referenced
	if d.AliveBufferCount() != 1 {
		t.Error("buffer retired while still in flight")
	}

	d.BeginFrame() // frame 3: out of the 2-frame window
	if d.AliveBufferCount() != 0 {
		t.Errorf("buffer not retired, %d alive", d.AliveBufferCount())
	}
}

func TestDispatchRunsKernelPerThread(t *testing.T) {
	d := New()
	buf, _ := d.CreateBuffer(graphics.BufferDesc{Name: "out", Size: 64 * 4})

	set := graphics.NewDescriptorSet("test")
	set.BindBuffer("_out", buf)

	pipeline := &graphics.ComputePipeline{
		Name:      "iota",
		GroupSize: [3]uint32{32, 1, 1},
		Kernel: func(thread graphics.KernelThread, bind *graphics.KernelBindings) {
			out := graphics.AsSlice[uint32](bind.Buffer("_out"))
			if int(thread.X) < len(out) {
				out[thread.X] = thread.X
			}
		},
	}

	cl := d.CreateCommandList()
	cl.BindDescriptorSet(graphics.SlotPerPass, set)
	cl.Dispatch(pipeline, 2, 1, 1)
	d.Submit(cl, nil, nil)

	out := graphics.AsSlice[uint32](d.BufferData(buf))
	for i, v := range out {
		if v != uint32(i) {
			t.Fatalf("thread %d wrote %d", i, v)
		}
	}
}

func TestDrawIndexedIndirectCountTallies(t *testing.T) {
	d := New()

	// Three arg records: 30 indices, an empty one, 12 indices.
	args, _ := d.CreateBuffer(graphics.BufferDesc{Name: "args", Size: 3 * indirectArgSize})
	data := d.BufferData(args)
	put := func(slot int, indexCount, instanceCount uint32) {
		off := slot * indirectArgSize
		binary.LittleEndian.PutUint32(data[off:], indexCount)
		binary.LittleEndian.PutUint32(data[off+4:], instanceCount)
	}
	put(0, 30, 1)
	put(1, 0, 1)
	put(2, 12, 1)

	count, _ := d.CreateBuffer(graphics.BufferDesc{Name: "count", Size: 4})
	binary.LittleEndian.PutUint32(d.BufferData(count), 3)

	d.BeginFrame()
	cl := d.CreateCommandList()
	cl.DrawIndexedIndirectCount(args, 0, count, 0, 3)
	d.Submit(cl, nil, nil)

	if d.FrameDraws() != 2 {
		t.Errorf("expected 2 draws (empty record skipped), got %d", d.FrameDraws())
	}
	if d.FrameIndices() != 42 {
		t.Errorf("expected 42 indices, got %d", d.FrameIndices())
	}
}

func TestDrawCountClampedToMax(t *testing.T) {
	d := New()

	args, _ := d.CreateBuffer(graphics.BufferDesc{Name: "args", Size: 2 * indirectArgSize})
	data := d.BufferData(args)
	binary.LittleEndian.PutUint32(data[0:], 3)
	binary.LittleEndian.PutUint32(data[4:], 1)
	binary.LittleEndian.PutUint32(data[indirectArgSize:], 3)
	binary.LittleEndian.PutUint32(data[indirectArgSize+4:], 1)

	count, _ := d.CreateBuffer(graphics.BufferDesc{Name: "count", Size: 4})
	binary.LittleEndian.PutUint32(d.BufferData(count), 99)

	d.BeginFrame()
	cl := d.CreateCommandList()
	cl.DrawIndexedIndirectCount(args, 0, count, 0, 2)
	d.Submit(cl, nil, nil)

	if d.FrameDraws() != 2 {
		t.Errorf("expected clamp to 2 draws, got %d", d.FrameDraws())
	}
}

func TestImageMipChain(t *testing.T) {
	d := New()
	id, _ := d.CreateImage(graphics.ImageDesc{Name: "pyramid", Width: 8, Height: 4, Levels: 4, Format: graphics.FormatR32Float})

	img := d.Image(id)
	if img.Levels() != 4 {
		t.Fatalf("expected 4 levels, got %d", img.Levels())
	}
	if w, h := img.Dimensions(0); w != 8 || h != 4 {
		t.Errorf("level 0: %dx%d", w, h)
	}
	if w, h := img.Dimensions(3); w != 1 || h != 1 {
		t.Errorf("level 3: %dx%d", w, h)
	}

	img.Store(1, 3, 1, 0.5)
	if got := img.Load(1, 3, 1); got != 0.5 {
		t.Errorf("load after store: %v", got)
	}
	if got := img.Load(1, 99, 0); got != 0 {
		t.Errorf("out-of-bounds load should be 0, got %v", got)
	}
}

package graphics

import "fmt"

// ResourceAccess declares how a pass touches an image.
type ResourceAccess uint8

const (
	AccessRead ResourceAccess = iota
	AccessRenderTarget
	AccessComputeWrite
)

// PassBuilder collects a pass's declared resource dependencies during setup.
type PassBuilder struct {
	reads  []ImageID
	writes []ImageID
}

// Read declares that the pass samples or fetches from an image.
func (b *PassBuilder) Read(id ImageID) ImageID {
	b.reads = append(b.reads, id)
	return id
}

// Write declares that the pass renders to or compute-writes an image.
func (b *PassBuilder) Write(id ImageID, access ResourceAccess) ImageID {
	b.writes = append(b.writes, id)
	return id
}

type pass struct {
	name    string
	builder PassBuilder
	execute func(CommandList)
}

// RenderGraph assembles the frame's passes and executes them in registration
// order. It is rebuilt every frame; pass setup callbacks can disable a pass
// by returning false.
type RenderGraph struct {
	device  Device
	passes  []pass
	waits   []SemaphoreID
	signals []SemaphoreID
}

// NewRenderGraph creates an empty graph over a device.
func NewRenderGraph(device Device) *RenderGraph {
	return &RenderGraph{device: device}
}

// AddPass registers a pass. setup declares resource dependencies and may
// return false to disable the pass for this frame; execute records commands.
func (g *RenderGraph) AddPass(name string, setup func(*PassBuilder) bool, execute func(CommandList)) {
	p := pass{name: name, execute: execute}
	if setup != nil && !setup(&p.builder) {
		return
	}
	g.passes = append(g.passes, p)
}

// AddWaitSemaphore makes the whole graph wait on sem before executing.
func (g *RenderGraph) AddWaitSemaphore(sem SemaphoreID) {
	g.waits = append(g.waits, sem)
}

// AddSignalSemaphore signals sem once the whole graph has executed.
func (g *RenderGraph) AddSignalSemaphore(sem SemaphoreID) {
	g.signals = append(g.signals, sem)
}

// PassCount returns the number of enabled passes.
func (g *RenderGraph) PassCount() int { return len(g.passes) }

// Execute records every enabled pass into one command list and submits it.
func (g *RenderGraph) Execute() error {
	list := g.device.CreateCommandList()
	for _, p := range g.passes {
		p.execute(list)
	}
	if err := g.device.Submit(list, g.waits, g.signals); err != nil {
		return fmt.Errorf("render graph submit: %w", err)
	}
	return nil
}

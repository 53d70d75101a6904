package cmodel

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/frostgard/internal/logger"
	"github.com/Faultbox/frostgard/pkg/formats"
)

// PlayState is the per-instance animation state machine.
type PlayState uint8

const (
	StateStopped PlayState = iota
	StatePlayOnce
	StatePlayLoop
)

// AnimationRequest asks an instance to change its animation state. Requests
// may be enqueued from any goroutine; they take effect at the next Update.
type AnimationRequest struct {
	InstanceID uint32
	SequenceID uint16
	Play       bool
	Loop       bool
}

// SequenceFinishedEvent fires when a PLAY_ONCE sequence completes.
type SequenceFinishedEvent struct {
	InstanceID uint32
	SequenceID uint16
}

// FinishedHandler receives sequence completion events. The concrete handler
// (gameplay, scripting) is injected by the owner; a nil handler drops events.
type FinishedHandler func(SequenceFinishedEvent)

// RequestQueue is a multi-producer queue with drain-all semantics. Producers
// enqueue from any goroutine; the render thread is the sole consumer and
// drains the whole queue exactly once per tick. FIFO per producer.
type RequestQueue struct {
	mu      sync.Mutex
	pending []AnimationRequest
}

// Enqueue appends a request. Safe for concurrent producers.
func (q *RequestQueue) Enqueue(req AnimationRequest) {
	q.mu.Lock()
	q.pending = append(q.pending, req)
	q.mu.Unlock()
}

// DrainAll takes every pending request, leaving the queue empty. Single
// consumer assumed.
func (q *RequestQueue) DrainAll() []AnimationRequest {
	q.mu.Lock()
	drained := q.pending
	q.pending = nil
	q.mu.Unlock()
	return drained
}

// Len returns the number of pending requests.
func (q *RequestQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// instanceAnimation is the render-thread-owned animation state of one
// animated instance. Only the request queue crosses threads.
type instanceAnimation struct {
	modelID    uint32
	state      PlayState
	sequence   uint16
	progress   float32 // seconds into the sequence
	boneOffset uint32  // first matrix in the deform arena
	boneCount  uint32
}

// applyRequests drains the queue and applies every state change.
func (r *Renderer) applyRequests() {
	for _, req := range r.requests.DrainAll() {
		inst, ok := r.animations[req.InstanceID]
		if !ok {
			logger.Log.Debug("animation request for non-animated instance",
				zap.Uint32("instanceID", req.InstanceID))
			continue
		}
		if !req.Play {
			inst.state = StateStopped
			continue
		}
		model := r.loaded[inst.modelID].Model
		if int(req.SequenceID) >= len(model.Sequences) {
			logger.Log.Warn("animation request with out-of-range sequence",
				zap.Uint32("instanceID", req.InstanceID),
				zap.Uint16("sequenceID", req.SequenceID))
			continue
		}
		inst.sequence = req.SequenceID
		inst.progress = 0
		if req.Loop {
			inst.state = StatePlayLoop
		} else {
			inst.state = StatePlayOnce
		}
	}
}

// tickAnimations advances every playing instance and rewrites its deform
// range. PLAY_ONCE clamps at the end and stops; PLAY_LOOP wraps modulo the
// sequence duration.
func (r *Renderer) tickAnimations(deltaTime float32) {
	for id, inst := range r.animations {
		if inst.state == StateStopped {
			continue
		}
		model := r.loaded[inst.modelID].Model
		seq := model.Sequences[inst.sequence]
		if seq.Duration <= 0 {
			inst.state = StateStopped
			continue
		}

		inst.progress += deltaTime
		if inst.progress >= seq.Duration {
			if inst.state == StatePlayLoop {
				for inst.progress >= seq.Duration {
					inst.progress -= seq.Duration
				}
			} else {
				inst.progress = seq.Duration
				inst.state = StateStopped
				if r.onSequenceFinished != nil {
					r.onSequenceFinished(SequenceFinishedEvent{
						InstanceID: id,
						SequenceID: inst.sequence,
					})
				}
			}
		}

		r.evaluateBones(model, inst)
	}
}

// evaluateBones samples every bone track at the instance's progress and
// writes composed matrices into the instance's deform range. Bones are
// parent-first, so a parent's world matrix is already final when its
// children compose against it.
func (r *Renderer) evaluateBones(model *formats.CModel, inst *instanceAnimation) {
	seq := int(inst.sequence)
	t := inst.progress

	for boneIndex := range model.Bones {
		bone := &model.Bones[boneIndex]

		translation := sampleVec3(bone.Translation[seq], t, mgl32.Vec3{})
		rotation := sampleQuat(bone.Rotation[seq], t)
		scale := sampleVec3(bone.Scale[seq], t, mgl32.Vec3{1, 1, 1})
		pivot := mgl32.Vec3(bone.Pivot)

		local := mgl32.Translate3D(pivot[0], pivot[1], pivot[2]).
			Mul4(mgl32.Translate3D(translation[0], translation[1], translation[2])).
			Mul4(rotation.Mat4()).
			Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2])).
			Mul4(mgl32.Translate3D(-pivot[0], -pivot[1], -pivot[2]))

		world := local
		if bone.ParentIndex >= 0 {
			world = r.boneDeforms[inst.boneOffset+uint32(bone.ParentIndex)].Mul4(local)
		}
		r.boneDeforms[inst.boneOffset+uint32(boneIndex)] = world
	}
}

// sampleVec3 linearly interpolates a keyframe track at time t. An empty
// track yields def; t outside the keyed span clamps to the nearest key.
func sampleVec3(track formats.Vec3Track, t float32, def mgl32.Vec3) mgl32.Vec3 {
	n := len(track.Times)
	if n == 0 {
		return def
	}
	if t <= track.Times[0] {
		return mgl32.Vec3(track.Values[0])
	}
	if t >= track.Times[n-1] {
		return mgl32.Vec3(track.Values[n-1])
	}
	i := bracket(track.Times, t)
	a := mgl32.Vec3(track.Values[i])
	b := mgl32.Vec3(track.Values[i+1])
	return a.Add(b.Sub(a).Mul(blend(track.Times[i], track.Times[i+1], t)))
}

// sampleQuat normalized-lerps a quaternion track at time t.
func sampleQuat(track formats.QuatTrack, t float32) mgl32.Quat {
	n := len(track.Times)
	if n == 0 {
		return mgl32.QuatIdent()
	}
	if t <= track.Times[0] {
		return quatOf(track.Values[0])
	}
	if t >= track.Times[n-1] {
		return quatOf(track.Values[n-1])
	}
	i := bracket(track.Times, t)
	return mgl32.QuatNlerp(quatOf(track.Values[i]), quatOf(track.Values[i+1]),
		blend(track.Times[i], track.Times[i+1], t))
}

// bracket returns i such that times[i] <= t < times[i+1]. Caller guarantees
// t is inside the keyed span.
func bracket(times []float32, t float32) int {
	lo, hi := 0, len(times)-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if times[mid] <= t {
			lo = mid
		} else {
			hi = mid
		}
	}
	return lo
}

func blend(t0, t1, t float32) float32 {
	if t1 <= t0 {
		return 0
	}
	return (t - t0) / (t1 - t0)
}

func quatOf(v [4]float32) mgl32.Quat {
	return mgl32.Quat{W: v[3], V: mgl32.Vec3{v[0], v[1], v[2]}}
}

package storage

import (
	"sync"

	"github.com/google/uuid"

	"github.com/san-kum/dynodom/internal/chassis"
	"github.com/san-kum/dynodom/internal/pose"
)

// Sample is a chassis step with the ground truth pose at that step.
type Sample struct {
	chassis.Step
	Truth pose.Pose
}

// Recorder is a chassis observer that buffers samples per motion until
// they are taken for saving.
type Recorder struct {
	truth func() pose.Pose

	mu      sync.Mutex
	samples map[uuid.UUID][]Sample
}

// NewRecorder builds a recorder. truth may be nil when no ground truth is
// available.
func NewRecorder(truth func() pose.Pose) *Recorder {
	return &Recorder{truth: truth, samples: make(map[uuid.UUID][]Sample)}
}

func (r *Recorder) OnStep(s chassis.Step) {
	smp := Sample{Step: s}
	if r.truth != nil {
		smp.Truth = r.truth()
	}
	r.mu.Lock()
	r.samples[s.MotionID] = append(r.samples[s.MotionID], smp)
	r.mu.Unlock()
}

// Take returns and forgets the samples of one motion.
func (r *Recorder) Take(id uuid.UUID) []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.samples[id]
	delete(r.samples, id)
	return out
}

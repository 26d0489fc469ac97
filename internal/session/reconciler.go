package session

import (
	"sync"

	"github.com/scb10x/typhoon-scribe/internal/transcription"
)

// Status is the externally observable lifecycle state of a session
type Status string

const (
	StatusIdle       Status = "idle"
	StatusRecording  Status = "recording"
	StatusProcessing Status = "processing"
)

// Outcome is the externally observable transcription state: the best known
// text, the latest qualifying error, and the lifecycle status. It is
// mutated only by the Reconciler.
type Outcome struct {
	Text       string                        `json:"text"`
	Timestamps []transcription.WordTimestamp `json:"timestamps,omitempty"`
	Error      string                        `json:"error,omitempty"`
	Status     Status                        `json:"status"`
}

// Reconciler decides which of the events arriving from overlapping in-flight
// requests currently represents the best known transcription. Requests may
// complete out of issue order, so each result carries the sequence number
// captured when its request was issued and a completed result is applied
// only if that number is at least the one currently populating the Outcome
// (last writer by issue order wins).
//
// One Reconciler instance is scoped to one session. All mutation is
// serialized through its mutex; nothing else touches the Outcome.
type Reconciler struct {
	mu         sync.Mutex
	appliedSeq int64
	outcome    Outcome
	notify     func(Outcome)
}

// NewReconciler creates a reconciler for a new session. notify, if non-nil,
// is invoked with a copy of the Outcome after every observable change.
func NewReconciler(notify func(Outcome)) *Reconciler {
	return &Reconciler{
		outcome: Outcome{Status: StatusIdle},
		notify:  notify,
	}
}

// ApplyComplete applies a completed transcription result from the request
// with the given sequence number. Stale results (sequence lower than the
// one already applied) are discarded. Returns whether the result was
// applied.
func (r *Reconciler) ApplyComplete(seq int64, result *transcription.Result) bool {
	r.mu.Lock()
	if seq < r.appliedSeq {
		r.mu.Unlock()
		return false
	}
	r.appliedSeq = seq
	if result != nil {
		r.outcome.Text = result.Text
		r.outcome.Timestamps = result.Timestamps
	} else {
		r.outcome.Text = ""
		r.outcome.Timestamps = nil
	}
	out := r.outcome
	r.mu.Unlock()

	r.publish(out)
	return true
}

// ApplyError records a qualifying failure. The error field holds only the
// latest such failure; callers are responsible for the periodic/final
// gating that decides whether a failure qualifies at all.
func (r *Reconciler) ApplyError(err error) {
	r.mu.Lock()
	r.outcome.Error = err.Error()
	out := r.outcome
	r.mu.Unlock()

	r.publish(out)
}

// SetStatus updates the lifecycle status
func (r *Reconciler) SetStatus(status Status) {
	r.mu.Lock()
	r.outcome.Status = status
	out := r.outcome
	r.mu.Unlock()

	r.publish(out)
}

// Outcome returns a copy of the current outcome
func (r *Reconciler) Outcome() Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome
}

func (r *Reconciler) publish(out Outcome) {
	if r.notify != nil {
		r.notify(out)
	}
}

// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package merge

import (
	"fmt"
	"sync"

	"github.com/ManuGH/mediagate/internal/metrics"
)

// State is a merge job's lifecycle position.
type State string

const (
	StateIdle              State = "idle"
	StateDownloadingVideo  State = "downloading_video"
	StateDownloadingAudio  State = "downloading_audio"
	StateAwaitingAdmission State = "awaiting_admission"
	StateMuxing            State = "muxing"
	StateComplete          State = "complete"
	StateFailed            State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateFailed
}

// Both elementary streams download concurrently. The job sits in
// DownloadingVideo until the video stream lands and in DownloadingAudio
// until the audio stream lands as well.
var transitions = map[State][]State{
	StateIdle:              {StateDownloadingVideo, StateFailed},
	StateDownloadingVideo:  {StateDownloadingAudio, StateFailed},
	StateDownloadingAudio:  {StateAwaitingAdmission, StateFailed},
	StateAwaitingAdmission: {StateMuxing, StateFailed},
	StateMuxing:            {StateComplete, StateFailed},
}

// Observer is called after every transition, outside the machine's lock.
// Some transitions fire on a download worker goroutine rather than the one
// that called Run, so an Observer shared across jobs must be safe for
// concurrent use. It must not block.
type Observer func(jobID string, from, to State)

// machine is strict: unknown transitions are errors.
type machine struct {
	mu       sync.Mutex
	jobID    string
	state    State
	observer Observer
}

func newMachine(jobID string, observer Observer) *machine {
	return &machine{jobID: jobID, state: StateIdle, observer: observer}
}

func (m *machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) advance(to State) error {
	m.mu.Lock()
	from := m.state
	allowed := false
	for _, s := range transitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("invalid merge transition: %s -> %s", from, to)
	}
	m.state = to
	m.mu.Unlock()

	metrics.RecordMergeTransition(string(to))
	if m.observer != nil {
		m.observer(m.jobID, from, to)
	}
	return nil
}

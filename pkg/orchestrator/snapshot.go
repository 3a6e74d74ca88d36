package orchestrator

import (
	"time"

	"promptarchitect/pkg/chain"
	"promptarchitect/pkg/prompt"
)

// Snapshot is a serializable view of the controller state, delivered to subscribers.
type Snapshot struct {
	At       time.Time       `json:"at"`
	Result   *prompt.Result  `json:"result,omitempty"`
	Request  *prompt.Request `json:"request,omitempty"`
	Phase    Phase           `json:"phase"`
	RunID    string          `json:"run_id,omitempty"`
	Status   string          `json:"status,omitempty"`
	Stage    chain.Stage     `json:"stage,omitempty"`
	Error    string          `json:"error,omitempty"`
	Progress int             `json:"progress"`
}

// Terminal reports whether the snapshot ends a run.
func (s Snapshot) Terminal() bool {
	return s.Phase == PhaseComplete || s.Phase == PhaseFailed
}

func snapshotOf(st State, at time.Time) Snapshot {
	snap := Snapshot{Phase: st.Phase(), At: at}
	switch s := st.(type) {
	case Idle:
		snap.Progress = ProgressIdle
	case Running:
		req := s.Request.Clone()
		snap.RunID = s.RunID
		snap.Request = &req
		snap.Stage = s.Stage
		snap.Status = s.Status
		snap.Progress = s.Progress
	case Complete:
		req := s.Request.Clone()
		snap.RunID = s.RunID
		snap.Request = &req
		snap.Result = s.Result
		snap.Progress = ProgressFinalizing
	case Failed:
		req := s.Request.Clone()
		snap.RunID = s.RunID
		snap.Request = &req
		snap.Stage = s.Stage
		snap.Error = s.Message
	}
	return snap
}

// subscriber is a conflating mailbox: when full, the oldest pending snapshot is dropped
// so the newest one is always delivered.
type subscriber struct {
	ch chan Snapshot
}

func (s *subscriber) offer(snap Snapshot) {
	for {
		select {
		case s.ch <- snap:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

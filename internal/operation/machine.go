// Package operation implements the operation state machine skeleton
// shared by every operation kind (§4.5): requested → executing →
// (successful | failed), with an optional waiting-on-child detour.
// Each kind (restart, software update, config download/upload,
// firmware update, log upload, self-update) builds on Machine,
// supplying only its kind-specific work function.
package operation

import (
	"context"
	"time"

	"github.com/thin-edge/tedge-core/internal/store"
)

// Status is one state of the shared skeleton.
type Status string

const (
	StatusRequested      Status = "requested"
	StatusExecuting      Status = "executing"
	StatusWaitingOnChild Status = "waiting-on-child"
	StatusSuccessful     Status = "successful"
	StatusFailed         Status = "failed"
	StatusTimedOut       Status = "timed-out"
)

// Record is the JSON shape persisted to the journal for every
// operation kind (§3). Kind-specific fields live in Payload.
type Record struct {
	OperationID string         `json:"operation_id"`
	Kind        string         `json:"kind"`
	Status      Status         `json:"status"`
	Reason      string         `json:"reason,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	Payload     map[string]any `json:"payload,omitempty"`
	Attempt     int            `json:"attempt,omitempty"`
}

// StatusEmitter publishes an operation status transition to the
// cloud. Concrete implementations live in internal/mapper/c8y (and the
// az/aws equivalents); operation itself stays cloud-agnostic.
type StatusEmitter interface {
	EmitStatus(ctx context.Context, kind, opID string, status Status, reason string) error
}

// Index is the subset of internal/opstate.Store the machine needs,
// expressed as an interface so tests can substitute a fake.
type Index interface {
	Upsert(kind, opID, status string) error
	Remove(kind, opID string) error
}

// Machine drives one operation instance through the shared skeleton.
// Kind-specific state machines embed a Machine and call its
// transition methods from their own step functions.
type Machine struct {
	Kind    string
	OpID    string
	journal *store.Journal
	index   Index
	emitter StatusEmitter
	record  Record
}

// New creates a Machine for one operation instance. now is injected
// for deterministic tests.
func New(kind, opID string, journal *store.Journal, index Index, emitter StatusEmitter, now time.Time, payload map[string]any) *Machine {
	return &Machine{
		Kind:    kind,
		OpID:    opID,
		journal: journal,
		index:   index,
		emitter: emitter,
		record: Record{
			OperationID: opID,
			Kind:        kind,
			Status:      StatusRequested,
			CreatedAt:   now,
			UpdatedAt:   now,
			Payload:     payload,
		},
	}
}

// Record returns a copy of the current persisted state.
func (m *Machine) Record() Record { return m.record }

// Enter transitions to executing: persists the record, updates the
// lookup index, and emits the "executing" status, per §4.5 step 1-2.
func (m *Machine) Enter(ctx context.Context, now time.Time) error {
	m.record.Status = StatusExecuting
	m.record.UpdatedAt = now
	if err := m.persist(); err != nil {
		return err
	}
	return m.emit(ctx, StatusExecuting, "")
}

// WaitOnChild transitions to the waiting-on-child substate. The
// firmware correlator does not enter it; it stays executing while it
// waits for the child's reply.
func (m *Machine) WaitOnChild(ctx context.Context, now time.Time) error {
	m.record.Status = StatusWaitingOnChild
	m.record.UpdatedAt = now
	return m.persist()
}

// Resume transitions back from waiting-on-child to executing, e.g. on
// a child's "executing" keep-alive response.
func (m *Machine) Resume(ctx context.Context, now time.Time) error {
	m.record.Status = StatusExecuting
	m.record.UpdatedAt = now
	return m.persist()
}

// Succeed transitions to the terminal successful state: emits the
// status then deletes the journal record and index row (§4.5 step 4).
func (m *Machine) Succeed(ctx context.Context, now time.Time) error {
	m.record.Status = StatusSuccessful
	m.record.UpdatedAt = now
	if err := m.emit(ctx, StatusSuccessful, ""); err != nil {
		return err
	}
	return m.finish()
}

// Fail transitions to the terminal failed state with reason.
func (m *Machine) Fail(ctx context.Context, now time.Time, reason string) error {
	m.record.Status = StatusFailed
	m.record.UpdatedAt = now
	m.record.Reason = reason
	if err := m.emit(ctx, StatusFailed, reason); err != nil {
		return err
	}
	return m.finish()
}

// TimeOut transitions to the terminal timed-out state, reported to
// the cloud as a failed status carrying the timeout reason.
func (m *Machine) TimeOut(ctx context.Context, now time.Time, reason string) error {
	m.record.Status = StatusTimedOut
	m.record.UpdatedAt = now
	m.record.Reason = reason
	if err := m.emit(ctx, StatusFailed, reason); err != nil {
		return err
	}
	return m.finish()
}

func (m *Machine) persist() error {
	if err := m.journal.Write(m.Kind, m.OpID, m.record); err != nil {
		return err
	}
	if m.index != nil {
		return m.index.Upsert(m.Kind, m.OpID, string(m.record.Status))
	}
	return nil
}

func (m *Machine) finish() error {
	if err := m.journal.Delete(m.Kind, m.OpID); err != nil {
		return err
	}
	if m.index != nil {
		return m.index.Remove(m.Kind, m.OpID)
	}
	return nil
}

func (m *Machine) emit(ctx context.Context, status Status, reason string) error {
	if m.emitter == nil {
		return nil
	}
	return m.emitter.EmitStatus(ctx, m.Kind, m.OpID, status, reason)
}

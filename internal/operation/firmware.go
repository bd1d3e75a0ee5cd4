package operation

import (
	"context"
	"time"

	"github.com/thin-edge/tedge-core/internal/actor"
)

// FirmwareKind names the firmware update operation kind.
const FirmwareKind = "firmware-update"

// DefaultFirmwareTimeout bounds how long the correlator waits for a
// child device's "executing" keep-alive or terminal response before
// retrying the request.
const DefaultFirmwareTimeout = 1 * time.Hour

// MaxFirmwareRetries is the number of request attempts (the initial
// send plus retries) before the operation times out.
const MaxFirmwareRetries = 3

// FirmwareRequest is published to a child device to start a firmware
// update.
type FirmwareRequest struct {
	OperationID     string
	Name            string
	Version         string
	Sha256          string
	FileTransferURL string
	Attempt         int
}

// FirmwareResponse is the child device's reply, correlated back to
// the originating operation by OperationID.
type FirmwareResponse struct {
	OperationID string
	Status      string // "executing", "successful", or "failed"
	Reason      string
}

// FirmwarePublisher sends a firmware update request to childID.
type FirmwarePublisher interface {
	PublishFirmwareRequest(ctx context.Context, childID string, req FirmwareRequest) error
}

type firmwareEvent struct {
	response *FirmwareResponse
	timedOut bool
}

// FirmwareCorrelator drives one firmware_update operation: it
// publishes the request, waits for the child's response on
// Responses(), and retries on timeout up to MaxFirmwareRetries before
// giving up (§4.5's child-device correlation flow).
type FirmwareCorrelator struct {
	m         *Machine
	childID   string
	publisher FirmwarePublisher
	timer     *actor.Timer
	timeout   time.Duration
	maxRetry  int

	mailbox *actor.Mailbox[firmwareEvent]

	// Clock returns the current time for every transition after the
	// initial Enter, so a retry's timer is armed relative to when the
	// retry actually happens rather than the operation's start time.
	// Defaults to time.Now; tests override it for determinism.
	Clock func() time.Time
}

// NewFirmwareCorrelator builds a correlator for one operation. timeout
// and maxRetry fall back to DefaultFirmwareTimeout/MaxFirmwareRetries
// when zero.
func NewFirmwareCorrelator(m *Machine, childID string, publisher FirmwarePublisher, timer *actor.Timer, timeout time.Duration, maxRetry int) *FirmwareCorrelator {
	if timeout <= 0 {
		timeout = DefaultFirmwareTimeout
	}
	if maxRetry <= 0 {
		maxRetry = MaxFirmwareRetries
	}
	return &FirmwareCorrelator{
		m: m, childID: childID, publisher: publisher, timer: timer,
		timeout: timeout, maxRetry: maxRetry,
		mailbox: actor.NewMailbox[firmwareEvent](8),
		Clock:   time.Now,
	}
}

// Responses returns the sender a dispatcher forwards matching
// tedge/<child>/commands/res/firmware_update messages onto, after
// decoding them into FirmwareResponse and matching OperationID.
func (f *FirmwareCorrelator) Responses() actor.Sender[FirmwareResponse] {
	return actor.Adapt(f.mailbox.Sender(), func(r FirmwareResponse) firmwareEvent {
		return firmwareEvent{response: &r}
	})
}

func (f *FirmwareCorrelator) timerSink() actor.Sender[actor.TimerEvent] {
	return actor.Adapt(f.mailbox.Sender(), func(actor.TimerEvent) firmwareEvent {
		return firmwareEvent{timedOut: true}
	})
}

// Run executes the correlation loop to completion: successful, failed,
// or timed-out after exhausting retries.
func (f *FirmwareCorrelator) Run(ctx context.Context, now time.Time) error {
	if err := f.m.Enter(ctx, now); err != nil {
		return err
	}

	attempt := 1
	if err := f.send(ctx, attempt); err != nil {
		return f.m.Fail(ctx, now, err.Error())
	}
	if err := f.arm(ctx, now); err != nil {
		return err
	}

	for {
		select {
		case ev := <-f.mailbox.Recv():
			tick := f.Clock()
			switch {
			case ev.timedOut:
				attempt++
				if attempt > f.maxRetry {
					f.timer.Cancel(ctx, f.m.OpID)
					return f.m.TimeOut(ctx, tick, "timeout")
				}
				if err := f.send(ctx, attempt); err != nil {
					return f.m.Fail(ctx, tick, err.Error())
				}
				if err := f.arm(ctx, tick); err != nil {
					return err
				}

			case ev.response != nil:
				switch ev.response.Status {
				case "executing":
					if err := f.m.Resume(ctx, tick); err != nil {
						return err
					}
					if err := f.arm(ctx, tick); err != nil {
						return err
					}
				case "successful":
					f.timer.Cancel(ctx, f.m.OpID)
					return f.m.Succeed(ctx, tick)
				case "failed":
					f.timer.Cancel(ctx, f.m.OpID)
					return f.m.Fail(ctx, tick, ev.response.Reason)
				}
			}
		case <-ctx.Done():
			f.timer.Cancel(ctx, f.m.OpID)
			return ctx.Err()
		}
	}
}

func (f *FirmwareCorrelator) send(ctx context.Context, attempt int) error {
	return f.publisher.PublishFirmwareRequest(ctx, f.childID, FirmwareRequest{
		OperationID: f.m.OpID,
		Attempt:     attempt,
	})
}

func (f *FirmwareCorrelator) arm(ctx context.Context, now time.Time) error {
	return f.timer.Set(ctx, f.m.OpID, "firmware-timeout", now.Add(f.timeout), f.timerSink())
}

package operation

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeCloudConnection struct {
	name             string
	disconnectErr    error
	reconnectCalled  bool
	disconnectCalled bool
}

func (c *fakeCloudConnection) Name() string { return c.name }
func (c *fakeCloudConnection) Disconnect(ctx context.Context) error {
	c.disconnectCalled = true
	return c.disconnectErr
}
func (c *fakeCloudConnection) Reconnect(ctx context.Context) error {
	c.reconnectCalled = true
	return nil
}

type fakeUpdater struct {
	applyErr error
	applied  bool
}

func (u *fakeUpdater) Apply(ctx context.Context) error {
	u.applied = true
	return u.applyErr
}

func TestRunSelfUpdateSucceedsWhenAllDisconnectsSucceed(t *testing.T) {
	m := newConfigMachine(t, SelfUpdateKind, "su-1")
	c8y := &fakeCloudConnection{name: "c8y"}
	az := &fakeCloudConnection{name: "az"}
	updater := &fakeUpdater{}

	result, err := RunSelfUpdate(context.Background(), m, []CloudConnection{c8y, az}, updater, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.AnyDisconnectFailed {
		t.Fatal("expected no disconnect failures")
	}
	if !c8y.reconnectCalled || !az.reconnectCalled {
		t.Fatal("expected every cloud to be reconnected")
	}
	if !updater.applied {
		t.Fatal("expected update to be applied")
	}
	if m.Record().Status != StatusSuccessful {
		t.Fatalf("got status %v", m.Record().Status)
	}
}

func TestRunSelfUpdateReportsDisconnectFailureAndStillReconnects(t *testing.T) {
	m := newConfigMachine(t, SelfUpdateKind, "su-2")
	c8y := &fakeCloudConnection{name: "c8y", disconnectErr: errBoom}
	updater := &fakeUpdater{}

	result, err := RunSelfUpdate(context.Background(), m, []CloudConnection{c8y}, updater, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if !result.AnyDisconnectFailed {
		t.Fatal("expected disconnect failure to be reported")
	}
	if len(result.FailedClouds) != 1 || result.FailedClouds[0] != "c8y" {
		t.Fatalf("got failed clouds %v", result.FailedClouds)
	}
	if !c8y.reconnectCalled {
		t.Fatal("expected reconnect attempt even after disconnect failure")
	}
	if m.Record().Status != StatusFailed {
		t.Fatalf("got status %v", m.Record().Status)
	}
}

func TestRunSelfUpdateFailsWhenApplyErrors(t *testing.T) {
	m := newConfigMachine(t, SelfUpdateKind, "su-3")
	updater := &fakeUpdater{applyErr: errBoom}

	result, err := RunSelfUpdate(context.Background(), m, nil, updater, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	if result.AnyDisconnectFailed {
		t.Fatal("no clouds configured, should not report disconnect failure")
	}
	if m.Record().Status != StatusFailed {
		t.Fatalf("got status %v", m.Record().Status)
	}
}

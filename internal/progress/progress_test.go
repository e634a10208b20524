package progress

import "testing"

type fakeClient struct {
	events []Event
	fail   bool
}

func (f *fakeClient) Send(evt Event) error {
	if f.fail {
		return errFake
	}
	f.events = append(f.events, evt)
	return nil
}

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

const errFake = fakeErr("send failed")

func TestRegistryBroadcastsOnlyToSubscribedRun(t *testing.T) {
	reg := NewRegistry()
	a := &fakeClient{}
	b := &fakeClient{}
	reg.Subscribe("run1", a)
	reg.Subscribe("run2", b)

	rep := NewReporter(reg, "run1")
	rep.NodeStarted(0, "[1,100)")

	if len(a.events) != 1 {
		t.Fatalf("expected run1 subscriber to receive 1 event, got %d", len(a.events))
	}
	if len(b.events) != 0 {
		t.Fatalf("expected run2 subscriber to receive 0 events, got %d", len(b.events))
	}
	if a.events[0].Kind != "started" || a.events[0].KeyRange != "[1,100)" {
		t.Fatalf("unexpected event: %+v", a.events[0])
	}
}

func TestRegistryDropsUnresponsiveClientAfterSendError(t *testing.T) {
	reg := NewRegistry()
	bad := &fakeClient{fail: true}
	good := &fakeClient{}
	reg.Subscribe("run1", bad)
	reg.Subscribe("run1", good)

	rep := NewReporter(reg, "run1")
	rep.NodeResolved(1, "[1,50)", true, 10, 12)
	rep.NodeResolved(1, "[1,50)", true, 10, 12)

	if len(good.events) != 2 {
		t.Fatalf("expected surviving subscriber to get both events, got %d", len(good.events))
	}

	reg.mu.RLock()
	_, stillSubscribed := reg.clients["run1"][bad]
	reg.mu.RUnlock()
	if stillSubscribed {
		t.Fatal("expected failing client to be unsubscribed after a failed send")
	}
}

func TestUnsubscribeRemovesEmptyRunEntry(t *testing.T) {
	reg := NewRegistry()
	c := &fakeClient{}
	reg.Subscribe("run1", c)
	reg.Unsubscribe("run1", c)

	reg.mu.RLock()
	_, ok := reg.clients["run1"]
	reg.mu.RUnlock()
	if ok {
		t.Fatal("expected empty run entry to be pruned from the registry")
	}
}

func TestReporterLeafMaterializedCarriesDiffCount(t *testing.T) {
	reg := NewRegistry()
	c := &fakeClient{}
	reg.Subscribe("run1", c)
	rep := NewReporter(reg, "run1")
	rep.LeafMaterialized(3, "[5,9)", 7)

	if len(c.events) != 1 || c.events[0].Kind != "leaf" || c.events[0].DiffCount != 7 {
		t.Fatalf("unexpected event: %+v", c.events)
	}
}

package hub

import (
	"testing"

	"github.com/agreemo/dashboard/backend/internal/model"
)

func TestPublish_FansOutToAll(t *testing.T) {
	h := New(nil)
	a, b := NewClient(4), NewClient(4)
	h.Register(a)
	h.Register(b)

	h.Publish(model.Event{Name: "RejectData"})

	for _, c := range []*Client{a, b} {
		select {
		case evt := <-c.Messages():
			if evt.Name != "RejectData" {
				t.Errorf("event = %q, want RejectData", evt.Name)
			}
		default:
			t.Errorf("client %s received nothing", c.ID)
		}
	}
}

func TestSendTo_OnlyTarget(t *testing.T) {
	h := New(nil)
	a, b := NewClient(4), NewClient(4)
	h.Register(a)
	h.Register(b)

	if !h.SendTo(a.ID, model.Event{Name: "HarvestData"}) {
		t.Fatal("SendTo() = false, want true")
	}
	if len(a.Messages()) != 1 {
		t.Errorf("target queue len = %d, want 1", len(a.Messages()))
	}
	if len(b.Messages()) != 0 {
		t.Errorf("other queue len = %d, want 0", len(b.Messages()))
	}
}

func TestSendTo_UnknownClient(t *testing.T) {
	h := New(nil)
	if h.SendTo("missing", model.Event{Name: "x"}) {
		t.Error("SendTo() = true for unknown client")
	}
}

func TestPublish_FullQueueDoesNotBlock(t *testing.T) {
	h := New(nil)
	c := NewClient(1)
	h.Register(c)

	h.Publish(model.Event{Name: "first"})
	h.Publish(model.Event{Name: "second"})

	evt := <-c.Messages()
	if evt.Name != "first" {
		t.Errorf("event = %q, want first", evt.Name)
	}
	if len(c.Messages()) != 0 {
		t.Errorf("queue len = %d, want 0 after drop", len(c.Messages()))
	}
}

func TestUnregister_Idempotent(t *testing.T) {
	h := New(nil)
	c := NewClient(1)
	h.Register(c)

	h.Unregister(c.ID)
	h.Unregister(c.ID)
	h.Unregister("never-registered")

	if h.Count() != 0 {
		t.Errorf("Count() = %d, want 0", h.Count())
	}
	if _, ok := <-c.Messages(); ok {
		t.Error("Messages() should be closed after Unregister")
	}
}

func TestNewClient_UniqueIDs(t *testing.T) {
	a, b := NewClient(0), NewClient(0)
	if a.ID == "" || a.ID == b.ID {
		t.Errorf("ids = %q, %q, want distinct non-empty", a.ID, b.ID)
	}
	if cap(a.send) != defaultQueueSize {
		t.Errorf("queue cap = %d, want %d", cap(a.send), defaultQueueSize)
	}
}

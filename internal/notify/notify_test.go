package notify

import (
	"testing"
	"time"
)

func TestNotifier_PublishNoSubscribers(t *testing.T) {
	n := NewNotifier(10)
	n.Publish(Change{Type: SpaceCreated, Space: "task"})
}

func TestNotifier_SubscribeReceivesChange(t *testing.T) {
	n := NewNotifier(10)
	sub := n.Subscribe("sub-1")

	n.Publish(Change{Type: IndexCreated, Space: "task", SpaceID: 512, Generation: 7})

	select {
	case c := <-sub.Ch:
		if c.Type != IndexCreated || c.Space != "task" || c.SpaceID != 512 {
			t.Errorf("unexpected change: %+v", c)
		}
		if c.Timestamp == 0 {
			t.Error("expected the timestamp to be set")
		}
	case <-time.After(time.Second):
		t.Fatal("subscriber did not receive change within timeout")
	}
}

func TestNotifier_SpaceFilter(t *testing.T) {
	n := NewNotifier(10)
	sub := n.Subscribe("sub-2", "person")

	n.Publish(Change{Type: SpaceAltered, Space: "task"})
	n.Publish(Change{Type: Refreshed})
	n.Publish(Change{Type: SpaceDropped, Space: "person"})

	want := []ChangeType{Refreshed, SpaceDropped}
	for _, w := range want {
		select {
		case c := <-sub.Ch:
			if c.Type != w {
				t.Errorf("expected %s, got %s", w, c.Type)
			}
		case <-time.After(time.Second):
			t.Fatalf("missing %s", w)
		}
	}
	select {
	case c := <-sub.Ch:
		t.Fatalf("received unexpected change: %+v", c)
	default:
	}
}

func TestNotifier_FullChannelDropsChange(t *testing.T) {
	n := NewNotifier(1)
	sub := n.Subscribe("sub-3")

	n.Publish(Change{Type: SpaceCreated, Space: "first"})
	n.Publish(Change{Type: SpaceCreated, Space: "second"})

	c := <-sub.Ch
	if c.Space != "first" {
		t.Errorf("expected first change to be kept, got %q", c.Space)
	}
	select {
	case c := <-sub.Ch:
		t.Fatalf("expected the second change to be dropped, got %+v", c)
	default:
	}
}

func TestNotifier_Unsubscribe(t *testing.T) {
	n := NewNotifier(1)
	sub := n.SubscribeAutoID()
	if n.Len() != 1 {
		t.Fatalf("expected 1 subscriber, got %d", n.Len())
	}

	n.Unsubscribe(sub.ID)
	if _, ok := <-sub.Ch; ok {
		t.Error("expected channel to be closed")
	}
	if n.Len() != 0 {
		t.Errorf("expected no subscribers, got %d", n.Len())
	}

	n.Unsubscribe(sub.ID)
	n.Publish(Change{Type: Refreshed})
}

func TestNotifier_ResubscribeClosesOldChannel(t *testing.T) {
	n := NewNotifier(1)
	old := n.Subscribe("same")
	cur := n.Subscribe("same")

	if _, ok := <-old.Ch; ok {
		t.Error("expected the replaced channel to be closed")
	}
	n.Publish(Change{Type: Refreshed})
	if c := <-cur.Ch; c.Type != Refreshed {
		t.Errorf("expected refreshed, got %s", c.Type)
	}
}

func TestChangeType_String(t *testing.T) {
	if got := IndexRemoved.String(); got != "index_removed" {
		t.Errorf("expected index_removed, got %s", got)
	}
	if got := ChangeType(99).String(); got != "unknown" {
		t.Errorf("expected unknown, got %s", got)
	}
}

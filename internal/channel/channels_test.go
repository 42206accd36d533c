package channel

import (
	"context"
	"testing"
	"time"

	"dealspulse/models"
)

func TestSendEvent(t *testing.T) {
	c := NewChannels(1)

	ev := models.ChangeEvent{Type: models.ChangeDelete, DealID: "d1", ReceivedAt: time.Now()}
	if !c.SendEvent(context.Background(), ev) {
		t.Fatalf("send into empty buffer should succeed")
	}

	got := <-c.Events
	if got.DealID != "d1" {
		t.Fatalf("unexpected event: %+v", got)
	}

	stats := c.Stats()
	if stats.EventsSent != 1 || stats.EventsDropped != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestSendEventDropsWhenFull(t *testing.T) {
	c := NewChannels(1)

	ev := models.ChangeEvent{Type: models.ChangeDelete, DealID: "d1"}
	if !c.SendEvent(context.Background(), ev) {
		t.Fatalf("first send should succeed")
	}
	if c.SendEvent(context.Background(), ev) {
		t.Fatalf("second send should drop on full buffer")
	}

	stats := c.Stats()
	if stats.EventsDropped != 1 {
		t.Fatalf("expected one dropped event, got %+v", stats)
	}
}

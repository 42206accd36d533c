package channel

import (
	"context"
	"sync"

	"dealspulse/logger"
	"dealspulse/models"
)

type ChannelStats struct {
	EventsSent    int64
	EventsDropped int64
}

// Channels bundles the buffered channel carrying change events from the
// realtime reader to the reconciler, with send/drop accounting.
type Channels struct {
	Events chan models.ChangeEvent

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(eventBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Events: make(chan models.ChangeEvent, eventBufferSize),
		log:    log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"event_buffer_size": eventBufferSize,
	}).Info("event channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Events)
	c.log.WithComponent("channels").Info("event channels closed")
}

func (c *Channels) IncrementEventsSent() {
	c.statsMutex.Lock()
	c.stats.EventsSent++
	c.statsMutex.Unlock()
}

func (c *Channels) IncrementEventsDropped() {
	c.statsMutex.Lock()
	c.stats.EventsDropped++
	c.statsMutex.Unlock()
}

// SendEvent pushes an event without blocking. A full buffer drops the event;
// the reconciler tolerates gaps because every snapshot refetch restores the
// full state.
func (c *Channels) SendEvent(ctx context.Context, ev models.ChangeEvent) bool {
	select {
	case c.Events <- ev:
		c.IncrementEventsSent()
		return true
	case <-ctx.Done():
		return false
	default:
		c.IncrementEventsDropped()
		c.log.WithComponent("channels").WithFields(logger.Fields{
			"deal_id": ev.ID(),
			"type":    string(ev.Type),
		}).Warn("event channel full, dropping event")
		return false
	}
}

// Stats returns a copy of the send/drop counters.
func (c *Channels) Stats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

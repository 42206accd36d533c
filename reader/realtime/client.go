// Package realtime implements the change stream source: a phoenix-channel
// websocket subscription yielding insert/update/delete events for deal rows.
// The stream gives no ordering or delivery guarantees; downstream admission
// is idempotent, so duplicates and reordering are tolerated here rather than
// corrected.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"dealspulse/config"
	"dealspulse/internal/channel"
	"dealspulse/logger"
	"dealspulse/models"
)

const (
	eventJoin      = "phx_join"
	eventReply     = "phx_reply"
	eventHeartbeat = "heartbeat"
	topicPhoenix   = "phoenix"

	maxReconnectBackoff = 30 * time.Second
)

// phoenixMessage is the phoenix channel wire frame.
type phoenixMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

// changePayload is the postgres change body carried in INSERT/UPDATE/DELETE
// frames.
type changePayload struct {
	Type      string          `json:"type"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// Reader maintains the websocket subscription and forwards decoded change
// events into the shared event channel. A broken subscription reconnects
// with capped backoff; while disconnected the feed simply receives no live
// updates, it is never cleared.
type Reader struct {
	config   *config.Config
	channels *channel.Channels

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// onStateChange reports subscription up/down transitions, feeding the
	// reconciler's stream-interrupted state.
	onStateChange func(connected bool)

	lastErr error
}

func NewReader(cfg *config.Config, ch *channel.Channels, onStateChange func(connected bool)) *Reader {
	log := logger.GetLogger()

	r := &Reader{
		config:        cfg,
		channels:      ch,
		wg:            &sync.WaitGroup{},
		log:           log,
		onStateChange: onStateChange,
	}

	log.WithComponent("realtime_reader").WithFields(logger.Fields{
		"url":   cfg.Source.Realtime.URL,
		"topic": cfg.Source.Realtime.Topic,
	}).Info("realtime reader initialized")

	return r
}

// Start launches the subscription manager.
func (r *Reader) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return fmt.Errorf("realtime reader already running")
	}
	r.running = true
	r.ctx = ctx
	r.mu.Unlock()

	log := r.log.WithComponent("realtime_reader").WithFields(logger.Fields{"operation": "start"})
	log.Info("starting realtime reader")

	r.wg.Add(1)
	go r.manage()

	log.Info("realtime reader started successfully")
	return nil
}

// Stop terminates the subscription and waits for the manager to exit.
func (r *Reader) Stop() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()

	r.log.WithComponent("realtime_reader").Info("stopping realtime reader")
	r.wg.Wait()
	r.log.WithComponent("realtime_reader").Info("realtime reader stopped")
}

// LastError returns the most recent subscription failure, nil while healthy.
func (r *Reader) LastError() error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastErr
}

func (r *Reader) setState(connected bool, err error) {
	r.mu.Lock()
	if err != nil {
		r.lastErr = fmt.Errorf("%w: %v", models.ErrStreamInterrupted, err)
	} else if connected {
		r.lastErr = nil
	}
	r.mu.Unlock()

	if r.onStateChange != nil {
		r.onStateChange(connected)
	}
}

// manage runs connect/consume cycles with capped exponential backoff until
// the context is cancelled.
func (r *Reader) manage() {
	defer r.wg.Done()

	log := r.log.WithComponent("realtime_reader").WithFields(logger.Fields{"worker": "subscription"})
	backoff := time.Second

	for {
		select {
		case <-r.ctx.Done():
			log.Info("subscription manager shutting down")
			return
		default:
		}

		err := r.consume()
		if err == nil {
			// Clean shutdown.
			return
		}

		r.setState(false, err)
		log.WithError(err).WithFields(logger.Fields{"backoff": backoff.String()}).Warn("subscription lost, reconnecting")

		select {
		case <-r.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxReconnectBackoff {
			backoff = maxReconnectBackoff
		}
	}
}

// consume dials, joins the deals topic and reads frames until the
// connection breaks or the context is cancelled. Returns nil only on clean
// shutdown.
func (r *Reader) consume() error {
	cfg := r.config.Source.Realtime
	log := r.log.WithComponent("realtime_reader")

	endpoint, err := dialURL(cfg.URL, cfg.AnonKey)
	if err != nil {
		return err
	}

	dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
	conn, _, err := dialer.DialContext(r.ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("dial realtime endpoint: %w", err)
	}
	defer conn.Close()

	join := phoenixMessage{
		Topic:   cfg.Topic,
		Event:   eventJoin,
		Payload: json.RawMessage(`{}`),
		Ref:     uuid.NewString(),
	}
	if err := conn.WriteJSON(join); err != nil {
		return fmt.Errorf("join topic: %w", err)
	}

	log.WithFields(logger.Fields{"topic": cfg.Topic}).Info("subscription established")
	r.setState(true, nil)

	// Heartbeats keep the phoenix connection alive; a dead peer surfaces as
	// a write error which tears down the cycle.
	stopHeartbeat := make(chan struct{})
	defer close(stopHeartbeat)
	r.wg.Add(1)
	go r.heartbeat(conn, cfg.HeartbeatInterval, stopHeartbeat)

	// Unblock ReadMessage on shutdown.
	readCtx, cancelRead := context.WithCancel(r.ctx)
	defer cancelRead()
	go func() {
		<-readCtx.Done()
		conn.Close()
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-r.ctx.Done():
				return nil
			default:
				return fmt.Errorf("read frame: %w", err)
			}
		}
		r.handleFrame(raw)
	}
}

func (r *Reader) heartbeat(conn *websocket.Conn, interval time.Duration, stop <-chan struct{}) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			msg := phoenixMessage{
				Topic:   topicPhoenix,
				Event:   eventHeartbeat,
				Payload: json.RawMessage(`{}`),
				Ref:     uuid.NewString(),
			}
			if err := conn.WriteJSON(msg); err != nil {
				r.log.WithComponent("realtime_reader").WithError(err).Warn("heartbeat write failed")
				return
			}
		}
	}
}

// handleFrame decodes one wire frame and forwards recognised change events.
// A single malformed frame is dropped with a warning; it must never take the
// stream down.
func (r *Reader) handleFrame(raw []byte) {
	log := r.log.WithComponent("realtime_reader")

	var msg phoenixMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.WithError(err).Warn("undecodable frame, dropping")
		return
	}

	switch msg.Event {
	case eventReply, eventHeartbeat, "phx_close", "phx_error", "presence_state", "presence_diff":
		return
	}

	ev, err := decodeChange(msg.Event, msg.Payload)
	if err != nil {
		log.WithError(err).WithFields(logger.Fields{"event": msg.Event}).Warn("unusable change event, dropping")
		return
	}

	logger.IncrementStreamEvent(len(raw))
	if r.channels.SendEvent(r.ctx, ev) {
		logger.LogDataFlowEntry(log, "realtime_ws", "event_channel", 1, string(ev.Type))
	}
}

// decodeChange turns a postgres change frame into a ChangeEvent. The frame
// event name carries the change type; deletes usually only ship the old
// record's keys.
func decodeChange(event string, payload []byte) (models.ChangeEvent, error) {
	var body changePayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return models.ChangeEvent{}, fmt.Errorf("decode change payload: %w", err)
	}

	changeType := models.ChangeType(event)
	if body.Type != "" {
		changeType = models.ChangeType(body.Type)
	}

	ev := models.ChangeEvent{Type: changeType, ReceivedAt: time.Now()}

	decodeDeal := func(raw json.RawMessage) (*models.Deal, error) {
		if len(raw) == 0 || string(raw) == "null" {
			return nil, nil
		}
		var d models.Deal
		if err := json.Unmarshal(raw, &d); err != nil {
			return nil, err
		}
		d.Category = models.ParseCategory(string(d.Category))
		return &d, nil
	}

	switch changeType {
	case models.ChangeInsert, models.ChangeUpdate:
		deal, err := decodeDeal(body.Record)
		if err != nil {
			return models.ChangeEvent{}, fmt.Errorf("decode record: %w", err)
		}
		if deal == nil || deal.ID == "" {
			return models.ChangeEvent{}, fmt.Errorf("%s event without record", changeType)
		}
		ev.Deal = deal
		if prev, err := decodeDeal(body.OldRecord); err == nil {
			ev.Prev = prev
		}
		return ev, nil

	case models.ChangeDelete:
		prev, err := decodeDeal(body.OldRecord)
		if err != nil {
			return models.ChangeEvent{}, fmt.Errorf("decode old record: %w", err)
		}
		if prev == nil || prev.ID == "" {
			return models.ChangeEvent{}, fmt.Errorf("delete event without identifier")
		}
		ev.Prev = prev
		ev.DealID = prev.ID
		return ev, nil

	default:
		return models.ChangeEvent{}, fmt.Errorf("unknown change event %q", event)
	}
}

// dialURL appends the api key and protocol version to the websocket
// endpoint.
func dialURL(base, anonKey string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("vsn", "1.0.0")
	if anonKey != "" {
		q.Set("apikey", anonKey)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

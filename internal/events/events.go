// Package events publishes interview lifecycle notifications over MQTT so
// other systems at the site (displays, dashboards) can follow along.
package events

import (
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/interview-desk/internal/metrics"
)

// Event types.
const (
	InterviewCreated   = "created"
	TranscriptSaved    = "saved"
	NotesSaved         = "notes"
	InterviewFinalized = "finalized"
)

// Event is the JSON payload published for each lifecycle change.
type Event struct {
	Type        string    `json:"type"`
	InterviewID int64     `json:"interview_id"`
	Length      int       `json:"transcript_length,omitempty"`
	DocumentKey string    `json:"document_key,omitempty"`
	Time        time.Time `json:"time"`
}

// Publisher sends lifecycle events. Publishing is best effort: failures are
// logged, never returned to the caller's request path.
type Publisher interface {
	Publish(ev Event)
	Close()
}

// Nop discards all events. Used when no broker is configured.
type Nop struct{}

func (Nop) Publish(Event) {}
func (Nop) Close()        {}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Log         zerolog.Logger
}

// queueSize bounds the events waiting for the broker. Further events are
// dropped until the queue drains.
const queueSize = 64

// publishTimeout bounds how long the worker waits for one broker ack.
const publishTimeout = 5 * time.Second

// Client publishes events to an MQTT broker. Publish only enqueues; a
// single worker sends events in order so request handlers never wait on
// the broker.
type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan Event
	done   chan struct{}
}

func newClient(prefix string, log zerolog.Logger) *Client {
	return &Client{
		prefix: prefix,
		log:    log,
		queue:  make(chan Event, queueSize),
		done:   make(chan struct{}),
	}
}

func Connect(opts Options) (*Client, error) {
	c := newClient(opts.TopicPrefix, opts.Log)

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}

	go c.run()
	return c, nil
}

func (c *Client) onConnect(_ mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("prefix", c.prefix).Msg("mqtt connected")
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

// Topic returns the topic an event type is published on.
func (c *Client) Topic(eventType string) string {
	return Topic(c.prefix, eventType)
}

func Topic(prefix, eventType string) string {
	if prefix == "" {
		return "interviews/" + eventType
	}
	return prefix + "/interviews/" + eventType
}

// Publish queues ev for the broker and returns immediately.
func (c *Client) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return
	}
	select {
	case c.queue <- ev:
	default:
		c.log.Warn().Str("type", ev.Type).Int64("interview_id", ev.InterviewID).Msg("event queue full, dropping event")
	}
}

func (c *Client) run() {
	defer close(c.done)
	for ev := range c.queue {
		c.send(ev)
	}
}

func (c *Client) send(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		c.log.Error().Err(err).Str("type", ev.Type).Msg("encode event failed")
		return
	}

	topic := c.Topic(ev.Type)
	token := c.conn.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(publishTimeout) {
		c.log.Warn().Str("topic", topic).Msg("mqtt publish timed out")
		return
	}
	if err := token.Error(); err != nil {
		c.log.Warn().Err(err).Str("topic", topic).Msg("mqtt publish failed")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(ev.Type).Inc()
	c.log.Debug().Str("topic", topic).Int64("interview_id", ev.InterviewID).Msg("event published")
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Close stops accepting events, gives queued ones a moment to go out and
// disconnects.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()

	select {
	case <-c.done:
	case <-time.After(publishTimeout):
		c.log.Warn().Int("pending", len(c.queue)).Msg("mqtt queue not drained before shutdown")
	}
	c.log.Info().Msg("disconnecting mqtt client")
	c.conn.Disconnect(1000)
}

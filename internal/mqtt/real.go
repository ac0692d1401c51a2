package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/gpio-monitor/internal/monitor"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second

	// DefaultBufferSize is how many messages are kept while disconnected.
	DefaultBufferSize = 64
)

// Options configures a RealPublisher.
type Options struct {
	Broker      string
	ClientID    string
	TopicPrefix string
	BufferSize  int
}

// client is the part of paho.Client the publisher uses.
type client interface {
	IsConnectionOpen() bool
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// RealPublisher publishes to an actual MQTT broker.
// Messages published while the connection is down are buffered and
// replayed, oldest first, once it is back.
type RealPublisher struct {
	client client
	topics Topics
	now    func() time.Time

	mu       sync.Mutex
	buffer   *ringBuffer
	connects int
}

// NewRealPublisher creates a publisher for the given broker. If the broker
// is not reachable within the connect timeout the publisher is returned
// anyway; paho keeps retrying in the background and messages are buffered.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = DefaultPrefix
	}
	if o.BufferSize == 0 {
		o.BufferSize = DefaultBufferSize
	}
	p := newPublisher(nil, NewTopics(o.TopicPrefix), o.BufferSize)

	will, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
	})
	if err != nil {
		return nil, fmt.Errorf("format will payload: %w", err)
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(p.topics.System(), will, 1, true).
		SetOnConnectHandler(func(paho.Client) { p.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c := paho.NewClient(opts)
	p.client = c

	token := c.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, buffering", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(c client, topics Topics, bufferSize int) *RealPublisher {
	return &RealPublisher{
		client: c,
		topics: topics,
		now:    time.Now,
		buffer: newRingBuffer(bufferSize),
	}
}

// onConnect replays buffered messages and announces a reconnect.
func (p *RealPublisher) onConnect() {
	p.mu.Lock()
	msgs := p.buffer.drainAll()
	p.connects++
	first := p.connects == 1
	p.mu.Unlock()

	if len(msgs) > 0 {
		log.Printf("mqtt: connected, replaying %d buffered messages", len(msgs))
	}
	for i, msg := range msgs {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: replay failed: %v", err)
			p.mu.Lock()
			for _, rest := range msgs[i:] {
				p.buffer.push(rest)
			}
			p.mu.Unlock()
			return
		}
	}

	if first {
		return
	}
	reconnected, _ := FormatSystemPayload(SystemEvent{Timestamp: p.now(), Event: "RECONNECTED"})
	if err := p.send(bufferedMsg{topic: p.topics.System(), payload: reconnected, qos: 1}); err != nil {
		log.Printf("mqtt: publish reconnected event: %v", err)
	}
}

func (p *RealPublisher) send(msg bufferedMsg) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// publish sends msg, or buffers it when the connection is down.
// A message that fails to send is buffered and the error returned.
func (p *RealPublisher) publish(msg bufferedMsg) error {
	if !p.client.IsConnectionOpen() {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return nil
	}
	if err := p.send(msg); err != nil {
		p.mu.Lock()
		p.buffer.push(msg)
		p.mu.Unlock()
		return err
	}
	return nil
}

// Publish sends a pin change to the pin's topic.
// The message is retained so new subscribers see the current state.
func (p *RealPublisher) Publish(change monitor.Change) error {
	payload, err := FormatPayload(change)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{
		topic:    p.topics.Pin(change.Pin),
		payload:  payload,
		qos:      1,
		retained: true,
	})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}

	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{
		topic:    p.topics.System(),
		payload:  payload,
		qos:      1,
		retained: event.Retained,
	})
}

// Buffered returns how many messages wait for the connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.buffer.len()
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/irrigation-controller/internal/logic"
)

// Options configures RealPublisher.
type Options struct {
	Broker   string
	ClientID string
	// OutboxSize is how many messages are kept while disconnected.
	OutboxSize int
}

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// RealPublisher publishes to an actual MQTT broker and subscribes to the
// command topic. Publish only queues; a sender goroutine owns the broker
// round trips.
type RealPublisher struct {
	client    paho.Client
	onCommand CommandHandler

	mu        sync.Mutex
	outbox    *outbox
	connected bool
	everUp    bool

	// sendMu keeps flushes in order
	sendMu sync.Mutex
	wake   chan struct{}
	done   chan struct{}
	closed sync.Once
}

// NewRealPublisher connects to the broker. An unreachable broker is not an
// error: paho keeps retrying and messages wait in the outbox.
func NewRealPublisher(o Options, onCommand CommandHandler) (*RealPublisher, error) {
	if o.ClientID == "" {
		o.ClientID = "irrigation-controller"
	}
	if o.OutboxSize <= 0 {
		o.OutboxSize = 100
	}

	p := newPublisher(nil, o.OutboxSize, onCommand)

	will, err := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: SystemOffline})
	if err != nil {
		return nil, fmt.Errorf("format will: %w", err)
	}
	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(TopicSystem, string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)

	p.client = paho.NewClient(opts)
	go p.run()
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		p.closed.Do(func() { close(p.done) })
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

func newPublisher(client paho.Client, outboxSize int, onCommand CommandHandler) *RealPublisher {
	return &RealPublisher{
		client:    client,
		onCommand: onCommand,
		outbox:    newOutbox(outboxSize),
		wake:      make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

// run sends queued messages whenever Publish signals, until Close.
func (p *RealPublisher) run() {
	for {
		select {
		case <-p.done:
			return
		case <-p.wake:
			p.flush()
		}
	}
}

// flush sends everything in the outbox while connected. On a send error
// the unsent messages go back in front of anything queued meanwhile.
func (p *RealPublisher) flush() (sent, dropped int) {
	p.sendMu.Lock()
	defer p.sendMu.Unlock()

	p.mu.Lock()
	if !p.connected {
		p.mu.Unlock()
		return 0, 0
	}
	pending, dropped := p.outbox.take()
	p.mu.Unlock()

	for i, msg := range pending {
		if err := p.send(msg); err != nil {
			log.Printf("mqtt: %v, keeping %d messages", err, len(pending)-i)
			p.mu.Lock()
			newer, more := p.outbox.take()
			for _, m := range pending[i:] {
				p.outbox.put(m)
			}
			for _, m := range newer {
				p.outbox.put(m)
			}
			p.outbox.dropped += more
			p.mu.Unlock()
			return sent, dropped
		}
		sent++
	}
	return sent, dropped
}

func (p *RealPublisher) signal() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// onConnect runs on every (re)connection: subscribe, replay the outbox and
// announce the reconnect.
func (p *RealPublisher) onConnect(c paho.Client) {
	if p.onCommand != nil {
		if tok := c.Subscribe(TopicCommand, 1, p.onMessage); tok.WaitTimeout(publishTimeout) && tok.Error() != nil {
			log.Printf("mqtt: subscribe %s: %v", TopicCommand, tok.Error())
		}
	}

	p.mu.Lock()
	p.connected = true
	reconnect := p.everUp
	p.everUp = true
	p.mu.Unlock()

	if sent, dropped := p.flush(); sent > 0 || dropped > 0 {
		log.Printf("mqtt: replayed %d buffered messages (%d dropped)", sent, dropped)
	}

	if reconnect {
		log.Printf("mqtt: reconnected")
		if err := p.PublishSystem(SystemEvent{Timestamp: time.Now(), Event: SystemReconnected}); err != nil {
			log.Printf("mqtt: publish reconnected: %v", err)
		}
		p.flush()
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	log.Printf("mqtt: connection lost: %v", err)
}

func (p *RealPublisher) onMessage(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(msg.Payload())
	if err != nil {
		log.Printf("mqtt: dropping command %q: %v", msg.Payload(), err)
		return
	}
	p.onCommand(cmd)
}

// Publish queues a controller event (QoS 0, not retained).
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(outgoing{topic: TopicEvents, payload: payload})
}

// PublishSystem queues a system lifecycle event (QoS 1).
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.publish(outgoing{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// publish queues msg for the sender goroutine. While disconnected it
// waits in the outbox for the next connect.
func (p *RealPublisher) publish(msg outgoing) error {
	p.mu.Lock()
	p.outbox.put(msg)
	connected := p.connected
	p.mu.Unlock()

	if connected {
		p.signal()
	}
	return nil
}

func (p *RealPublisher) send(msg outgoing) error {
	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", msg.topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Buffered returns the number of messages not yet sent.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outbox.len()
}

// Close stops the sender and disconnects. Queued messages are sent first
// while connected.
func (p *RealPublisher) Close() error {
	p.closed.Do(func() { close(p.done) })
	p.flush()
	p.client.Disconnect(1000)
	return nil
}

package mqtt

import (
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"

	"github.com/sweeney/light-scheduler/internal/logic"
)

// outboxLimit bounds how many messages are held while disconnected.
const outboxLimit = 100

// RealPublisher publishes to an actual MQTT broker. Messages published while
// the connection is down are buffered and replayed on reconnect.
type RealPublisher struct {
	client paho.Client
	prefix string

	mu            sync.Mutex
	pending       *outbox
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the given broker. The broker does
// not need to be reachable yet; paho keeps retrying in the background.
func NewRealPublisher(broker, clientID, prefix string) *RealPublisher {
	p := &RealPublisher{
		prefix:  prefix,
		pending: newOutbox(outboxLimit),
	}

	will, _ := FormatSystemPayload(SystemEvent{
		Timestamp: time.Now(),
		Event:     "LWT",
		Reason:    "connection lost",
	})

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(SystemTopic(prefix), string(will), 1, true).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Warn().Err(err).Msg("mqtt connection lost")
		})

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		log.Warn().Str("broker", broker).Msg("mqtt broker not reachable yet, buffering messages")
	} else if err := token.Error(); err != nil {
		log.Warn().Err(err).Str("broker", broker).Msg("mqtt connect failed, buffering messages")
	}

	return p
}

// Publish sends a light transition event to the MQTT broker.
func (p *RealPublisher) Publish(event logic.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	// QoS 0 (at-most-once), not retained
	return p.send(bufferedMsg{topic: EventsTopic(p.prefix), payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events
	return p.send(bufferedMsg{topic: SystemTopic(p.prefix), payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the connection to the broker is open.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}

// send buffers msg if the connection is down, else publishes it. The
// connection check and the buffering happen under p.mu, which onConnect also
// holds while draining, so a message cannot land in the outbox just after a
// replay and wait there for the next reconnect.
func (p *RealPublisher) send(msg bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.pending.add(msg)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	token := p.client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish to %s: timeout", msg.topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish to %s: %w", msg.topic, err)
	}
	return nil
}

// onConnect replays buffered messages and announces reconnections.
func (p *RealPublisher) onConnect(c paho.Client) {
	p.mu.Lock()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	p.mu.Unlock()

	replayed, dropped := 0, 0
	for {
		p.mu.Lock()
		msgs, d := p.pending.take()
		p.mu.Unlock()
		if len(msgs) == 0 {
			break
		}
		replayed += len(msgs)
		dropped += d
		for _, msg := range msgs {
			c.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
		}
	}

	log.Info().Int("replayed", replayed).Int("dropped", dropped).Bool("reconnect", reconnect).Msg("mqtt connected")

	if reconnect {
		payload, _ := FormatSystemPayload(SystemEvent{Timestamp: time.Now(), Event: "RECONNECTED"})
		c.Publish(SystemTopic(p.prefix), 1, false, payload)
	}
}

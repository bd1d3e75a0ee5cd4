// Package mqttactor is the MQTT transport actor (§4.2). It owns a
// single broker connection and presents two faces to the rest of the
// runtime: a publish sink (any sender of Message) and a subscription
// fan-out (peers register a topic filter plus a sink at build time,
// before Run starts). Reconnection uses a fixed exponential back-off
// with jitter rather than the teacher's autopaho defaults, so the
// connection loop here drives github.com/eclipse/paho.golang/paho
// directly instead of going through autopaho.ConnectionManager.
package mqttactor

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/paho"

	"github.com/thin-edge/tedge-core/internal/actor"
	"github.com/thin-edge/tedge-core/internal/tedgeerr"
)

// Message is an immutable MQTT message: topic, opaque payload bytes,
// QoS, and retain flag (§4.1's Message type).
type Message struct {
	Topic   string
	Payload []byte
	QoS     byte
	Retain  bool
}

// Subscription pairs a topic filter with the sink that receives every
// matching inbound message. Subscriptions are registered at build
// time via Transport.Subscribe and re-sent to the broker on every
// successful (re-)connect.
type Subscription struct {
	Filter string
	Sink   actor.Sender[Message]
}

// Config carries the connection parameters for one broker connection.
type Config struct {
	BrokerURL string // e.g. "tcp://localhost:1883" or "ssl://host:8883"
	ClientID  string
	Username  string
	Password  string
	TLS       *tls.Config // non-nil enables TLS regardless of scheme
	KeepAlive uint16      // seconds, default 60 if zero
	LastWill  *Message    // published by the broker if this client drops unexpectedly
}

const (
	initialBackoff = 1 * time.Second
	backoffFactor  = 2
	maxBackoff     = 60 * time.Second
	jitterFraction = 0.20
)

// nextBackoff applies the bounded exponential policy: initial 1s,
// factor 2, capped at 60s, with jitter of up to ±20% of the computed
// (pre-jitter) delay.
func nextBackoff(attempt int, rng *rand.Rand) time.Duration {
	d := initialBackoff
	for i := 0; i < attempt; i++ {
		d *= backoffFactor
		if d > maxBackoff {
			d = maxBackoff
			break
		}
	}
	jitter := time.Duration(float64(d) * jitterFraction * (2*rng.Float64() - 1))
	d += jitter
	if d < 0 {
		d = 0
	}
	return d
}

// Transport is the MQTT transport actor.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	publish *actor.Mailbox[Message]

	mu   sync.RWMutex
	subs []Subscription

	connected chan struct{} // closed and replaced on each connect; used by AwaitConnection
}

// New creates a transport actor. Call Subscribe for every topic filter
// before Run starts; subscriptions added after Run has connected are
// not retroactively sent until the next reconnect.
func New(cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{
		cfg:       cfg,
		logger:    logger,
		publish:   actor.NewMailbox[Message](256),
		connected: make(chan struct{}),
	}
}

// Name implements actor.Actor.
func (t *Transport) Name() string { return "mqtt-transport" }

// Sender returns the publish sink: any actor may send a Message here
// to have it published once connected. Sends queue in the mailbox
// while disconnected and drain on reconnect.
func (t *Transport) Sender() actor.Sender[Message] { return t.publish.Sender() }

// Subscribe registers a topic filter and sink. Must be called before
// Run, or before the next reconnect for the registration to take
// effect.
func (t *Transport) Subscribe(filter string, sink actor.Sender[Message]) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs = append(t.subs, Subscription{Filter: filter, Sink: sink})
}

// AwaitConnection blocks until the transport has an active broker
// connection or ctx is done.
func (t *Transport) AwaitConnection(ctx context.Context) error {
	t.mu.RLock()
	ch := t.connected
	t.mu.RUnlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run implements actor.Actor: it dials, connects, resubscribes, and
// drains the publish mailbox, reconnecting with bounded exponential
// back-off on every disconnect until ctx is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	attempt := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		client, connack, err := t.dialAndConnect(ctx)
		if err != nil {
			t.logger.Warn("mqtt connect failed", "attempt", attempt, "error", err)
			wait := nextBackoff(attempt, rng)
			attempt++
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
				continue
			}
		}
		attempt = 0
		t.logger.Info("mqtt connected", "broker", t.cfg.BrokerURL, "reason_code", connack.ReasonCode)

		t.resubscribe(ctx, client)
		t.markConnected()

		if err := t.serve(ctx, client); err != nil {
			t.logger.Warn("mqtt connection lost", "error", err)
		}
		t.markDisconnected()
		if ctx.Err() != nil {
			return nil
		}
	}
}

// markConnected closes the current connected channel so waiters wake,
// keeping the same channel until the next disconnect.
func (t *Transport) markConnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	select {
	case <-t.connected:
	default:
		close(t.connected)
	}
}

func (t *Transport) markDisconnected() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = make(chan struct{})
}

func (t *Transport) dialAndConnect(ctx context.Context) (*paho.Client, *paho.Connack, error) {
	u, err := url.Parse(t.cfg.BrokerURL)
	if err != nil {
		return nil, nil, &tedgeerr.MqttError{Op: "parse-broker-url", Reason: err}
	}

	dialer := &net.Dialer{Timeout: 10 * time.Second}
	var conn net.Conn
	if t.cfg.TLS != nil || u.Scheme == "ssl" || u.Scheme == "mqtts" || u.Scheme == "tls" {
		conn, err = tls.DialWithDialer(dialer, "tcp", u.Host, t.cfg.TLS)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", u.Host)
	}
	if err != nil {
		return nil, nil, &tedgeerr.MqttError{Op: "dial", Reason: err}
	}

	router := paho.NewStandardRouter()
	router.RegisterHandler("#", t.dispatch)

	client := paho.NewClient(paho.ClientConfig{
		Conn:   conn,
		Router: router,
		OnServerDisconnect: func(d *paho.Disconnect) {
			t.logger.Warn("mqtt server disconnect", "reason_code", d.ReasonCode)
		},
		OnClientError: func(err error) {
			t.logger.Warn("mqtt client error", "error", err)
		},
	})

	connectPacket := &paho.Connect{
		KeepAlive:  keepAliveOrDefault(t.cfg.KeepAlive),
		ClientID:   t.cfg.ClientID,
		CleanStart: true,
	}
	if t.cfg.Username != "" {
		connectPacket.UsernameFlag = true
		connectPacket.Username = t.cfg.Username
		connectPacket.PasswordFlag = true
		connectPacket.Password = []byte(t.cfg.Password)
	}
	if t.cfg.LastWill != nil {
		connectPacket.WillMessage = &paho.WillMessage{
			Topic:   t.cfg.LastWill.Topic,
			Payload: t.cfg.LastWill.Payload,
			QoS:     t.cfg.LastWill.QoS,
			Retain:  t.cfg.LastWill.Retain,
		}
	}

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	ca, err := client.Connect(connCtx, connectPacket)
	if err != nil {
		conn.Close()
		return nil, nil, &tedgeerr.MqttError{Op: "connect", Reason: err}
	}
	if ca.ReasonCode != 0 {
		conn.Close()
		return nil, nil, &tedgeerr.MqttError{Op: "connect", Reason: fmt.Errorf("broker refused: reason code %d", ca.ReasonCode)}
	}
	return client, ca, nil
}

func keepAliveOrDefault(ka uint16) uint16 {
	if ka == 0 {
		return 60
	}
	return ka
}

// resubscribe sends one SUBSCRIBE packet covering the union of every
// registered filter. Called on every successful connect because a
// fresh session (CleanStart) carries no prior subscriptions.
func (t *Transport) resubscribe(ctx context.Context, client *paho.Client) {
	t.mu.RLock()
	subs := append([]Subscription(nil), t.subs...)
	t.mu.RUnlock()
	if len(subs) == 0 {
		return
	}

	seen := make(map[string]bool)
	opts := make([]paho.SubscribeOptions, 0, len(subs))
	for _, s := range subs {
		if seen[s.Filter] {
			continue
		}
		seen[s.Filter] = true
		opts = append(opts, paho.SubscribeOptions{Topic: s.Filter, QoS: 0})
	}

	subCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if _, err := client.Subscribe(subCtx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		t.logger.Error("mqtt resubscribe failed", "error", err)
	}
}

// dispatch forwards an inbound broker message to every registered sink
// whose filter matches, preserving broker order within one
// subscription by sending synchronously in arrival order.
func (t *Transport) dispatch(p *paho.Publish) {
	msg := Message{Topic: p.Topic, Payload: p.Payload, QoS: p.QoS, Retain: p.Retain}

	t.mu.RLock()
	subs := append([]Subscription(nil), t.subs...)
	t.mu.RUnlock()

	for _, s := range subs {
		if !filterMatches(s.Filter, msg.Topic) {
			continue
		}
		if !s.Sink.TrySend(msg) {
			t.logger.Warn("mqtt subscriber mailbox full, dropping message",
				"filter", s.Filter, "topic", msg.Topic)
		}
	}
}

// serve drains the publish mailbox to the broker until the connection
// fails or ctx is cancelled.
func (t *Transport) serve(ctx context.Context, client *paho.Client) error {
	for {
		select {
		case <-ctx.Done():
			_ = client.Disconnect(&paho.Disconnect{ReasonCode: 0})
			return nil
		case msg, ok := <-t.publish.Recv():
			if !ok {
				return nil
			}
			pubCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			_, err := client.Publish(pubCtx, &paho.Publish{
				Topic:   msg.Topic,
				Payload: msg.Payload,
				QoS:     msg.QoS,
				Retain:  msg.Retain,
			})
			cancel()
			if err != nil {
				return &tedgeerr.MqttError{Op: "publish", Reason: err}
			}
		}
	}
}

// filterMatches reports whether an MQTT topic filter (supporting the
// single-level "+" and multi-level trailing "#" wildcards) matches a
// concrete topic.
func filterMatches(filter, topic string) bool {
	fSegs := strings.Split(filter, "/")
	tSegs := strings.Split(topic, "/")

	for i, f := range fSegs {
		if f == "#" {
			return true
		}
		if i >= len(tSegs) {
			return false
		}
		if f == "+" {
			continue
		}
		if f != tSegs[i] {
			return false
		}
	}
	return len(fSegs) == len(tSegs)
}

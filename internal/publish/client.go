// internal/publish/client.go
package publish

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Publisher sends one message to a topic. Implementations must be safe for
// concurrent use.
type Publisher interface {
	Publish(topic string, retained bool, payload []byte) error
	Close()
}

// ClientOptions configures the MQTT connection.
// Broker: tcp://host:port
type ClientOptions struct {
	Broker         string
	ClientID       string // empty -> "benchlab-<uuid>"
	Username       string
	Password       string
	QoS            byte
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
}

// Client wraps a connected paho client.
type Client struct {
	inner paho.Client
	opts  ClientOptions
}

// Dial connects to the broker. The paho client reconnects on its own after
// the first successful connect.
func Dial(opts ClientOptions) (*Client, error) {
	if opts.ClientID == "" {
		opts.ClientID = "benchlab-" + uuid.NewString()
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}

	p := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetKeepAlive(opts.KeepAlive).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)
	if opts.Username != "" {
		p.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		p.SetPassword(opts.Password)
	}

	c := &Client{inner: paho.NewClient(p), opts: opts}
	tok := c.inner.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout after %s", opts.Broker, opts.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return c, nil
}

func (c *Client) Publish(topic string, retained bool, payload []byte) error {
	tok := c.inner.Publish(topic, c.opts.QoS, retained, payload)
	if !tok.WaitTimeout(c.opts.ConnectTimeout) {
		return fmt.Errorf("mqtt publish %s: timeout", topic)
	}
	return tok.Error()
}

// Close disconnects, allowing in-flight messages 250ms to complete.
func (c *Client) Close() {
	c.inner.Disconnect(250)
}

package mqttclient

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/snarg/scribe/internal/metrics"
	"github.com/snarg/scribe/internal/pipeline"
	"github.com/snarg/scribe/internal/session"
)

// Commander is the subset of the recording controller driven over MQTT.
type Commander interface {
	Start(ctx context.Context) (session.Status, error)
	StopAndTranscribe(ctx context.Context) (*pipeline.Outcome, error)
	Toggle(ctx context.Context) error
	Discard(ctx context.Context) error
}

// Command is a remote control instruction.
type Command string

const (
	CommandStart   Command = "start"
	CommandStop    Command = "stop"
	CommandToggle  Command = "toggle"
	CommandDiscard Command = "discard"
)

// Client subscribes to <prefix>/command and publishes status messages to
// <prefix>/status. It implements pipeline.Notifier.
type Client struct {
	conn      mqtt.Client
	prefix    string
	connected atomic.Bool
	log       zerolog.Logger
	commander Commander

	ctx    context.Context
	cancel context.CancelFunc
}

type Options struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
	Username    string
	Password    string
	Commander   Commander
	Log         zerolog.Logger
}

func Connect(opts Options) (*Client, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		prefix:    strings.TrimSuffix(opts.TopicPrefix, "/"),
		log:       opts.Log.With().Str("component", "mqtt").Logger(),
		commander: opts.Commander,
		ctx:       ctx,
		cancel:    cancel,
	}
	if c.prefix == "" {
		c.prefix = "scribe"
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5*time.Second).
		SetOrderMatters(false).
		SetWill(c.StatusTopic(), string(willPayload()), 1, true).
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
		cancel()
		return nil, err
	}

	return c, nil
}

func (c *Client) CommandTopic() string { return c.prefix + "/command" }
func (c *Client) StatusTopic() string  { return c.prefix + "/status" }

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Str("topic", c.CommandTopic()).Msg("mqtt connected, subscribing")

	token := client.Subscribe(c.CommandTopic(), 1, c.onMessage)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	cmd, ok := ParseCommand(msg.Payload())
	if !ok {
		c.log.Warn().
			Str("topic", msg.Topic()).
			Int("payload_size", len(msg.Payload())).
			Msg("ignoring unknown mqtt command")
		metrics.MQTTCommandsTotal.WithLabelValues("unknown").Inc()
		return
	}
	metrics.MQTTCommandsTotal.WithLabelValues(string(cmd)).Inc()
	if c.commander == nil {
		return
	}
	// Stop runs the whole pipeline; keep the paho router free.
	go func() {
		if err := Dispatch(c.ctx, c.commander, cmd); err != nil {
			c.log.Warn().Err(err).Str("command", string(cmd)).Msg("mqtt command failed")
		}
	}()
}

// Dispatch runs cmd against the commander.
func Dispatch(ctx context.Context, cmdr Commander, cmd Command) error {
	switch cmd {
	case CommandStart:
		_, err := cmdr.Start(ctx)
		return err
	case CommandStop:
		_, err := cmdr.StopAndTranscribe(ctx)
		return err
	case CommandToggle:
		return cmdr.Toggle(ctx)
	case CommandDiscard:
		return cmdr.Discard(ctx)
	}
	return nil
}

// ParseCommand accepts a bare word ("start") or a JSON object
// ({"command":"start"}). Matching is case-insensitive.
func ParseCommand(payload []byte) (Command, bool) {
	raw := strings.TrimSpace(string(payload))
	if strings.HasPrefix(raw, "{") {
		var body struct {
			Command string `json:"command"`
		}
		if err := json.Unmarshal([]byte(raw), &body); err != nil {
			return "", false
		}
		raw = body.Command
	}
	switch cmd := Command(strings.ToLower(strings.TrimSpace(raw))); cmd {
	case CommandStart, CommandStop, CommandToggle, CommandDiscard:
		return cmd, true
	}
	return "", false
}

// Notify publishes m as retained JSON on the status topic. It does not wait
// for the broker.
func (c *Client) Notify(m pipeline.Message) {
	if !c.connected.Load() {
		return
	}
	payload, err := json.Marshal(m)
	if err != nil {
		c.log.Error().Err(err).Msg("encode status message")
		return
	}
	c.conn.Publish(c.StatusTopic(), 1, true, payload)
}

func willPayload() []byte {
	b, _ := json.Marshal(map[string]string{"message": "offline", "level": string(pipeline.LevelError)})
	return b
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) Close() {
	c.log.Info().Msg("disconnecting mqtt client")
	c.cancel()
	c.conn.Disconnect(1000)
}

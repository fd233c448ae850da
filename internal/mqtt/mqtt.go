// Package mqtt publishes discoveries to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/babelia-vision/babelia-go/internal/conf"
	"github.com/babelia-vision/babelia-go/internal/errors"
	"github.com/babelia-vision/babelia-go/internal/logging"
)

const (
	connectTimeout      = 30 * time.Second
	publishTimeout      = 10 * time.Second
	disconnectQuiesceMs = 250
)

// Client is the publishing contract the agent depends on.
type Client interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, payload any) error
	IsConnected() bool
	Disconnect()
}

// client wraps a paho MQTT connection configured for discovery publishing.
type client struct {
	settings *conf.MQTTSettings
	conn     pahomqtt.Client
	logger   *slog.Logger
}

// NewClient creates an MQTT client for the configured broker and topic.
func NewClient(settings *conf.MQTTSettings) Client {
	logger := logging.ForService("mqtt")
	if logger == nil {
		logger = slog.Default().With("service", "mqtt")
	}
	return &client{
		settings: settings,
		logger:   logger,
	}
}

// Connect establishes the broker connection, waiting up to the connect
// timeout or until ctx is cancelled.
func (c *client) Connect(ctx context.Context) error {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(c.settings.Broker)
	opts.SetClientID(fmt.Sprintf("babelia-go-%d", time.Now().UnixNano()))
	if c.settings.Username != "" {
		opts.SetUsername(c.settings.Username)
		opts.SetPassword(c.settings.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		c.logger.Info("connected to MQTT broker", "broker", c.settings.Broker)
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		c.logger.Warn("MQTT connection lost", "error", err)
	})

	c.conn = pahomqtt.NewClient(opts)

	token := c.conn.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.Newf("timeout connecting to MQTT broker %s", c.settings.Broker).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Context("timeout_seconds", connectTimeout.Seconds()).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Context("broker", c.settings.Broker).
			Build()
	}
	if err := ctx.Err(); err != nil {
		c.Disconnect()
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryCancellation).
			Build()
	}

	return nil
}

// Publish marshals the payload as JSON and publishes it to the configured
// topic at QoS 0.
func (c *client) Publish(ctx context.Context, payload any) error {
	if c.conn == nil || !c.conn.IsConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Build()
	}
	if err := ctx.Err(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryCancellation).
			Build()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Build()
	}

	token := c.conn.Publish(c.settings.Topic, 0, c.settings.Retain, data)
	if !token.WaitTimeout(publishTimeout) {
		return errors.Newf("timeout publishing to topic %s", c.settings.Topic).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("timeout_seconds", publishTimeout.Seconds()).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", c.settings.Topic).
			Build()
	}

	c.logger.Debug("published discovery", "topic", c.settings.Topic, "bytes", len(data))
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// Disconnect closes the broker connection.
func (c *client) Disconnect() {
	if c.conn != nil {
		c.conn.Disconnect(disconnectQuiesceMs)
	}
}

// Copyright 2024 Ewout Prangsma
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// Author Ewout Prangsma
//

package mqtt

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/binkynet/wiring/pkg/service"
	"github.com/binkynet/wiring/pkg/soc"
)

// Config of the MQTT bridge.
type Config struct {
	// Address (host:port) of the broker
	BrokerAddress string
	// Client ID used to connect
	ClientID string
	// Prefix of all topics
	TopicPrefix string
}

// LogDestination receives the client once connected, so logs can be
// forwarded to the broker.
type LogDestination interface {
	SetDestination(topic string, client mqttapi.Client)
}

// Bridge publishes pin events as retained state messages and converts
// command messages into output writes.
//
//	<prefix>pin<N>/state    published, ON|OFF
//	<prefix>pin<N>/command  subscribed, ON|OFF
//	<prefix>log             published log lines
type Bridge struct {
	Config
	log     zerolog.Logger
	service service.Service
	logDest LogDestination

	mutex  sync.Mutex
	client mqttapi.Client
}

const (
	publishTimeout = time.Millisecond * 200
)

// New creates a new bridge for the given service.
// logDest is optional.
func New(cfg Config, svc service.Service, logDest LogDestination, log zerolog.Logger) *Bridge {
	if cfg.TopicPrefix != "" {
		cfg.TopicPrefix = strings.TrimSuffix(cfg.TopicPrefix, "/") + "/"
	}
	return &Bridge{
		Config:  cfg,
		log:     log.With().Str("component", "mqtt").Logger(),
		service: svc,
		logDest: logDest,
	}
}

func (b *Bridge) clientOptions() *mqttapi.ClientOptions {
	opts := mqttapi.NewClientOptions().
		AddBroker("tcp://" + b.BrokerAddress).
		SetClientID(b.ClientID)
	opts.SetKeepAlive(2 * time.Second)
	opts.SetPingTimeout(1 * time.Second)
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetDefaultPublishHandler(func(c mqttapi.Client, m mqttapi.Message) {
		// Ignore messages when no subscription match
	})
	opts.SetOnConnectHandler(func(c mqttapi.Client) {
		topic := b.TopicPrefix + "+/command"
		if token := c.Subscribe(topic, 0, b.onMessage); token.Wait() && token.Error() != nil {
			b.log.Error().Err(token.Error()).Msgf("failed to subscribe to '%s'", topic)
			return
		}
		b.log.Debug().Msgf("Subscribed to MQTT topic '%s'", topic)
		if b.logDest != nil {
			b.logDest.SetDestination(b.TopicPrefix+"log", c)
		}
	})
	return opts
}

// Run the bridge until the given context is canceled.
func (b *Bridge) Run(ctx context.Context) error {
	client := mqttapi.NewClient(b.clientOptions())
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return errors.Wrap(token.Error(), "failed to connect to mqtt")
	}
	b.mutex.Lock()
	b.client = client
	b.mutex.Unlock()
	b.log.Info().Str("broker", b.BrokerAddress).Msg("Connected to MQTT")

	cancel := b.service.RegisterEventReceiver(b.publishEvent)
	<-ctx.Done()
	cancel()

	if b.logDest != nil {
		b.logDest.SetDestination("", nil)
	}
	b.mutex.Lock()
	b.client = nil
	b.mutex.Unlock()
	client.Disconnect(250)
	return nil
}

// publishEvent publishes the state of the pin of the given event.
func (b *Bridge) publishEvent(e service.Event) {
	b.mutex.Lock()
	client := b.client
	b.mutex.Unlock()
	if client == nil {
		return
	}
	topic := b.stateTopic(e.Pin)
	payload := formatValue(e.Value)
	retain := true
	token := client.Publish(topic, 0, retain, payload)
	if !token.WaitTimeout(publishTimeout) {
		b.log.Error().Err(token.Error()).
			Str("topic", topic).
			Str("payload", payload).
			Msg("failed to deliver MQTT state in time")
	}
}

// Receive messages
func (b *Bridge) onMessage(client mqttapi.Client, msg mqttapi.Message) {
	if err := b.handleCommand(msg.Topic(), msg.Payload()); err != nil {
		b.log.Warn().Err(err).Str("topic", msg.Topic()).Msg("Invalid command")
	}
}

// handleCommand applies a command message to the service.
func (b *Bridge) handleCommand(topic string, payload []byte) error {
	pin, err := b.parseCommandTopic(topic)
	if err != nil {
		return err
	}
	on, err := parseBool(string(payload))
	if err != nil {
		return err
	}
	value := soc.Low
	if on {
		value = soc.High
	}
	return b.service.SetOutput(pin, value)
}

func (b *Bridge) stateTopic(pin int) string {
	return fmt.Sprintf("%spin%d/state", b.TopicPrefix, pin)
}

// parseCommandTopic returns the pin of a <prefix>pin<N>/command topic.
func (b *Bridge) parseCommandTopic(topic string) (int, error) {
	rest := strings.TrimPrefix(topic, b.TopicPrefix)
	if rest == topic && b.TopicPrefix != "" {
		return 0, errors.Errorf("topic '%s' outside prefix '%s'", topic, b.TopicPrefix)
	}
	if !strings.HasPrefix(rest, "pin") || !strings.HasSuffix(rest, "/command") {
		return 0, errors.Errorf("topic '%s' is not a pin command", topic)
	}
	pin, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(rest, "pin"), "/command"))
	if err != nil {
		return 0, errors.Wrapf(err, "topic '%s' has an invalid pin", topic)
	}
	return pin, nil
}

// Parse a string into a bool
func parseBool(str string) (bool, error) {
	str = strings.ToLower(strings.TrimSpace(str))
	switch str {
	case "1", "t", "true", "on", "yes", "high":
		return true, nil
	case "0", "f", "false", "off", "no", "low":
		return false, nil
	}
	return false, errors.Errorf("invalid bool value '%s'", str)
}

// format a value as string
func formatValue(v soc.Value) string {
	if v == soc.High {
		return "ON"
	}
	return "OFF"
}

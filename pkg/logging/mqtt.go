// Copyright 2018 Ewout Prangsma
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

package logging

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	mqttapi "github.com/eclipse/paho.mqtt.golang"
)

// MQTTWriter forwards log lines to an MQTT topic.
type MQTTWriter interface {
	io.Writer
	// SetDestination sets the topic and client to publish to.
	// An empty topic or nil client stops forwarding.
	SetDestination(topic string, client mqttapi.Client)
}

type mqttLogger struct {
	mutex  sync.Mutex
	queue  chan []byte
	topic  string
	client mqttapi.Client
}

const (
	mqttQueueSize      = 512
	mqttPublishTimeout = time.Millisecond * 200
)

// NewMQTTWriter creates a new MQTT output for logs.
// Lines written before a destination is set are queued; when the queue
// is full the oldest lines are dropped.
// The MQTT sender is closed when the given context is canceled.
func NewMQTTWriter(ctx context.Context) MQTTWriter {
	l := &mqttLogger{
		queue: make(chan []byte, mqttQueueSize),
	}
	go l.run(ctx)
	return l
}

func (l *mqttLogger) Write(p []byte) (n int, err error) {
	if len(p) == 0 {
		return 0, nil
	}
	// The caller may reuse p
	msg := append([]byte(nil), p...)
	for attempt := 0; attempt < 10; attempt++ {
		select {
		case l.queue <- msg:
			return len(p), nil
		default:
			// Queue full; drop the oldest line and try again
			select {
			case <-l.queue:
			default:
			}
		}
	}
	return len(p), nil
}

func (l *mqttLogger) SetDestination(topic string, client mqttapi.Client) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.topic = topic
	l.client = client
}

func (l *mqttLogger) destination() (string, mqttapi.Client) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.topic, l.client
}

type logMsg struct {
	Message string `json:"message"`
}

func (l *mqttLogger) run(ctx context.Context) {
	for {
		topic, client := l.destination()
		if topic == "" || client == nil {
			select {
			case <-time.After(time.Second):
				// Continue
			case <-ctx.Done():
				return
			}
			continue
		}
		select {
		case msg := <-l.queue:
			payload, err := json.Marshal(logMsg{Message: string(msg)})
			if err != nil {
				continue
			}
			client.Publish(topic, 0, false, payload).WaitTimeout(mqttPublishTimeout)
		case <-time.After(time.Second):
			// Check destination again
		case <-ctx.Done():
			return
		}
	}
}

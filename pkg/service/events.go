// Copyright 2022 Ewout Prangsma
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

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/binkynet/wiring/pkg/soc"
)

// EventKind identifies the source of an event.
type EventKind string

const (
	EventOutput    EventKind = "output"
	EventInput     EventKind = "input"
	EventInterrupt EventKind = "interrupt"
)

// Event is published for every change of a configured pin.
type Event struct {
	Kind  EventKind
	Pin   int
	Value soc.Value
	Time  time.Time
}

func (e Event) String() string {
	return fmt.Sprintf("%s pin %d %s", e.Kind, e.Pin, e.Value)
}

// eventService fans out pin events to registered receivers.
// Every receiver gets the events in the order they were published.
type eventService struct {
	log       zerolog.Logger
	mutex     sync.Mutex
	lastID    int
	receivers map[int]*eventReceiver
}

// eventReceiver delivers events to a single callback.
type eventReceiver struct {
	cb     func(Event)
	queue  chan Event
	done   chan struct{}
	closed sync.Once
}

const receiverQueueSize = 64

func newEventService(log zerolog.Logger) *eventService {
	return &eventService{
		log:       log,
		receivers: make(map[int]*eventReceiver),
	}
}

// publish the given event to all receivers.
// Blocks while the queue of a receiver is full.
func (s *eventService) publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	s.log.Debug().Str("event", e.String()).Msg("Publishing event")
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, r := range s.receivers {
		select {
		case r.queue <- e:
		case <-r.done:
		}
	}
}

// register a receiver. Call the returned function to unregister.
func (s *eventService) register(cb func(Event)) context.CancelFunc {
	r := &eventReceiver{
		cb:    cb,
		queue: make(chan Event, receiverQueueSize),
		done:  make(chan struct{}),
	}
	s.mutex.Lock()
	s.lastID++
	id := s.lastID
	s.receivers[id] = r
	s.mutex.Unlock()
	eventReceivers.Inc()
	go r.run()
	return func() {
		r.closed.Do(func() {
			close(r.done)
			s.mutex.Lock()
			delete(s.receivers, id)
			s.mutex.Unlock()
			eventReceivers.Dec()
		})
	}
}

// run delivers queued events until the receiver is cancelled.
func (r *eventReceiver) run() {
	for {
		select {
		case e := <-r.queue:
			select {
			case <-r.done:
				return
			default:
				r.cb(e)
			}
		case <-r.done:
			return
		}
	}
}

//    Copyright 2025 Ewout Prangsma
//
//    Licensed under the Apache License, Version 2.0 (the "License");
//    you may not use this file except in compliance with the License.
//    You may obtain a copy of the License at
//
//        http://www.apache.org/licenses/LICENSE-2.0
//
//    Unless required by applicable law or agreed to in writing, software
//    distributed under the License is distributed on an "AS IS" BASIS,
//    WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//    See the License for the specific language governing permissions and
//    limitations under the License.

package service

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/binkynet/wiring/pkg/soc"
)

// Platform is the pin level API the service drives.
type Platform interface {
	Name() string
	Setup() error
	PinName(pin int) (string, error)
	Pin(pin int) (soc.PinInfo, error)
	PinMode(pin int, mode soc.Mode) error
	DigitalWrite(pin int, value soc.Value) error
	DigitalRead(pin int) (soc.Value, error)
	ISR(pin int, edge soc.Edge) error
	WaitForInterrupt(pin int, timeout time.Duration) (soc.Value, error)
	GC()
	LastGCError() error
	soc.PWM
	// ClaimPin gives the caller exclusive use of a pin
	ClaimPin(pin int) (func(), error)
	// ClaimPWM gives the caller exclusive use of the pwm channel of a pin
	ClaimPWM(pin int) (func(), error)
}

type Service interface {
	// Run the service until the given context is canceled.
	// The platform is setup at the start and released at the end.
	Run(ctx context.Context) error
	// Pins returns the status of all configured pins.
	Pins() []PinStatus
	// SetOutput sets the level of a configured output pin.
	SetOutput(pin int, value soc.Value) error
	// RegisterEventReceiver registers a callback for pin events.
	RegisterEventReceiver(cb func(Event)) context.CancelFunc
}

// Config of the service.
type Config struct {
	// Output pins
	Outputs []int
	// Interval between output toggles; 0 disables blinking
	BlinkInterval time.Duration
	// Input pins
	Inputs []int
	// Interval between input polls
	PollInterval time.Duration
	// Interrupt pins
	Interrupts []int
	// Edge that triggers an interrupt
	Edge soc.Edge
	// Maximum time of a single interrupt wait
	InterruptTimeout time.Duration
	// PWM pin, -1 when unused
	PWMPin      int
	PWMPeriod   time.Duration
	PWMDuty     time.Duration
	PWMInversed bool
}

const (
	defaultPollInterval     = time.Millisecond * 100
	defaultInterruptTimeout = time.Second
)

type Dependencies struct {
	Logger   zerolog.Logger
	Platform Platform
}

// PinStatus describes the last known state of a configured pin.
type PinStatus struct {
	Pin        int       `json:"pin"`
	Name       string    `json:"name"`
	Mode       string    `json:"mode"`
	Value      string    `json:"value"`
	LastChange time.Time `json:"last_change,omitempty"`
}

type pinValue struct {
	value      soc.Value
	lastChange time.Time
}

type service struct {
	Config
	Dependencies

	mutex   sync.Mutex
	running *semaphore.Weighted
	events  *eventService
	values  map[int]pinValue
	claims  []func()
}

// NewService creates a Service instance and returns it.
func NewService(conf Config, deps Dependencies) (Service, error) {
	if deps.Platform == nil {
		return nil, errors.New("platform is required")
	}
	if err := conf.Edge.Validate(); err != nil && len(conf.Interrupts) > 0 {
		return nil, err
	}
	if conf.PollInterval <= 0 {
		conf.PollInterval = defaultPollInterval
	}
	if conf.InterruptTimeout <= 0 {
		conf.InterruptTimeout = defaultInterruptTimeout
	}
	deps.Logger = deps.Logger.With().Str("component", "service").Logger()
	return &service{
		Config:       conf,
		Dependencies: deps,
		running:      semaphore.NewWeighted(1),
		events:       newEventService(deps.Logger),
		values:       make(map[int]pinValue),
	}, nil
}

// Run sets up the platform, configures all pins and then keeps the
// outputs, inputs and interrupts going until the context is canceled.
func (s *service) Run(ctx context.Context) error {
	if !s.running.TryAcquire(1) {
		return errors.New("service is already running")
	}
	defer s.running.Release(1)

	log := s.Logger.With().Str("platform", s.Platform.Name()).Logger()
	if err := s.Platform.Setup(); err != nil {
		return errors.Wrap(err, "Failed to setup platform")
	}
	defer s.Platform.GC()
	defer s.releaseClaims()

	if err := s.configure(); err != nil {
		return err
	}
	log.Info().
		Ints("outputs", s.Outputs).
		Ints("inputs", s.Inputs).
		Ints("interrupts", s.Interrupts).
		Msg("Pins configured")

	g, ctx := errgroup.WithContext(ctx)
	if len(s.Outputs) > 0 && s.BlinkInterval > 0 {
		g.Go(func() error {
			return untilCanceled(ctx, log, "blink outputs", s.BlinkInterval, s.toggleOutputs)
		})
	}
	if len(s.Inputs) > 0 {
		g.Go(func() error {
			return untilCanceled(ctx, log, "poll inputs", s.PollInterval, s.pollInputs)
		})
	}
	for _, pin := range s.Interrupts {
		pin := pin
		g.Go(func() error {
			return untilCanceled(ctx, log, "wait for interrupt on pin "+strconv.Itoa(pin), 0, func() error {
				return s.waitForInterrupt(pin)
			})
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		return nil
	})
	return g.Wait()
}

// claim all configured pins.
// A pin that is configured twice fails with an in use error.
func (s *service) claim() error {
	pins := append(append(append([]int{}, s.Outputs...), s.Inputs...), s.Interrupts...)
	for _, pin := range pins {
		release, err := s.Platform.ClaimPin(pin)
		if err != nil {
			return errors.Wrapf(err, "Failed to claim pin %d", pin)
		}
		s.claims = append(s.claims, release)
	}
	if s.PWMPin >= 0 {
		release, err := s.Platform.ClaimPWM(s.PWMPin)
		if err != nil {
			return errors.Wrapf(err, "Failed to claim pwm pin %d", s.PWMPin)
		}
		s.claims = append(s.claims, release)
	}
	return nil
}

func (s *service) releaseClaims() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	for _, release := range s.claims {
		release()
	}
	s.claims = nil
}

// configure puts all pins in their configured mode.
func (s *service) configure() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if err := s.claim(); err != nil {
		return err
	}
	for _, pin := range s.Outputs {
		if err := s.Platform.PinMode(pin, soc.ModeOutput); err != nil {
			return errors.Wrapf(err, "Failed to configure output pin %d", pin)
		}
		if err := s.Platform.DigitalWrite(pin, soc.Low); err != nil {
			return errors.Wrapf(err, "Failed to reset output pin %d", pin)
		}
		s.values[pin] = pinValue{value: soc.Low, lastChange: time.Now()}
	}
	for _, pin := range s.Inputs {
		if err := s.Platform.PinMode(pin, soc.ModeInput); err != nil {
			return errors.Wrapf(err, "Failed to configure input pin %d", pin)
		}
	}
	for _, pin := range s.Interrupts {
		if err := s.Platform.ISR(pin, s.Edge); err != nil {
			return errors.Wrapf(err, "Failed to arm interrupt on pin %d", pin)
		}
	}
	if s.PWMPin >= 0 {
		if err := s.configurePWM(); err != nil {
			return errors.Wrapf(err, "Failed to configure pwm on pin %d", s.PWMPin)
		}
	}
	return nil
}

func (s *service) configurePWM() error {
	polarity := soc.PolarityNormal
	if s.PWMInversed {
		polarity = soc.PolarityInversed
	}
	if err := s.Platform.SetPWMPeriod(s.PWMPin, s.PWMPeriod); err != nil {
		return err
	}
	if err := s.Platform.SetPWMDuty(s.PWMPin, s.PWMDuty); err != nil {
		return err
	}
	if err := s.Platform.SetPWMPolarity(s.PWMPin, polarity); err != nil {
		return err
	}
	return s.Platform.EnablePWM(s.PWMPin, true)
}

// toggleOutputs inverts the level of all outputs.
func (s *service) toggleOutputs() error {
	for _, pin := range s.Outputs {
		s.mutex.Lock()
		value := soc.High
		if s.values[pin].value == soc.High {
			value = soc.Low
		}
		s.mutex.Unlock()
		if err := s.SetOutput(pin, value); err != nil {
			return err
		}
	}
	return nil
}

// pollInputs reads all inputs and publishes changes.
func (s *service) pollInputs() error {
	for _, pin := range s.Inputs {
		s.mutex.Lock()
		value, err := s.Platform.DigitalRead(pin)
		if err != nil {
			s.mutex.Unlock()
			return errors.Wrapf(err, "Failed to read pin %d", pin)
		}
		last, known := s.values[pin]
		changed := !known || last.value != value
		if changed {
			s.values[pin] = pinValue{value: value, lastChange: time.Now()}
		}
		s.mutex.Unlock()
		if changed {
			inputChangesTotal.WithLabelValues(strconv.Itoa(pin)).Inc()
			s.events.publish(Event{Kind: EventInput, Pin: pin, Value: value})
		}
	}
	return nil
}

// waitForInterrupt performs a single wait on an interrupt pin.
// The platform is not locked while waiting.
func (s *service) waitForInterrupt(pin int) error {
	value, err := s.Platform.WaitForInterrupt(pin, s.InterruptTimeout)
	if soc.IsTimeout(err) {
		return nil
	} else if err != nil {
		return errors.Wrapf(err, "Failed to wait for interrupt on pin %d", pin)
	}
	s.mutex.Lock()
	s.values[pin] = pinValue{value: value, lastChange: time.Now()}
	s.mutex.Unlock()
	interruptsTotal.WithLabelValues(strconv.Itoa(pin)).Inc()
	s.events.publish(Event{Kind: EventInterrupt, Pin: pin, Value: value})
	return nil
}

// SetOutput sets the level of a configured output pin.
func (s *service) SetOutput(pin int, value soc.Value) error {
	s.mutex.Lock()
	if !lo.Contains(s.Outputs, pin) {
		s.mutex.Unlock()
		return errors.Wrapf(soc.WrongModeError, "pin %d is not a configured output", pin)
	}
	if err := s.Platform.DigitalWrite(pin, value); err != nil {
		s.mutex.Unlock()
		return err
	}
	s.values[pin] = pinValue{value: value, lastChange: time.Now()}
	s.mutex.Unlock()

	outputWritesTotal.WithLabelValues(strconv.Itoa(pin)).Inc()
	s.events.publish(Event{Kind: EventOutput, Pin: pin, Value: value})
	return nil
}

// Pins returns the status of all configured pins, sorted by pin.
func (s *service) Pins() []PinStatus {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var result []PinStatus
	add := func(pins []int) {
		for _, pin := range pins {
			status := PinStatus{Pin: pin, Mode: soc.ModeNotSet.String()}
			if name, err := s.Platform.PinName(pin); err == nil {
				status.Name = name
			}
			if info, err := s.Platform.Pin(pin); err == nil {
				status.Mode = info.Mode.String()
			}
			if v, found := s.values[pin]; found {
				status.Value = v.value.String()
				status.LastChange = v.lastChange
			}
			result = append(result, status)
		}
	}
	add(s.Outputs)
	add(s.Inputs)
	add(s.Interrupts)
	sort.Slice(result, func(i, j int) bool { return result[i].Pin < result[j].Pin })
	return result
}

// RegisterEventReceiver registers a callback for pin events.
func (s *service) RegisterEventReceiver(cb func(Event)) context.CancelFunc {
	return s.events.register(cb)
}

//    Copyright 2017 Ewout Prangsma
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

package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	terminate "github.com/pulcy/go-terminate"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/binkynet/wiring/pkg/environment"
	"github.com/binkynet/wiring/pkg/logging"
	"github.com/binkynet/wiring/pkg/platform"
	"github.com/binkynet/wiring/pkg/server"
	"github.com/binkynet/wiring/pkg/service"
	"github.com/binkynet/wiring/pkg/service/mqtt"
	"github.com/binkynet/wiring/pkg/soc"
	"github.com/binkynet/wiring/pkg/ui"
)

const (
	projectName       = "BinkyNet Wiring"
	defaultServerPort = 7130
	defaultSSHPort    = 7122
	autoPlatform      = "auto"
)

var (
	projectVersion = "dev"
	projectBuild   = "dev"
)

func main() {
	var levelFlag string
	var logFile string
	var platformName string
	var socOpts soc.Options
	var gpioMap []int
	var svcConf service.Config
	var edge string
	var serverConf server.Config
	var mqttConf mqtt.Config
	var i2cScan string

	pflag.StringVarP(&levelFlag, "level", "l", "info", "Set log level")
	pflag.StringVar(&logFile, "log-file", "", "Additional file to write logs to")
	pflag.StringVarP(&platformName, "platform", "p", autoPlatform, "Platform to use ("+autoPlatform+"|"+strings.Join(platform.Names(), "|")+")")
	pflag.StringVar(&socOpts.MemDevice, "mem-device", soc.DefaultMemDevice, "Physical memory device")
	pflag.StringVar(&socOpts.GPIORoot, "gpio-root", soc.DefaultGPIORoot, "Root of the sysfs GPIO class (the sysfs platform only supports the default)")
	pflag.StringVar(&socOpts.PWMRoot, "pwm-root", soc.DefaultPWMRoot, "Root of the sysfs PWM class")
	pflag.IntSliceVar(&gpioMap, "gpio-map", nil, "Kernel gpio numbers of the logical pins (sysfs platform only, -1 for unused)")
	pflag.IntSliceVar(&svcConf.Outputs, "output", nil, "Logical pins to drive as output")
	pflag.IntSliceVar(&svcConf.Inputs, "input", nil, "Logical pins to poll as input")
	pflag.IntSliceVar(&svcConf.Interrupts, "interrupt", nil, "Logical pins to watch for edge interrupts")
	pflag.StringVar(&edge, "edge", string(soc.EdgeBoth), "Edge that triggers interrupts (rising|falling|both)")
	pflag.DurationVar(&svcConf.BlinkInterval, "blink", 0, "Toggle outputs at this interval (0 disables)")
	pflag.DurationVar(&svcConf.PollInterval, "poll", time.Millisecond*100, "Interval between input polls")
	pflag.DurationVar(&svcConf.InterruptTimeout, "interrupt-timeout", time.Second, "Maximum time of a single interrupt wait")
	pflag.IntVar(&svcConf.PWMPin, "pwm-pin", -1, "Logical pin to drive with hardware PWM (-1 disables)")
	pflag.DurationVar(&svcConf.PWMPeriod, "pwm-period", time.Millisecond*20, "PWM period")
	pflag.DurationVar(&svcConf.PWMDuty, "pwm-duty", time.Millisecond*10, "PWM duty cycle")
	pflag.BoolVar(&svcConf.PWMInversed, "pwm-inversed", false, "Use inversed PWM polarity")
	pflag.StringVar(&serverConf.Host, "host", "0.0.0.0", "Host address the HTTP server will listen on")
	pflag.IntVar(&serverConf.Port, "port", defaultServerPort, "Port the HTTP server will listen on")
	pflag.IntVar(&serverConf.SSHPort, "ssh-port", defaultSSHPort, "Port the SSH pin status UI will listen on (0 disables)")
	pflag.StringVar(&serverConf.SSHHostKeyPath, "ssh-host-key", ".ssh/id_ed25519", "Path of the SSH host key (created when missing)")
	pflag.StringVar(&mqttConf.BrokerAddress, "mqtt-broker", "", "Address (host:port) of the MQTT broker (empty disables)")
	pflag.StringVar(&mqttConf.TopicPrefix, "mqtt-topic", "wiring/", "Prefix of all MQTT topics")
	pflag.StringVar(&i2cScan, "i2c-scan", "", "Log the addresses of devices found on this i2c adapter (e.g. /dev/i2c-1) at startup")
	pflag.Parse()

	logger, logOutput, err := logging.New(logging.Config{Level: levelFlag, File: logFile})
	if err != nil {
		Exitf("Failed to initialize logging: %v\n", err)
	}

	// Prepare to shutdown in a controlled manor
	ctx, cancel := context.WithCancel(context.Background())
	t := terminate.NewTerminator(func(template string, args ...interface{}) {
		logger.Info().Msgf(template, args...)
	}, cancel)
	go t.ListenSignals()

	if platformName == autoPlatform {
		platformName = environment.AutoDetectPlatform(logger)
		logger.Info().Str("platform", platformName).Msg("Detected platform")
	}
	pf, err := platform.New(platform.Config{
		Name:    platformName,
		SoC:     socOpts,
		GPIOMap: gpioMap,
	}, logger)
	if err != nil {
		Exitf("Failed to initialize platform '%s': %v\n", platformName, err)
	}

	if i2cScan != "" {
		addresses, err := pf.I2CBus(i2cScan).DetectSlaveAddresses(ctx)
		if err != nil {
			logger.Warn().Err(err).Str("bus", i2cScan).Msg("Failed to scan i2c bus")
		} else {
			logger.Info().Str("bus", i2cScan).Hex("addresses", addresses).Msg("Scanned i2c bus")
		}
	}

	if svcConf.Edge, err = soc.ParseEdge(edge); err != nil {
		Exitf("Invalid edge '%s': %v\n", edge, err)
	}
	svc, err := service.NewService(svcConf, service.Dependencies{
		Logger:   logger,
		Platform: pf,
	})
	if err != nil {
		Exitf("Failed to initialize Service: %v\n", err)
	}

	httpServer, err := server.New(serverConf, logger, svc, ui.New(svc))
	if err != nil {
		Exitf("Failed to initialize Server: %v\n", err)
	}

	var bridge *mqtt.Bridge
	if mqttConf.BrokerAddress != "" {
		hostname, _ := os.Hostname()
		mqttConf.ClientID = fmt.Sprintf("wiring-%s-%d", hostname, os.Getpid())
		mqttLog := logging.NewMQTTWriter(ctx)
		logOutput.Add(mqttLog)
		bridge = mqtt.New(mqttConf, svc, mqttLog, logger)
	}

	fmt.Printf("Starting %s (version %s build %s) on %s\n", projectName, projectVersion, projectBuild, pf.Name())
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return svc.Run(ctx) })
	g.Go(func() error { return httpServer.Run(ctx) })
	if bridge != nil {
		g.Go(func() error { return bridge.Run(ctx) })
	}
	if err := g.Wait(); err != nil {
		Exitf("Service run failed: %v\n", err)
	}
}

// Print the given error message and exit with code 1
func Exitf(message string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, message, args...)
	os.Exit(1)
}

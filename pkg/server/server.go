// Copyright 2023 Ewout Prangsma
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

package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/ssh"
	"github.com/charmbracelet/wish"
	"github.com/charmbracelet/wish/activeterm"
	"github.com/charmbracelet/wish/bubbletea"
	"github.com/charmbracelet/wish/logging"
	humanize "github.com/dustin/go-humanize"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/binkynet/wiring/pkg/service"
	"github.com/binkynet/wiring/pkg/soc"
)

// Config for the HTTP server.
type Config struct {
	// Host interface to listen on
	Host string
	// Port to listen on for HTTP requests
	Port int
	// Port to listen on for SSH sessions, 0 disables
	SSHPort int
	// Path of the SSH host key, created when missing
	SSHHostKeyPath string
}

const defaultSSHHostKeyPath = ".ssh/id_ed25519"

// Server runs the HTTP server for the service.
type Server struct {
	Config
	log     zerolog.Logger
	service Service
	ui      UI
}

// Service is the part of the GPIO service exposed over HTTP.
type Service interface {
	Pins() []service.PinStatus
	SetOutput(pin int, value soc.Value) error
}

// UI creates the terminal UI of an ssh session.
type UI interface {
	// Handler is the function Bubble Tea uses to create the model for a
	// new ssh session.
	Handler(s ssh.Session) (tea.Model, []tea.ProgramOption)
}

// New configures a new Server.
// The ui is only served when an SSH port is configured.
func New(cfg Config, log zerolog.Logger, svc Service, ui UI) (*Server, error) {
	if cfg.SSHPort > 0 && ui == nil {
		return nil, errors.New("ui is required when serving ssh")
	}
	if cfg.SSHHostKeyPath == "" {
		cfg.SSHHostKeyPath = defaultSSHHostKeyPath
	}
	return &Server{
		Config:  cfg,
		log:     log.With().Str("component", "server").Logger(),
		service: svc,
		ui:      ui,
	}, nil
}

// newSSHServer prepares the ssh server that serves the ui.
func (s *Server) newSSHServer(addr string) (*ssh.Server, error) {
	sshServer, err := wish.NewServer(
		wish.WithAddress(addr),
		// Creates an ED25519 key pair when it does not exist yet
		wish.WithHostKeyPath(s.SSHHostKeyPath),
		// The last item in the chain is the first to be called.
		wish.WithMiddleware(
			bubbletea.Middleware(s.ui.Handler),
			activeterm.Middleware(),
			logging.Middleware(),
		),
	)
	if err != nil {
		return nil, errors.Wrap(err, "could not create SSH server")
	}
	return sshServer, nil
}

// Run the server until the given context is canceled.
func (s *Server) Run(ctx context.Context) error {
	log := s.log
	httpAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
	httpLis, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return errors.Wrapf(err, "failed to listen on address %s", httpAddr)
	}
	httpSrv := http.Server{
		Handler: s.router(),
	}

	var sshServer *ssh.Server
	var sshLis net.Listener
	sshAddr := net.JoinHostPort(s.Host, strconv.Itoa(s.SSHPort))
	if s.SSHPort > 0 {
		if sshServer, err = s.newSSHServer(sshAddr); err != nil {
			httpLis.Close()
			return err
		}
		if sshLis, err = net.Listen("tcp", sshAddr); err != nil {
			httpLis.Close()
			return errors.Wrapf(err, "failed to listen on address %s", sshAddr)
		}
	}

	log.Debug().Str("address", httpAddr).Msg("Serving HTTP")
	serveErr := make(chan error, 2)
	go func() {
		if err := httpSrv.Serve(httpLis); err != nil && err != http.ErrServerClosed {
			serveErr <- errors.Wrap(err, "failed to serve HTTP server")
		}
		log.Debug().Str("address", httpAddr).Msg("Done Serving HTTP")
	}()
	if sshServer != nil {
		log.Debug().Str("address", sshAddr).Msg("Serving SSH")
		go func() {
			if err := sshServer.Serve(sshLis); err != nil && err != ssh.ErrServerClosed {
				serveErr <- errors.Wrap(err, "failed to serve SSH server")
			}
			log.Debug().Str("address", sshAddr).Msg("Done Serving SSH")
		}()
	}

	var result error
	select {
	case <-ctx.Done():
	case result = <-serveErr:
	}

	log.Info().Msg("Closing servers")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second*5)
	defer cancel()
	if sshServer != nil {
		if err := sshServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to shutdown SSH server")
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil && result == nil {
		result = err
	}
	return result
}

func (s *Server) router() *echo.Echo {
	r := echo.New()
	r.HideBanner = true
	r.HidePort = true
	r.GET("/health", healthHandler)
	r.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	r.GET("/pins", s.pinsHandler)
	r.PUT("/pins/:pin", s.setPinHandler)
	r.GET("/debug/pprof/*", echo.WrapHandler(http.HandlerFunc(pprof.Index)))
	return r
}

func healthHandler(c echo.Context) error {
	return c.String(http.StatusOK, "OK")
}

type pinResponse struct {
	service.PinStatus
	// Human readable time since the last change
	Since string `json:"since,omitempty"`
}

func (s *Server) pinsHandler(c echo.Context) error {
	pins := s.service.Pins()
	result := make([]pinResponse, 0, len(pins))
	for _, p := range pins {
		resp := pinResponse{PinStatus: p}
		if !p.LastChange.IsZero() {
			resp.Since = humanize.Time(p.LastChange)
		}
		result = append(result, resp)
	}
	return c.JSON(http.StatusOK, result)
}

type setPinRequest struct {
	Value string `json:"value"`
}

func (s *Server) setPinHandler(c echo.Context) error {
	pin, err := strconv.Atoi(c.Param("pin"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid pin")
	}
	var req setPinRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	value, err := parseValue(req.Value)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := s.service.SetOutput(pin, value); err != nil {
		switch {
		case soc.IsWrongMode(err), soc.IsInvalidPin(err), soc.IsUnsupportedPin(err):
			return echo.NewHTTPError(http.StatusConflict, err.Error())
		default:
			s.log.Warn().Err(err).Int("pin", pin).Msg("SetOutput failed")
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.NoContent(http.StatusNoContent)
}

func parseValue(s string) (soc.Value, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "high", "on", "true":
		return soc.High, nil
	case "0", "low", "off", "false":
		return soc.Low, nil
	default:
		return soc.Low, errors.Errorf("invalid value '%s'", s)
	}
}

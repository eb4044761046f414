// Copyright 2025 Ewout Prangsma
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
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/ssh"
	humanize "github.com/dustin/go-humanize"

	"github.com/binkynet/wiring/pkg/service"
)

// PinSource provides the status of all configured pins.
type PinSource interface {
	Pins() []service.PinStatus
}

// UI serves a pin status screen to every ssh session.
type UI struct {
	source PinSource
}

// New creates a UI for the given source.
func New(source PinSource) *UI {
	return &UI{source: source}
}

// Handler creates the model for a new ssh session.
func (u *UI) Handler(s ssh.Session) (tea.Model, []tea.ProgramOption) {
	pty, _, _ := s.Pty()
	return NewRoot(pty.Term, u.source), []tea.ProgramOption{tea.WithAltScreen()}
}

const reloadInterval = time.Second

var (
	titleStyle  = lipgloss.NewStyle().Bold(true)
	columnStyle = lipgloss.NewStyle().Faint(true)
	highStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
)

// Root lists the configured pins and reloads them periodically.
type Root struct {
	term     string
	width    int
	height   int
	source   PinSource
	pins     []service.PinStatus
	viewPort viewport.Model
}

var _ tea.Model = Root{}

// NewRoot creates a model showing the pins of the given source.
func NewRoot(term string, source PinSource) Root {
	r := Root{
		term:     term,
		source:   source,
		pins:     source.Pins(),
		viewPort: viewport.New(80, 20),
	}
	r.viewPort.SetContent(r.pinsView())
	return r
}

// Init starts reloading the pins.
func (r Root) Init() tea.Cmd {
	return doReloadPins(r.source)
}

// Update handles window changes, keys and reloaded pins.
func (r Root) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case pinsMsg:
		r.pins = msg
		r.viewPort.SetContent(r.pinsView())
		return r, doReloadPins(r.source)
	case tea.WindowSizeMsg:
		r.height = msg.Height
		r.width = msg.Width
		r.viewPort.Width = msg.Width
		r.viewPort.Height = max(msg.Height-lipgloss.Height(r.headerView())-lipgloss.Height(footer), 1)
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return r, tea.Quit
		case "r":
			r.pins = r.source.Pins()
			r.viewPort.SetContent(r.pinsView())
		}
	}

	// Handle keyboard and mouse events in the viewport
	var cmd tea.Cmd
	r.viewPort, cmd = r.viewPort.Update(msg)
	cmds = append(cmds, cmd)

	return r, tea.Batch(cmds...)
}

const footer = "r - Reload   q - Disconnect\n"

// View renders the header, the pins and the key help.
func (r Root) View() string {
	return r.headerView() + r.viewPort.View() + "\n" + footer
}

func (r Root) headerView() string {
	return lipgloss.JoinHorizontal(lipgloss.Left,
		titleStyle.Render("BinkyNet Wiring"),
		fmt.Sprintf("  %d pins  %s", len(r.pins), r.term),
	) + "\n" + columnStyle.Render(fmt.Sprintf("%4s  %-14s %-10s %-6s %s", "PIN", "NAME", "MODE", "VALUE", "CHANGED")) + "\n"
}

func (r Root) pinsView() string {
	if len(r.pins) == 0 {
		return "No pins configured\n"
	}
	var sb strings.Builder
	for _, p := range r.pins {
		since := ""
		if !p.LastChange.IsZero() {
			since = humanize.Time(p.LastChange)
		}
		value := fmt.Sprintf("%-6s", p.Value)
		if p.Value == "HIGH" {
			value = highStyle.Render(value)
		}
		fmt.Fprintf(&sb, "%4d  %-14s %-10s %s %s\n", p.Pin, p.Name, p.Mode, value, since)
	}
	return sb.String()
}

type pinsMsg []service.PinStatus

func doReloadPins(source PinSource) tea.Cmd {
	return tea.Tick(reloadInterval, func(t time.Time) tea.Msg {
		return pinsMsg(source.Pins())
	})
}

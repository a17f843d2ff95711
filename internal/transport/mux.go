package transport

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

var ErrNoAdapter = errors.New("transport: no adapter for channel")

type route struct {
	prefix  string
	adapter Adapter
}

// Mux fans several adapters into one Sender and one update stream.
//
// Channel ids carrying a registered prefix (e.g. "discord:") go to that
// adapter; everything else goes to the fallback adapter.
type Mux struct {
	mu       sync.RWMutex
	routes   []route
	fallback Adapter
}

func NewMux() *Mux { return &Mux{} }

func (m *Mux) Name() string { return "mux" }

// Handle registers an adapter for ids starting with prefix.
// An empty prefix sets the fallback.
func (m *Mux) Handle(prefix string, a Adapter) {
	if a == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prefix == "" {
		m.fallback = a
		return
	}
	m.routes = append(m.routes, route{prefix: prefix, adapter: a})
}

func (m *Mux) adapters() []Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Adapter, 0, len(m.routes)+1)
	if m.fallback != nil {
		out = append(out, m.fallback)
	}
	for _, r := range m.routes {
		out = append(out, r.adapter)
	}
	return out
}

func (m *Mux) resolve(channelID string) Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.routes {
		if strings.HasPrefix(channelID, r.prefix) {
			return r.adapter
		}
	}
	return m.fallback
}

func (m *Mux) SendText(ctx context.Context, channelID, text string) error {
	a := m.resolve(strings.TrimSpace(channelID))
	if a == nil {
		return fmt.Errorf("%w: %q", ErrNoAdapter, channelID)
	}
	return a.SendText(ctx, channelID, text)
}

// Start starts every adapter concurrently. All adapters share out.
// Adapters keep ctx for their lifetime, so no derived group context is used.
func (m *Mux) Start(ctx context.Context, out chan<- Update) error {
	var g errgroup.Group
	for _, a := range m.adapters() {
		g.Go(func() error {
			if err := a.Start(ctx, out); err != nil {
				return fmt.Errorf("%s start: %w", a.Name(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

func (m *Mux) Stop(ctx context.Context) error {
	var errs []error
	for _, a := range m.adapters() {
		if err := a.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s stop: %w", a.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// UpdateMenuCommands forwards to every adapter that supports command menus.
func (m *Mux) UpdateMenuCommands(ctx context.Context, cmds []BotCommand) error {
	var errs []error
	for _, a := range m.adapters() {
		if mu, ok := a.(CommandMenuUpdater); ok {
			if err := mu.UpdateMenuCommands(ctx, cmds); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

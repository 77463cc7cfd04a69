// Package monitor owns the navigation lifecycle: it watches tab load events,
// applies the URL pre-filter, and injects the page classifier at most once
// per (tab, URL) pair.
package monitor

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/cartsignal/checkout-agent/internal/detect"
)

// EventKind discriminates tab lifecycle events.
type EventKind int

const (
	// TabUpdated fires on any load-state change of a tab.
	TabUpdated EventKind = iota
	// TabRemoved fires when a tab is closed.
	TabRemoved
)

// TabEvent is a browser tab lifecycle event as seen by the monitor.
type TabEvent struct {
	Kind     EventKind
	TabID    int
	URL      string
	Complete bool // load finished
}

// Host is the injection capability the monitor drives. Implementations must
// scope Inject to the tab's top-level frame.
type Host interface {
	Inject(ctx context.Context, tabID int, url string) error
	SetBadge(tabID int)
}

// Monitor tracks per-(tab, URL) injection records. All state is confined to
// the single goroutine feeding events in, so no locking is needed.
type Monitor struct {
	log     *zap.Logger
	host    Host
	records map[string]struct{}
}

func New(log *zap.Logger, host Host) *Monitor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Monitor{
		log:     log,
		host:    host,
		records: make(map[string]struct{}),
	}
}

func key(tabID int, url string) string {
	return fmt.Sprintf("%d@%s", tabID, url)
}

// Run consumes tab events until the channel closes or ctx is done.
func (m *Monitor) Run(ctx context.Context, events <-chan TabEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			switch ev.Kind {
			case TabUpdated:
				m.HandleTabUpdated(ctx, ev)
			case TabRemoved:
				m.HandleTabRemoved(ev.TabID)
			}
		}
	}
}

// HandleTabUpdated applies the pre-filter and injects on the first eligible
// completion of a (tab, URL) pair. Repeat completions for the same pair are
// no-ops, as are events for incomplete loads or unresolved URLs. It reports
// whether an injection was attempted.
func (m *Monitor) HandleTabUpdated(ctx context.Context, ev TabEvent) bool {
	if !ev.Complete || ev.URL == "" {
		return false
	}
	if !detect.Eligible(ev.URL) {
		return false
	}

	k := key(ev.TabID, ev.URL)
	if _, seen := m.records[k]; seen {
		return false
	}
	// Recorded before the attempt: a failed injection still consumes the
	// pair's single attempt.
	m.records[k] = struct{}{}

	if err := m.host.Inject(ctx, ev.TabID, ev.URL); err != nil {
		// Restricted pages and permission denials land here; never fatal.
		m.log.Warn("injection failed",
			zap.Int("tab", ev.TabID),
			zap.String("url", ev.URL),
			zap.Error(err))
		return true
	}

	m.host.SetBadge(ev.TabID)
	m.log.Debug("classifier injected", zap.Int("tab", ev.TabID), zap.String("url", ev.URL))
	return true
}

// HandleTabRemoved drops the closed tab's records only; other tabs keep
// their de-duplication state.
func (m *Monitor) HandleTabRemoved(tabID int) {
	prefix := fmt.Sprintf("%d@", tabID)
	for k := range m.records {
		if strings.HasPrefix(k, prefix) {
			delete(m.records, k)
		}
	}
}

// Tracked reports whether an injection attempt has been recorded for the
// pair.
func (m *Monitor) Tracked(tabID int, url string) bool {
	_, ok := m.records[key(tabID, url)]
	return ok
}

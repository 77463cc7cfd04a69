// Package browser realizes the injection-host capability over a live Chrome
// via the DevTools protocol: it surfaces tab lifecycle events to the
// navigation monitor and classifies pages on demand.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/cartsignal/checkout-agent/internal/classify"
	"github.com/cartsignal/checkout-agent/internal/models"
	"github.com/cartsignal/checkout-agent/internal/monitor"
	"github.com/cartsignal/checkout-agent/internal/overlay"
)

// Config holds the browser connection settings.
type Config struct {
	// DebuggerURL attaches to a running Chrome; empty launches one.
	DebuggerURL         string
	Headless            bool
	NavigationTimeoutMs int
}

func (c Config) navigationTimeout() time.Duration {
	if c.NavigationTimeoutMs == 0 {
		return 30 * time.Second
	}
	return time.Duration(c.NavigationTimeoutMs) * time.Millisecond
}

// Notifier receives notification messages from classified pages. The relay
// satisfies this.
type Notifier interface {
	Handle(ctx context.Context, msg models.Message, sender *models.Sender, respond func(models.Result)) bool
}

type tabRecord struct {
	id         int
	session    string
	page       *rod.Page
	classifier *classify.Page
}

// Host owns the Chrome connection and the tab registry.
type Host struct {
	log      *zap.Logger
	cfg      Config
	notifier Notifier

	mu        sync.Mutex
	browser   *rod.Browser
	tabs      map[proto.TargetTargetID]*tabRecord
	nextTabID int

	events chan monitor.TabEvent
}

func NewHost(log *zap.Logger, cfg Config, notifier Notifier) *Host {
	if log == nil {
		log = zap.NewNop()
	}
	return &Host{
		log:      log,
		cfg:      cfg,
		notifier: notifier,
		tabs:     make(map[proto.TargetTargetID]*tabRecord),
		events:   make(chan monitor.TabEvent, 64),
	}
}

// TabEvents is the stream the navigation monitor consumes.
func (h *Host) TabEvents() <-chan monitor.TabEvent {
	return h.events
}

// Start connects to an existing Chrome or launches one, adopts the pages
// already open, and follows targets as they come and go. It returns once the
// watch goroutines are running.
func (h *Host) Start(ctx context.Context) error {
	controlURL := h.cfg.DebuggerURL
	if controlURL == "" {
		url, err := launcher.New().Headless(h.cfg.Headless).Launch()
		if err != nil {
			return fmt.Errorf("launch chrome: %w", err)
		}
		controlURL = url
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("connect to chrome: %w", err)
	}
	h.mu.Lock()
	h.browser = browser
	h.mu.Unlock()

	pages, err := browser.Pages()
	if err != nil {
		return fmt.Errorf("list pages: %w", err)
	}
	for _, page := range pages {
		h.adoptPage(ctx, page)
	}

	waitTargets := browser.EachEvent(
		func(ev *proto.TargetTargetCreated) {
			if ev.TargetInfo.Type != "page" {
				return
			}
			page, err := browser.PageFromTarget(ev.TargetInfo.TargetID)
			if err != nil {
				h.log.Warn("attach to new target failed",
					zap.String("target", string(ev.TargetInfo.TargetID)), zap.Error(err))
				return
			}
			h.adoptPage(ctx, page)
		},
		func(ev *proto.TargetTargetDestroyed) {
			h.dropTarget(ev.TargetID)
		},
	)
	go waitTargets()
	return nil
}

// adoptPage registers a tab and starts its navigation watcher.
func (h *Host) adoptPage(ctx context.Context, page *rod.Page) {
	h.mu.Lock()
	if _, known := h.tabs[page.TargetID]; known {
		h.mu.Unlock()
		return
	}
	h.nextTabID++
	rec := &tabRecord{
		id:         h.nextTabID,
		session:    uuid.NewString(),
		page:       page,
		classifier: classify.NewPage(h.log),
	}
	h.tabs[page.TargetID] = rec
	h.mu.Unlock()

	h.log.Debug("tab adopted", zap.Int("tab", rec.id), zap.String("session", rec.session))

	waitNav := page.Context(ctx).EachEvent(
		func(ev *proto.PageFrameNavigated) {
			if ev.Frame.ParentID != "" {
				return // top-level frame only
			}
			// A fresh document means a fresh page instance for the
			// idempotency guard.
			h.mu.Lock()
			rec.classifier = classify.NewPage(h.log)
			h.mu.Unlock()
		},
		func(ev *proto.PageLoadEventFired) {
			info, err := page.Info()
			if err != nil {
				h.log.Warn("tab info failed", zap.Int("tab", rec.id), zap.Error(err))
				return
			}
			h.emit(monitor.TabEvent{
				Kind:     monitor.TabUpdated,
				TabID:    rec.id,
				URL:      info.URL,
				Complete: true,
			})
		},
	)
	go waitNav()
}

func (h *Host) dropTarget(targetID proto.TargetTargetID) {
	h.mu.Lock()
	rec, ok := h.tabs[targetID]
	if ok {
		delete(h.tabs, targetID)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	h.emit(monitor.TabEvent{Kind: monitor.TabRemoved, TabID: rec.id})
}

// emit never blocks the protocol goroutines; a full queue drops the event.
func (h *Host) emit(ev monitor.TabEvent) {
	select {
	case h.events <- ev:
	default:
		h.log.Warn("tab event queue full, dropping", zap.Int("tab", ev.TabID))
	}
}

func (h *Host) tabByID(tabID int) (*tabRecord, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, rec := range h.tabs {
		if rec.id == tabID {
			return rec, true
		}
	}
	return nil, false
}

// Inject classifies the top-level frame of the tab: snapshot URL, title and
// rendered HTML, run the page classifier, then execute its commands. The
// notification is best-effort; its asynchronous result is only logged.
func (h *Host) Inject(ctx context.Context, tabID int, url string) error {
	rec, ok := h.tabByID(tabID)
	if !ok {
		return errors.New("unknown tab")
	}

	page := rec.page.Context(ctx).Timeout(h.cfg.navigationTimeout())
	info, err := page.Info()
	if err != nil {
		return fmt.Errorf("page info: %w", err)
	}
	html, err := page.HTML()
	if err != nil {
		return fmt.Errorf("page snapshot: %w", err)
	}

	h.mu.Lock()
	classifier := rec.classifier
	h.mu.Unlock()

	out := classifier.Run(classify.PageInfo{
		URL:   info.URL,
		Title: info.Title,
		HTML:  html,
	})
	if !out.Detected {
		return nil
	}

	if out.Notify != nil && h.notifier != nil {
		sender := &models.Sender{TabID: tabID, URL: info.URL, Title: info.Title}
		handled := h.notifier.Handle(ctx, *out.Notify, sender, func(res models.Result) {
			if res.OK {
				h.log.Info("detection delivered", zap.Int("tab", tabID), zap.Int("status", res.Status))
				return
			}
			h.log.Warn("detection not delivered",
				zap.Int("tab", tabID), zap.Int("status", res.Status), zap.String("error", res.Error))
		})
		if !handled {
			h.log.Debug("no receiver for notification", zap.Int("tab", tabID))
		}
	}

	if out.MountOverlay {
		if _, err := page.Evaluate(&rod.EvalOptions{JS: overlay.Script(), ByValue: true}); err != nil {
			// Overlay is an affordance, not a requirement.
			h.log.Warn("overlay mount failed", zap.Int("tab", tabID), zap.Error(err))
		}
	}
	return nil
}

// SetBadge marks the tab as actively classified. Without an extension badge
// surface, the marker is a root attribute plus an operator log line.
func (h *Host) SetBadge(tabID int) {
	rec, ok := h.tabByID(tabID)
	if !ok {
		return
	}
	_, err := rec.page.Evaluate(&rod.EvalOptions{
		JS:      `() => { document.documentElement.setAttribute("data-checkout-agent", "on"); return true; }`,
		ByValue: true,
	})
	if err != nil {
		h.log.Debug("badge marker failed", zap.Int("tab", tabID), zap.Error(err))
		return
	}
	h.log.Info("classification active", zap.Int("tab", tabID))
}

// Close shuts the browser connection down.
func (h *Host) Close() error {
	h.mu.Lock()
	browser := h.browser
	h.browser = nil
	h.mu.Unlock()
	if browser == nil {
		return nil
	}
	return browser.Close()
}

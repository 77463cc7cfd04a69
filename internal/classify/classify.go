// Package classify implements the per-page checkout decision. A Page instance
// corresponds to one injected page; it decides at most once, collects
// evidence, and emits the commands (notify, mount overlay) for the injection
// host to execute.
package classify

import (
	"go.uber.org/zap"

	"github.com/cartsignal/checkout-agent/internal/detect"
	"github.com/cartsignal/checkout-agent/internal/evidence"
	"github.com/cartsignal/checkout-agent/internal/models"
)

// PageInfo is the snapshot a classification runs against.
type PageInfo struct {
	URL   string
	Title string
	HTML  string
}

// Outcome is the result of one classification run plus the side-effect
// commands that follow a positive decision.
type Outcome struct {
	Ran      bool // false when the idempotency guard suppressed the run
	Detected bool
	URLMatch bool
	DOMMatch bool
	Signals  models.Signals

	// Notify is non-nil exactly when Detected; delivery is best-effort and
	// the caller may drop it if no relay is listening.
	Notify *models.Message
	// MountOverlay asks the host to evaluate the overlay script in the page.
	MountOverlay bool
}

// Page holds the page-scoped guard flag. One instance per injected page.
type Page struct {
	log  *zap.Logger
	done bool
}

func NewPage(log *zap.Logger) *Page {
	if log == nil {
		log = zap.NewNop()
	}
	return &Page{log: log}
}

// Run classifies the page. The second and later calls on the same Page are
// no-ops: evidence is not re-collected and no commands are emitted.
func (p *Page) Run(info PageInfo) Outcome {
	if p.done {
		return Outcome{}
	}
	p.done = true

	urlMatch := detect.URLMatch(info.URL)

	// Evidence is always collected; only the decision applies the
	// URL-suppresses-DOM rule. The bundle rides along verbatim either way.
	sig := evidence.Collect(info.HTML)
	domMatch := !urlMatch && (len(sig.TextMentions) > 0 || len(sig.ButtonMentions) > 0)

	out := Outcome{
		Ran:      true,
		Detected: urlMatch || domMatch,
		URLMatch: urlMatch,
		DOMMatch: domMatch,
		Signals:  sig,
	}
	if !out.Detected {
		return out
	}

	out.Notify = &models.Message{
		Type:    models.EventCheckoutDetected,
		URL:     info.URL,
		Title:   info.Title,
		Signals: sig,
	}
	out.MountOverlay = true

	p.log.Info("checkout page detected",
		zap.String("url", info.URL),
		zap.Bool("url_match", urlMatch),
		zap.Bool("dom_match", domMatch),
		zap.Int("forms", sig.FormsCount))
	return out
}

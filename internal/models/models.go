package models

// EventCheckoutDetected tags notification messages the relay accepts.
const EventCheckoutDetected = "checkout_detected"

// SourceContent marks payloads originating from an injected page classifier.
const SourceContent = "content"

// Signals is the evidence bundle backing a positive classification.
type Signals struct {
	TextMentions   []string `json:"textMentions"`
	ButtonMentions []string `json:"buttonMentions"` // capped at 10
	FormsCount     int      `json:"formsCount"`
}

// Empty reports whether no DOM signal was collected.
func (s Signals) Empty() bool {
	return len(s.TextMentions) == 0 && len(s.ButtonMentions) == 0 && s.FormsCount == 0
}

// Message is the notification a page classifier sends to the relay.
type Message struct {
	Type    string  `json:"type"`
	URL     string  `json:"url"`
	Title   string  `json:"title"`
	Signals Signals `json:"signals"`
}

// Sender carries the tab context available to the relay when a message arrives.
type Sender struct {
	TabID int
	URL   string
	Title string
}

// Payload is the enriched event POSTed to the collector endpoint.
type Payload struct {
	URL        string  `json:"url"`
	Title      string  `json:"title"`
	DetectedAt string  `json:"detectedAt"` // ISO-8601
	TabID      *int    `json:"tabId"`      // nil when no sender tab
	Source     string  `json:"source"`
	Signals    Signals `json:"signals"`
	UserAgent  string  `json:"userAgent"`
}

// Result is the asynchronous reply to a handled notification.
type Result struct {
	OK     bool   `json:"ok"`
	Status int    `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

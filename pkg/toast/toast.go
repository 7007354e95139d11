package toast

import (
	"context"
	"sync"
)

// EventName is the event name dispatched for toasts.
// Client-side code should listen for this event.
const EventName = "portal:toast"

// Severity represents the toast notification type.
type Severity string

const (
	Success Severity = "success"
	Error   Severity = "error"
	Warning Severity = "warning"
	Info    Severity = "info"
)

// Message is one user-visible notification.
type Message struct {
	Title    string   `json:"title,omitempty"`
	Text     string   `json:"message"`
	Severity Severity `json:"level"`
}

// Detail returns the event payload the browser receives as event.detail.
func (m Message) Detail() map[string]any {
	d := map[string]any{
		"level":   string(m.Severity),
		"message": m.Text,
	}
	if m.Title != "" {
		d["title"] = m.Title
	}
	return d
}

// Notifier delivers messages to the user.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, msg Message) error

// Notify implements Notifier.
func (f NotifierFunc) Notify(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Emitter dispatches a named custom event to the browser.
type Emitter interface {
	Emit(name string, data any) error
}

// EmitterNotifier delivers messages as EventName events through an Emitter.
type EmitterNotifier struct {
	Emitter Emitter
}

// Notify implements Notifier.
func (n EmitterNotifier) Notify(_ context.Context, msg Message) error {
	return n.Emitter.Emit(EventName, msg.Detail())
}

// Show emits a toast with the given severity.
//
// The client receives a CustomEvent with:
//   - event.type = "portal:toast"
//   - event.detail = { level: "success|error|warning|info", message: "..." }
func Show(e Emitter, level Severity, message string) error {
	return e.Emit(EventName, Message{Text: message, Severity: level}.Detail())
}

// WithTitle emits a toast with a title and message.
//
//	toast.WithTitle(conn, toast.Error, "Access", "Account inactive.")
func WithTitle(e Emitter, level Severity, title, message string) error {
	return e.Emit(EventName, Message{Title: title, Text: message, Severity: level}.Detail())
}

// Recorder is a Notifier that keeps every message. Use it in tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
}

// Notify implements Notifier.
func (r *Recorder) Notify(_ context.Context, msg Message) error {
	r.mu.Lock()
	r.messages = append(r.messages, msg)
	r.mu.Unlock()
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// Len returns the number of recorded messages.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages)
}

// Package notify reports pipeline outcomes to external channels.
package notify

import "context"

// Notifier receives run events
type Notifier interface {
	Notify(ctx context.Context, level, message string, fields map[string]string) error
}

type nop struct{}

func (nop) Notify(context.Context, string, string, map[string]string) error { return nil }

// Nop discards every event
func Nop() Notifier { return nop{} }

// New returns a Discord notifier for webhookURL, or Nop when it is empty
func New(webhookURL string) Notifier {
	if webhookURL == "" {
		return Nop()
	}
	return NewDiscord(webhookURL)
}

// Package notify delivers transactional email for signup and invitations.
package notify

import (
	"context"
	"fmt"
	"html"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Message is a single transactional email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SendTimeout bounds how long a request waits on a notification.
const SendTimeout = 10 * time.Second

// Notifier sends messages. Implementations must be safe for concurrent use.
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the log instead of sending them. Used when SMTP is not configured.
type LogNotifier struct{}

func (LogNotifier) Send(ctx context.Context, msg Message) error {
	log.Info().
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("Notification (not sent, SMTP disabled)")
	return nil
}

// Recorder keeps every message in memory, for tests and local development.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error // returned from Send when set
}

func (r *Recorder) Send(ctx context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.messages = append(r.messages, msg)
	return nil
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}

// WelcomeMessage is sent after a successful signup.
func WelcomeMessage(to, orgName string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Welcome to Rubberband, %s is ready", orgName),
		HTML: fmt.Sprintf(`<p>Your workspace <strong>%s</strong> has been created.</p>
<p>Sign in to finish onboarding.</p>`, html.EscapeString(orgName)),
		Text: fmt.Sprintf("Your workspace %s has been created.\n\nSign in to finish onboarding.\n", orgName),
	}
}

// InvitationMessage tells an invitee how to join an organization.
func InvitationMessage(to, orgName, role, token string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("You have been invited to %s on Rubberband", orgName),
		HTML: fmt.Sprintf(`<p>You have been invited to join <strong>%s</strong> as <strong>%s</strong>.</p>
<p>Accept with: <code>rubberband accept-invite %s</code></p>`,
			html.EscapeString(orgName), html.EscapeString(role), html.EscapeString(token)),
		Text: fmt.Sprintf("You have been invited to join %s as %s.\n\nAccept with: rubberband accept-invite %s\n", orgName, role, token),
	}
}

// Package auth implements the ByteBlaster periodic logon handshake: an
// XOR-encoded identification string sent immediately on connect and
// re-sent on a fixed cadence thereafter.
package auth

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/sirupsen/logrus"

	"github.com/wxmesh/byteblaster/internal/xorbuf"
)

// ReauthInterval is the fixed cadence on which the logon message is
// re-transmitted while a connection is active.
const ReauthInterval = 115 * time.Second

const logonFormat = "ByteBlast Client|NM-%s|V2"

// Sender transmits XOR-encoded bytes over the active connection.
type Sender interface {
	Send(data []byte) error
}

// Authenticator owns the periodic logon send loop for one connection
// lifetime. A new Authenticator must be constructed per connection attempt.
type Authenticator struct {
	email string
	log   *logrus.Entry

	mu        sync.Mutex
	scheduler gocron.Scheduler
	active    bool
}

// New validates email (trimmed, must be non-empty) and constructs an
// Authenticator for it.
func New(email string) (*Authenticator, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, ErrEmptyEmail
	}
	return &Authenticator{
		email: email,
		log:   logrus.WithField("component", "auth"),
	}, nil
}

// Message returns the XOR-encoded logon payload for this authenticator's
// email.
func (a *Authenticator) Message() []byte {
	return xorbuf.EncodeString(fmt.Sprintf(logonFormat, a.email))
}

// Start sends the logon message immediately, then schedules a resend every
// ReauthInterval until Stop is called. onError is invoked, non-blocking,
// whenever a scheduled resend fails to send; a failure of the immediate
// send is returned directly so the caller can abort the connection attempt.
func (a *Authenticator) Start(sender Sender, onError func(error)) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active {
		return nil
	}

	if err := sender.Send(a.Message()); err != nil {
		return fmt.Errorf("auth: initial logon send: %w", err)
	}

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("auth: creating scheduler: %w", err)
	}
	_, err = scheduler.NewJob(
		gocron.DurationJob(ReauthInterval),
		gocron.NewTask(func() {
			if sendErr := sender.Send(a.Message()); sendErr != nil {
				a.log.WithError(sendErr).Warn("logon resend failed")
				if onError != nil {
					onError(sendErr)
				}
			}
		}),
	)
	if err != nil {
		return fmt.Errorf("auth: scheduling reauth job: %w", err)
	}

	scheduler.Start()
	a.scheduler = scheduler
	a.active = true
	a.log.Info("authentication loop started")
	return nil
}

// Stop cancels the periodic resend and releases the scheduler. Idempotent.
func (a *Authenticator) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.active {
		return nil
	}
	a.active = false
	err := a.scheduler.Shutdown()
	a.scheduler = nil
	return err
}

// IsActive reports whether the periodic resend loop is running.
func (a *Authenticator) IsActive() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.active
}

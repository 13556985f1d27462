package mailer

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Range-Software/range-cloud/pkg/log"
	"github.com/Range-Software/range-cloud/pkg/metrics"
	"github.com/Range-Software/range-cloud/pkg/stats"
)

const queueDepth = 64

// Settings configures the mailer.
type Settings struct {
	// FromAddress is put on the From header when non-empty.
	FromAddress string

	// Command is the mail-submission program, sendmail by default.
	Command string

	// SendTimeout bounds one delivery attempt.
	SendTimeout time.Duration
}

// Mail is one outbound message.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Mailer is the bounded outbound queue with a single delivery worker.
type Mailer struct {
	settings Settings
	logger   zerolog.Logger
	stats    *stats.Service

	mails  chan Mail
	stopCh chan struct{}
	doneCh chan struct{}
}

// New creates the mailer.
func New(settings Settings) *Mailer {
	if settings.Command == "" {
		settings.Command = "sendmail"
	}
	if settings.SendTimeout == 0 {
		settings.SendTimeout = 30 * time.Second
	}
	return &Mailer{
		settings: settings,
		logger:   log.WithComponent("mailer"),
		stats:    stats.NewService("mailerService"),
		mails:    make(chan Mail, queueDepth),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (m *Mailer) Start() {
	go m.run()
}

// Stop signals the worker to drain the queue and waits for it.
func (m *Mailer) Stop() {
	m.logger.Info().Msg("Signal service to stop")
	close(m.stopCh)
	<-m.doneCh
	m.logger.Info().Msg("Service has been stopped")
}

// Submit enqueues one message. A full queue drops the message with a log
// entry rather than blocking the caller.
func (m *Mailer) Submit(to, subject, body string) {
	select {
	case m.mails <- Mail{To: to, Subject: subject, Body: body}:
	default:
		m.logger.Warn().Str("to", to).Str("subject", subject).Msg("Mail queue full, dropping mail")
		m.stats.RecordCounter("Dropped", 1)
	}
}

// Statistics returns the service statistics snapshot.
func (m *Mailer) Statistics() map[string]interface{} {
	return m.stats.Snapshot()
}

func (m *Mailer) run() {
	defer close(m.doneCh)
	for {
		select {
		case mail := <-m.mails:
			m.deliver(mail)
		case <-m.stopCh:
			for {
				select {
				case mail := <-m.mails:
					m.deliver(mail)
				default:
					return
				}
			}
		}
	}
}

func (m *Mailer) deliver(mail Mail) {
	if err := m.send(mail); err != nil {
		m.stats.RecordCounter("Failed", 1)
		metrics.MailsFailed.Inc()
		m.logger.Warn().Err(err).
			Str("to", mail.To).
			Str("subject", mail.Subject).
			Msg("Failed to send mail")
		return
	}
	m.stats.RecordCounter("Sent", 1)
	metrics.MailsSent.Inc()
	m.logger.Info().
		Str("to", mail.To).
		Str("subject", mail.Subject).
		Msg("Mail has been sent")
}

// send spawns the mail-submission program, writes the message to its stdin
// and waits for the child, bounded by the send timeout.
func (m *Mailer) send(mail Mail) error {
	ctx, cancel := context.WithTimeout(context.Background(), m.settings.SendTimeout)
	defer cancel()

	var content strings.Builder
	if m.settings.FromAddress != "" {
		content.WriteString("From:" + m.settings.FromAddress + "\n")
	}
	content.WriteString("Subject:" + mail.Subject + "\n")
	content.WriteString("\n")
	content.WriteString(mail.Body + "\n")

	cmd := exec.CommandContext(ctx, m.settings.Command, "-t", mail.To)
	cmd.Stdin = strings.NewReader(content.String())
	return cmd.Run()
}

// Package mailer hands password reset mail off to the external delivery
// collaborator. This process never sends email itself; it publishes a job and
// an out-of-process worker renders and delivers the message.
package mailer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/userhub/apiserver/config"
	"github.com/userhub/apiserver/internal/mq"
	"github.com/userhub/apiserver/types"
)

// ResetMailJob is the wire form of a password reset delivery job. The token
// is the plaintext single-use token; it exists only here and in the email.
type ResetMailJob struct {
	UserID    int       `json:"user_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Mailer hands reset jobs to the delivery collaborator.
type Mailer interface {
	SendPasswordReset(ctx context.Context, user types.User, token string, expiresAt time.Time) error
	Close() error
}

// New selects a mailer backend from config: "rabbitmq" and "pubsub" publish
// jobs through the broker, "log" records them locally for development.
func New(ctx context.Context, cfg config.MailerConfig, log *logrus.Logger) (Mailer, error) {
	switch cfg.Backend {
	case "rabbitmq":
		client, err := mq.NewRabbitMQClient(cfg.RabbitMQ)
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
		return &QueueMailer{queue: cfg.Queue, mq: mq.New(client), log: log}, nil
	case "pubsub":
		client, err := mq.NewPubSubClient(ctx, cfg.PubSub)
		if err != nil {
			return nil, fmt.Errorf("mailer: %w", err)
		}
		return &QueueMailer{queue: cfg.Queue, mq: mq.New(client), log: log}, nil
	case "log", "":
		return &LogMailer{log: log}, nil
	default:
		return nil, fmt.Errorf("mailer: unknown backend %q", cfg.Backend)
	}
}

// QueueMailer publishes reset jobs to a message broker.
type QueueMailer struct {
	queue string
	mq    *mq.MQ
	log   *logrus.Logger
}

func (m *QueueMailer) SendPasswordReset(ctx context.Context, user types.User, token string, expiresAt time.Time) error {
	job := ResetMailJob{
		UserID:    user.ID,
		Name:      user.Name,
		Email:     user.Email,
		Token:     token,
		ExpiresAt: expiresAt,
	}
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	id, err := m.mq.Publish(ctx, m.queue, data, map[string]string{"type": "password-reset"})
	if err != nil {
		return err
	}
	m.log.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"message_id": id,
	}).Info("queued password reset mail")
	return nil
}

func (m *QueueMailer) Close() error {
	return m.mq.Close()
}

// LogMailer is the dev backend: the job is logged instead of delivered. The
// token itself is withheld from the log line.
type LogMailer struct {
	log *logrus.Logger
}

func (m *LogMailer) SendPasswordReset(ctx context.Context, user types.User, token string, expiresAt time.Time) error {
	m.log.WithFields(logrus.Fields{
		"user_id":    user.ID,
		"email":      user.Email,
		"expires_at": expiresAt,
	}).Info("password reset requested (log mailer, mail not sent)")
	return nil
}

func (m *LogMailer) Close() error {
	return nil
}

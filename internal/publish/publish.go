// Package publish forwards fleet state updates to NATS as CloudEvents-style JSON.
package publish

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
	"github.com/srg/lyfleet/internal/clock"
	"github.com/srg/lyfleet/internal/fleet"
)

const (
	DefaultSubjectPrefix = "lyfleet.state"
	eventType            = "io.lyfleet.device.state"
	eventSource          = "lyfleet/fleet"
)

// Event is the envelope of one published state.
type Event struct {
	SpecVersion     string      `json:"specversion"`
	ID              string      `json:"id"`
	Source          string      `json:"source"`
	Type            string      `json:"type"`
	Subject         string      `json:"subject"`
	Time            time.Time   `json:"time"`
	DataContentType string      `json:"datacontenttype"`
	Data            fleet.State `json:"data"`
}

// Publisher publishes device states on <prefix>.<device id>.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	clock  clock.Clock
	logger *logrus.Logger
}

// New creates a publisher on an established connection. The connection stays owned by the caller.
func New(nc *nats.Conn, prefix string, c clock.Clock, logger *logrus.Logger) *Publisher {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if c == nil {
		c = clock.Real()
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Publisher{nc: nc, prefix: prefix, clock: c, logger: logger}
}

// Connect dials NATS with logging handlers attached.
func Connect(url string, logger *logrus.Logger, opts ...nats.Option) (*nats.Conn, error) {
	opts = append([]nats.Option{
		nats.Name("lyfleet"),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.WithError(err).Error("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.WithError(err).Warn("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	}, opts...)

	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	logger.WithField("url", nc.ConnectedUrl()).Info("Connected to NATS")
	return nc, nil
}

// Subject returns the subject a device's state is published on.
func (p *Publisher) Subject(id string) string {
	return p.prefix + "." + subjectToken(id)
}

// Publish sends one state.
func (p *Publisher) Publish(st fleet.State) error {
	event := Event{
		SpecVersion:     "1.0",
		ID:              uuid.New().String(),
		Source:          eventSource,
		Type:            eventType,
		Subject:         p.Subject(st.ID),
		Time:            p.clock.Now().UTC(),
		DataContentType: "application/json",
		Data:            st,
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal state of %s: %w", st.ID, err)
	}
	if err := p.nc.Publish(event.Subject, payload); err != nil {
		return fmt.Errorf("failed to publish state of %s: %w", st.ID, err)
	}

	p.logger.WithFields(logrus.Fields{
		"subject":  event.Subject,
		"event_id": event.ID,
	}).Debug("Published device state")
	return nil
}

// Run publishes every update until ctx is done or updates is closed.
// Failed publications are logged and skipped.
func (p *Publisher) Run(ctx context.Context, updates <-chan fleet.State) {
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := p.Publish(st); err != nil {
				p.logger.WithError(err).Warn("State publication failed")
			}
		}
	}
}

// subjectToken makes id usable as a single subject token.
func subjectToken(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t', '\n', '\r':
			return '_'
		}
		return r
	}, id)
}

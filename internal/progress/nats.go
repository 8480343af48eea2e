package progress

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nats-io/nats.go"

	"bookture/internal/logging"
)

// NATSOptions configures the NATS core pub/sub backend.
type NATSOptions struct {
	URL           string
	SubjectPrefix string
	Buffer        int
}

// NATS broadcasts events on the subject <prefix>.job.<id>.
type NATS struct {
	nc     *nats.Conn
	prefix string
	buffer int
	logger *slog.Logger
}

// NewNATS connects to the server at opts.URL.
func NewNATS(opts NATSOptions, logger *slog.Logger) (*NATS, error) {
	nc, err := nats.Connect(opts.URL,
		nats.Name("bookture"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return newNATSWithConn(nc, opts, logger), nil
}

func newNATSWithConn(nc *nats.Conn, opts NATSOptions, logger *slog.Logger) *NATS {
	if logger == nil {
		logger = logging.NewNop()
	}
	prefix := strings.TrimSuffix(strings.TrimSpace(opts.SubjectPrefix), ".")
	if prefix == "" {
		prefix = "bookture"
	}
	return &NATS{nc: nc, prefix: prefix, buffer: opts.Buffer, logger: logger}
}

func (n *NATS) subject(jobID string) string {
	return n.prefix + ".job." + jobID
}

// Publish sends evt to the job subject.
func (n *NATS) Publish(_ context.Context, evt Event) error {
	data, err := encodeEvent(evt)
	if err != nil {
		return err
	}
	if err := n.nc.Publish(n.subject(evt.JobID), data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

// Subscribe joins the job subject.
func (n *NATS) Subscribe(_ context.Context, jobID string) (*Subscription, error) {
	sub := newSubscription(jobID, n.buffer, n.logger)
	natsSub, err := n.nc.Subscribe(n.subject(jobID), func(msg *nats.Msg) {
		evt, err := decodeEvent(msg.Data)
		if err != nil {
			n.logger.Debug("discarding malformed progress event",
				logging.String(logging.FieldJobID, jobID),
				logging.Error(err),
			)
			return
		}
		sub.deliver(evt)
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe to %s: %w", n.subject(jobID), err)
	}
	if err := n.nc.Flush(); err != nil {
		_ = natsSub.Unsubscribe()
		return nil, fmt.Errorf("flush subscription: %w", err)
	}
	sub.stop = func() { _ = natsSub.Unsubscribe() }
	return sub, nil
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n.nc.IsClosed() {
		return nil
	}
	return n.nc.Drain()
}

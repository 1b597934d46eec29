/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package eventbus

import (
	"sync"
	"time"

	"github.com/friendsincode/heimdall_gate/internal/events"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Subject prefix for cross-instance events.
const natsSubjectPrefix = "heimdall.events."

// NATSBus fans events out across instances over core NATS pub/sub. Like the
// Redis backend it keeps local delivery on the in-memory bus and degrades to
// single-instance behavior when the server is unreachable.
type NATSBus struct {
	conn     *nats.Conn
	logger   zerolog.Logger
	fallback *events.Bus
	nodeID   string

	mu   sync.RWMutex
	subs map[events.EventType][]events.Subscriber
	nsub map[events.EventType]*nats.Subscription

	useFallback bool
}

// NATSConfig contains NATS connection configuration.
type NATSConfig struct {
	URL           string
	Token         string
	MaxReconnects int
	ReconnectWait time.Duration
	Timeout       time.Duration
}

// DefaultNATSConfig returns default NATS configuration.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		MaxReconnects: -1, // Unlimited
		ReconnectWait: 2 * time.Second,
		Timeout:       5 * time.Second,
	}
}

// NewNATSBus creates a NATS-backed event bus. Falls back to the in-memory
// bus if the server is unavailable.
func NewNATSBus(cfg NATSConfig, nodeID string, logger zerolog.Logger) (*NATSBus, error) {
	nb := &NATSBus{
		logger:   logger,
		fallback: events.NewBus(),
		nodeID:   nodeID,
		subs:     make(map[events.EventType][]events.Subscriber),
		nsub:     make(map[events.EventType]*nats.Subscription),
	}

	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.Timeout(cfg.Timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		logger.Warn().Err(err).Msg("NATS connection failed, using in-memory fallback")
		nb.useFallback = true
		return nb, nil
	}

	nb.conn = conn
	logger.Info().Str("url", cfg.URL).Str("node_id", nodeID).Msg("NATS event bus initialized")
	return nb, nil
}

// Subscribe registers a subscriber for an event type.
func (nb *NATSBus) Subscribe(eventType events.EventType) events.Subscriber {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	sub := nb.fallback.Subscribe(eventType)
	nb.subs[eventType] = append(nb.subs[eventType], sub)

	if nb.useFallback {
		return sub
	}

	if _, exists := nb.nsub[eventType]; !exists {
		subject := natsSubjectPrefix + string(eventType)
		nsub, err := nb.conn.Subscribe(subject, func(msg *nats.Msg) {
			wireMsg, err := unmarshalMessage(msg.Data)
			if err != nil {
				nb.logger.Error().Err(err).Msg("failed to unmarshal NATS message")
				return
			}
			if wireMsg.NodeID == nb.nodeID {
				return
			}
			nb.fallback.Publish(eventType, wireMsg.Payload)
		})
		if err != nil {
			nb.logger.Error().Err(err).Str("subject", subject).Msg("NATS subscribe failed")
		} else {
			nb.nsub[eventType] = nsub
		}
	}

	return sub
}

// Publish sends an event payload to all subscribers, local and remote.
func (nb *NATSBus) Publish(eventType events.EventType, payload events.Payload) {
	nb.fallback.Publish(eventType, payload)

	nb.mu.RLock()
	degraded := nb.useFallback
	nb.mu.RUnlock()
	if degraded {
		return
	}

	data, err := marshalMessage(eventType, payload, nb.nodeID)
	if err != nil {
		nb.logger.Error().Err(err).Msg("failed to marshal NATS message")
		return
	}

	subject := natsSubjectPrefix + string(eventType)
	if err := nb.conn.Publish(subject, data); err != nil {
		nb.logger.Error().Err(err).Str("subject", subject).Msg("failed to publish to NATS")
	}
}

// Unsubscribe removes a subscriber.
func (nb *NATSBus) Unsubscribe(eventType events.EventType, sub events.Subscriber) {
	nb.mu.Lock()
	defer nb.mu.Unlock()

	subs := nb.subs[eventType]
	for i, s := range subs {
		if s == sub {
			nb.subs[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}

	nb.fallback.Unsubscribe(eventType, sub)

	if len(nb.subs[eventType]) == 0 {
		if nsub, exists := nb.nsub[eventType]; exists {
			_ = nsub.Unsubscribe()
			delete(nb.nsub, eventType)
		}
	}
}

// Close drains and closes the NATS connection.
func (nb *NATSBus) Close() error {
	if nb.conn == nil {
		return nil
	}
	if err := nb.conn.Drain(); err != nil {
		nb.conn.Close()
		return err
	}
	return nil
}

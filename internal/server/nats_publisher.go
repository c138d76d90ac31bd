package server

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/gpib-control/gpib-control-server/internal/config"
	"github.com/gpib-control/gpib-control-server/internal/gpib"
)

// Publisher is the part of *nats.Conn the publisher needs
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher publishes session events to NATS
type NATSPublisher struct {
	pub    Publisher
	prefix string
}

// NewNATSPublisher creates a publisher writing below prefix
func NewNATSPublisher(pub Publisher, prefix string) *NATSPublisher {
	return &NATSPublisher{
		pub:    pub,
		prefix: prefix,
	}
}

// Observe implements gpib.Observer. NATS buffers publishes in the client,
// so this does not wait on the network.
func (p *NATSPublisher) Observe(e gpib.Event) {
	msg := NewSessionMessage(e)

	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal session message")
		return
	}

	subject := InstrumentSubject(p.prefix, msg.InstrumentID, e.Type)
	if err := p.pub.Publish(subject, data); err != nil {
		log.Error().
			Err(err).
			Str("subject", subject).
			Msg("Failed to publish session event")
		return
	}

	log.Debug().
		Str("subject", subject).
		Int("size", len(data)).
		Msg("Published session event")
}

// ConnectNATS opens a NATS connection with the configured credentials and
// reconnect policy
func ConnectNATS(cfg config.NATSConfig) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name(cfg.ClientID),
		nats.MaxReconnects(cfg.MaxReconnects),
		nats.ReconnectWait(cfg.ReconnectInterval),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}

	if cfg.Username != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}

	return nc, nil
}

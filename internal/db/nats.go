package db

import (
	"context"
	"encoding/json"

	"duel/internal/types"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"
	"github.com/rotisserie/eris"
)

var ErrNotConnected = eris.New("nats connection is not established")

type natsConn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Drain() error
}

// NatsPublisher hands ranked results to downstream consumers.
type NatsPublisher struct {
	conn    natsConn
	subject string
}

func ConnectNats(url, subject string) (*NatsPublisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("duel"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("NATS disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("NATS reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, eris.Wrap(err, "nats connect")
	}
	log.Infof("Connected to NATS at %s, publishing results to %s", url, subject)
	return &NatsPublisher{conn: conn, subject: subject}, nil
}

func (p *NatsPublisher) Record(_ context.Context, result types.GameResult) error {
	if !p.conn.IsConnected() {
		return ErrNotConnected
	}
	data, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "encode result")
	}
	return eris.Wrapf(p.conn.Publish(p.subject, data), "publish to %s", p.subject)
}

func (p *NatsPublisher) Close() error {
	return p.conn.Drain()
}

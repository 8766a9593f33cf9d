package notify

import (
	"log/slog"

	"github.com/nats-io/nats.go"
	"ovwatch.transit.nl/internal/logging"
)

// NATS is a Publisher backed by a NATS connection.
type NATS struct {
	conn   *nats.Conn
	logger *slog.Logger
}

// ConnectNATS dials url. The connection reconnects on its own; state changes
// are logged.
func ConnectNATS(url, name string, logger *slog.Logger) (*NATS, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With(slog.String("component", "nats"))
	conn, err := nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logging.LogWarn(logger, "nats disconnected", err)
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logging.LogOperation(logger, "nats_reconnected", slog.String("url", c.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logging.LogOperation(logger, "nats_closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATS{conn: conn, logger: logger}, nil
}

func (n *NATS) Publish(subject string, data []byte) error {
	return n.conn.Publish(subject, data)
}

// Close drains pending messages and closes the connection.
func (n *NATS) Close() error {
	if n == nil || n.conn == nil {
		return nil
	}
	if err := n.conn.Drain(); err != nil {
		n.conn.Close()
		return err
	}
	return nil
}

package ingest

import (
	"errors"
	"io"
	"log/slog"
	"net"

	"github.com/google/uuid"

	"github.com/ProjectMeniscus/portal/internal/logging"
	"github.com/ProjectMeniscus/portal/internal/syslog"
)

// readBufSize bounds each read from the peer socket.
const readBufSize = 16 * 1024

// Connection owns one accepted stream, a parser bound to its own assembler,
// and the peer address. A Connection is exclusive to the goroutine that
// drives it; nothing about it is safe for concurrent use.
type Connection struct {
	id     uuid.UUID
	conn   net.Conn
	peer   string
	parser *syslog.Parser
	logger *slog.Logger
}

// NewConnection wraps an accepted stream with a parser bound to assembler.
// Each connection is tagged with a UUID so its log lines can be correlated
// across a connection's lifetime even when several share the same peer
// address (a NAT gateway or a reconnecting client).
func NewConnection(conn net.Conn, assembler *syslog.Assembler, logger *slog.Logger) *Connection {
	id := uuid.New()
	peer := conn.RemoteAddr().String()
	return &Connection{
		id:     id,
		conn:   conn,
		peer:   peer,
		parser: syslog.New(assembler),
		logger: logging.Default(logger).With("component", "connection", "peer", peer, "conn_id", id.String()),
	}
}

// Serve reads from the connection until the peer closes it, a read error
// occurs, or a parse error forces the connection closed. It always closes
// the underlying stream before returning.
func (c *Connection) Serve() {
	defer c.conn.Close()

	buf := make([]byte, readBufSize)
	for {
		n, err := c.conn.Read(buf)
		if n > 0 {
			if perr := c.parser.Feed(buf[:n]); perr != nil {
				c.logger.Warn("parse error, closing connection", "error", perr)
				return
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug("peer closed")
				return
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			c.logger.Debug("read error, closing connection", "error", err)
			return
		}
	}
}

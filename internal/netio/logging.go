package netio

import "log/slog"

func logFramingError(c *Connection, err error) {
	slog.Warn("framing error, resyncing connection",
		"conn_id", c.ID,
		"trace_id", c.TraceID,
		"addr", c.Addr,
		"error", err,
	)
}

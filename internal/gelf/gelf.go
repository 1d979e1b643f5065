package gelf

import (
	"encoding/json"
	"net"
	"os"
	"strings"
	"time"
)

// Writer sends GELF messages over UDP and implements io.Writer
// so it can be used with log.SetOutput via io.MultiWriter.
type Writer struct {
	conn     net.Conn
	hostname string
	service  string
}

// New creates a GELF UDP writer connected to addr (e.g. "172.17.0.1:12201").
// Every message is tagged with service.
func New(addr, service string) (*Writer, error) {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "oxiaudit-server"
	}
	if service == "" {
		service = "oxiaudit"
	}

	return &Writer{conn: conn, hostname: hostname, service: service}, nil
}

// Level maps a log line onto a syslog severity: PANIC and Fatal lines are
// errors, "Warning:" lines are warnings, anything else is informational.
func Level(short string) int {
	switch {
	case strings.Contains(short, "PANIC:") || strings.Contains(short, "Fatal"):
		return 3
	case strings.HasPrefix(short, "Warning:"):
		return 4
	}
	return 6
}

// Write implements io.Writer. Each call sends one GELF message.
// The standard log package writes lines like "2026/02/19 18:43:52 message\n";
// the date prefix and trailing newline are stripped for short_message.
func (w *Writer) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")

	short := msg
	if len(msg) > 20 && msg[4] == '/' && msg[7] == '/' && msg[10] == ' ' && msg[13] == ':' {
		short = msg[20:]
	}

	payload, err := json.Marshal(map[string]any{
		"version":       "1.1",
		"host":          w.hostname,
		"short_message": short,
		"timestamp":     float64(time.Now().UnixNano()) / 1e9,
		"level":         Level(short),
		"_service":      w.service,
	})
	if err != nil {
		return len(p), nil // don't fail the log call
	}

	// Fire-and-forget
	w.conn.Write(payload)
	return len(p), nil
}

// Close releases the UDP socket.
func (w *Writer) Close() error { return w.conn.Close() }

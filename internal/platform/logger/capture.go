package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

// Capture collects JSON log lines in memory. It is safe for concurrent use
// and is meant for tests that assert on what was logged.
type Capture struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCapture returns a debug-level JSON logger writing into a new Capture.
func NewCapture() (*slog.Logger, *Capture) {
	c := &Capture{}
	return slog.New(slog.NewJSONHandler(c, &slog.HandlerOptions{Level: slog.LevelDebug})), c
}

func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.Write(p)
}

func (c *Capture) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Entries decodes every captured line. Lines that are not JSON are skipped.
func (c *Capture) Entries() []map[string]any {
	var entries []map[string]any
	for _, line := range strings.Split(c.String(), "\n") {
		var entry map[string]any
		if json.Unmarshal([]byte(line), &entry) == nil {
			entries = append(entries, entry)
		}
	}
	return entries
}

// Find returns the first entry whose msg equals msg.
func (c *Capture) Find(msg string) (map[string]any, bool) {
	for _, e := range c.Entries() {
		if e[slog.MessageKey] == msg {
			return e, true
		}
	}
	return nil, false
}

// HasField reports whether any entry has field set to value. Numbers decode
// as float64.
func (c *Capture) HasField(field string, value any) bool {
	for _, e := range c.Entries() {
		if v, ok := e[field]; ok && v == value {
			return true
		}
	}
	return false
}

package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// RawLogger records raw USB-IP traffic, one line per chunk.
type RawLogger interface {
	// Log records data; in=true means host to device.
	Log(in bool, data []byte)
}

type rawLogger struct {
	mu sync.Mutex
	w  io.Writer
}

// NewRaw creates a RawLogger writing to w. A nil w yields a logger that drops everything.
func NewRaw(w io.Writer) RawLogger {
	return &rawLogger{w: w}
}

const hexdigits = "0123456789abcdef"

func (r *rawLogger) Log(in bool, data []byte) {
	if r.w == nil || len(data) == 0 {
		return
	}

	dir := "dev->host"
	if in {
		dir = "host->dev"
	}

	var sb strings.Builder
	sb.Grow(len(data)*3 + 48)
	fmt.Fprintf(&sb, "%s %s %d bytes:", time.Now().Format("15:04:05.000000"), dir, len(data))
	for _, b := range data {
		sb.WriteByte(' ')
		sb.WriteByte(hexdigits[b>>4])
		sb.WriteByte(hexdigits[b&0x0f])
	}
	sb.WriteByte('\n')

	r.mu.Lock()
	_, _ = io.WriteString(r.w, sb.String())
	r.mu.Unlock()
}

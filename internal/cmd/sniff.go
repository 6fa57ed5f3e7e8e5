package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/internal/sniff"
)

// Sniff runs a decoding USB-IP proxy in front of a running bridge.
type Sniff struct {
	sniff.Config `embed:""`
}

func (s *Sniff) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting USB-IP sniffer", "listen", s.Addr, "upstream", s.Upstream)
	return sniff.New(s.Config, logger, rawLogger).Serve(ctx)
}

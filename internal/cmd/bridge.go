package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/padbridge/padbridge/device/switchpad"
	"github.com/padbridge/padbridge/internal/configpaths"
	"github.com/padbridge/padbridge/internal/gadget"
	"github.com/padbridge/padbridge/internal/indicator"
	"github.com/padbridge/padbridge/internal/link"
	"github.com/padbridge/padbridge/internal/link/auth"
	"github.com/padbridge/padbridge/internal/log"
	"github.com/padbridge/padbridge/mailbox"
	"github.com/padbridge/padbridge/normalizer"
	"github.com/padbridge/padbridge/pump"
)

type Bridge struct {
	Link        link.Config   `embed:"" prefix:"link."`
	USB         gadget.Config `embed:"" prefix:"usb."`
	Pump        pump.Config   `embed:"" prefix:"pump."`
	MailboxWait time.Duration `help:"Bounded wait for a new report on each output iteration" default:"1ms" env:"PADBRIDGE_MAILBOX_WAIT"`
	LED         string        `help:"LED class device lit while a controller is ready (e.g. led0); empty logs instead" env:"PADBRIDGE_LED"`
	KeyFile     string        `help:"Link password file; generated on first start (default: config dir)" env:"PADBRIDGE_KEY_FILE"`
}

// Run is called by Kong when the bridge command is executed.
func (b *Bridge) Run(logger *slog.Logger, rawLogger log.RawLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return b.StartBridge(ctx, logger, rawLogger)
}

// StartBridge runs the input and output sides until ctx is cancelled or one
// of them fails to start.
func (b *Bridge) StartBridge(ctx context.Context, logger *slog.Logger, rawLogger log.RawLogger) error {
	password, err := b.password(logger)
	if err != nil {
		return err
	}
	key, err := auth.DeriveKey(password)
	if err != nil {
		return fmt.Errorf("derive link key: %w", err)
	}

	mb := mailbox.New(b.MailboxWait)
	ind := indicator.New(b.LED, logger.With("component", "indicator"))
	norm := normalizer.New(mb, ind, logger.With("component", "normalizer"))
	linkSrv := link.New(b.Link, key, norm, logger.With("component", "link"))

	pad := switchpad.New()
	pad.SetOutputCallback(func(data []byte) {
		logger.Debug("Host output report", "data", fmt.Sprintf("% x", data))
	})
	usb := gadget.New(b.USB, pad, logger.With("component", "usb"), rawLogger)
	defer usb.Close()
	out := pump.New(b.Pump, usb, mb, logger.With("component", "pump"))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger.Info("Starting padbridge", "link", b.Link.Addr, "usb", b.USB.Addr, "busid", b.USB.BusID)

	// One goroutine per side, each on its own OS thread. They share only mb.
	inErr := make(chan error, 1)
	outErr := make(chan error, 1)
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		inErr <- linkSrv.Serve(ctx)
	}()
	go func() {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
		outErr <- out.Run(ctx)
	}()

	var first error
	select {
	case err := <-inErr:
		first = err
		cancel()
		<-outErr
	case err := <-outErr:
		if !errors.Is(err, context.Canceled) {
			first = err
		}
		cancel()
		<-inErr
	}
	st := out.Stats()
	logger.Info("padbridge stopped", "sent", st.Sent, "dropped", st.Dropped, "handshake", st.Handshake, "wakeups", st.Wakeups)
	return first
}

func (b *Bridge) password(logger *slog.Logger) (string, error) {
	if b.Link.Password != "" {
		return b.Link.Password, nil
	}
	path := b.KeyFile
	if path == "" {
		p, err := configpaths.KeyFilePath()
		if err != nil {
			return "", fmt.Errorf("failed to resolve key file path: %w", err)
		}
		path = p
	}
	if pwd, err := os.ReadFile(path); err == nil {
		if s := strings.TrimSpace(string(pwd)); s != "" {
			return s, nil
		}
	}

	newPwd, err := auth.GenerateKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate link password: %w", err)
	}
	if err := configpaths.EnsureDir(path); err != nil {
		return "", fmt.Errorf("failed to create dir for key file: %w", err)
	}
	if err := os.WriteFile(path, []byte(newPwd), 0o600); err != nil {
		return "", fmt.Errorf("failed to write link password: %w", err)
	}
	logger.Info("Generated link password", "path", path)
	logger.Info("-------------------------------------")
	logger.Info("Your padbridge link password is:")
	logger.Info(newPwd)
	logger.Info("-------------------------------------")
	return newPwd, nil
}

package pump_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/padbridge/padbridge/mailbox"
	"github.com/padbridge/padbridge/pump"
	"github.com/padbridge/padbridge/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTransport struct {
	mu sync.Mutex

	initErr     error
	mountAfter  int
	tasks       int
	suspended   bool
	wakeAllowed bool
	wakeups     int
	readyFn     func(call int) bool
	readyCalls  int
	sent        [][]byte
}

func (f *fakeTransport) Init() error { return f.initErr }

func (f *fakeTransport) Task() {
	f.mu.Lock()
	f.tasks++
	f.mu.Unlock()
}

func (f *fakeTransport) Mounted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tasks > f.mountAfter
}

func (f *fakeTransport) Suspended() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.suspended
}

func (f *fakeTransport) RemoteWakeup() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.wakeups++
	return f.wakeAllowed
}

func (f *fakeTransport) Ready() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readyCalls++
	if f.readyFn == nil {
		return true
	}
	return f.readyFn(f.readyCalls)
}

func (f *fakeTransport) SendReport(b []byte) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, append([]byte(nil), b...))
	return true
}

func (f *fakeTransport) set(fn func(f *fakeTransport)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeTransport) count(want []byte) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.sent {
		if bytes.Equal(b, want) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) sentLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func fastConfig(n int) pump.Config {
	return pump.Config{HandshakeReports: n, HandshakeZeroAxes: true}
}

func zeroAxesReport() []byte {
	r := report.Neutral()
	r.LX, r.LY, r.RX, r.RY = 0, 0, 0, 0
	return r.BuildReport()
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func start(t *testing.T, p *pump.Pump) (cancel func(), done <-chan error) {
	t.Helper()
	ctx, c := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()
	t.Cleanup(func() {
		c()
		select {
		case <-errc:
		case <-time.After(2 * time.Second):
			t.Error("pump did not stop")
		}
	})
	return c, errc
}

func waitSteady(t *testing.T, p *pump.Pump) {
	t.Helper()
	select {
	case <-p.Steady():
	case <-time.After(5 * time.Second):
		t.Fatal("pump never reached steady state")
	}
}

func TestHandshakeSendsExactCount(t *testing.T) {
	ft := &fakeTransport{}
	mb := mailbox.New(time.Millisecond)
	p := pump.New(fastConfig(50), ft, mb, discard())
	start(t, p)
	waitSteady(t, p)

	assert.Equal(t, pump.PhaseSteady, p.Phase())
	assert.Equal(t, uint64(50), p.Stats().Handshake)
	assert.Equal(t, 50, ft.count(zeroAxesReport()))
}

func TestHandshakeSkipsWhenNotReady(t *testing.T) {
	ft := &fakeTransport{
		// Only every other Ready call during the handshake succeeds; afterwards never ready.
		readyFn: func(call int) bool { return call <= 50 && call%2 == 0 },
	}
	p := pump.New(fastConfig(50), ft, mailbox.New(time.Millisecond), discard())
	start(t, p)
	waitSteady(t, p)

	// The handshake does not retry: 50 iterations, half of them ready.
	assert.Equal(t, uint64(25), p.Stats().Handshake)
	assert.Equal(t, 25, ft.count(zeroAxesReport()))
	assert.Eventually(t, func() bool { return p.Stats().Dropped > 0 }, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(0), p.Stats().Sent)
}

func TestHandshakeDefaultIsNeutral(t *testing.T) {
	ft := &fakeTransport{readyFn: func(call int) bool { return call <= 3 }}
	cfg := pump.Config{HandshakeReports: 3}
	p := pump.New(cfg, ft, mailbox.New(time.Millisecond), discard())
	start(t, p)
	waitSteady(t, p)

	neutral := report.Neutral()
	assert.Equal(t, 3, ft.count(neutral.BuildReport()))
	assert.Equal(t, 0, ft.count(zeroAxesReport()))
}

func TestBringUpWaitsForMount(t *testing.T) {
	ft := &fakeTransport{mountAfter: 5}
	p := pump.New(fastConfig(1), ft, mailbox.New(time.Millisecond), discard())
	start(t, p)
	waitSteady(t, p)

	ft.set(func(f *fakeTransport) {
		assert.GreaterOrEqual(t, f.tasks, 6)
	})
}

func TestCancelDuringBringUp(t *testing.T) {
	ft := &fakeTransport{mountAfter: 1 << 30}
	cfg := pump.DefaultConfig()
	p := pump.New(cfg, ft, mailbox.New(time.Millisecond), discard())

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx) }()

	assert.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return ft.tasks > 1
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, pump.PhaseBringUp, p.Phase())
	cancel()

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.Equal(t, 0, ft.sentLen())
}

func TestInitFailure(t *testing.T) {
	boom := errors.New("boom")
	ft := &fakeTransport{initErr: boom}
	p := pump.New(pump.DefaultConfig(), ft, mailbox.New(time.Millisecond), discard())

	err := p.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, ft.tasks)
}

func TestSteadySendsLatestReport(t *testing.T) {
	ft := &fakeTransport{}
	mb := mailbox.New(time.Millisecond)
	p := pump.New(fastConfig(2), ft, mb, discard())
	start(t, p)
	waitSteady(t, p)

	r := report.Neutral()
	r.Buttons = report.ButtonA | report.ButtonZR
	r.Hat = report.HatLeft
	mb.Set(&r)

	want := r.BuildReport()
	assert.Eventually(t, func() bool { return ft.count(want) > 0 }, 2*time.Second, time.Millisecond)
	assert.Greater(t, p.Stats().Sent, uint64(0))
}

func TestSuspendRequestsWakeup(t *testing.T) {
	ft := &fakeTransport{wakeAllowed: true}
	p := pump.New(fastConfig(1), ft, mailbox.New(time.Millisecond), discard())
	start(t, p)
	waitSteady(t, p)

	ft.set(func(f *fakeTransport) { f.suspended = true })
	assert.Eventually(t, func() bool { return p.Stats().Wakeups > 0 }, 2*time.Second, time.Millisecond)

	before := ft.sentLen()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, before, ft.sentLen(), "nothing is sent while suspended")

	ft.set(func(f *fakeTransport) { f.suspended = false })
	assert.Eventually(t, func() bool { return ft.sentLen() > before }, 2*time.Second, time.Millisecond)
}

func TestSuspendWakeupRefused(t *testing.T) {
	ft := &fakeTransport{wakeAllowed: false}
	p := pump.New(fastConfig(1), ft, mailbox.New(time.Millisecond), discard())
	start(t, p)
	waitSteady(t, p)

	ft.set(func(f *fakeTransport) { f.suspended = true })
	assert.Eventually(t, func() bool {
		ft.mu.Lock()
		defer ft.mu.Unlock()
		return ft.wakeups > 2
	}, 2*time.Second, time.Millisecond)
	assert.Equal(t, uint64(0), p.Stats().Wakeups)
}

func TestPhaseString(t *testing.T) {
	assert.Equal(t, "bring-up", pump.PhaseBringUp.String())
	assert.Equal(t, "handshake", pump.PhaseHandshake.String())
	assert.Equal(t, "steady", pump.PhaseSteady.String())
}

package normalizer_test

import (
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/padbridge/padbridge/mailbox"
	"github.com/padbridge/padbridge/normalizer"
	"github.com/padbridge/padbridge/platform"
	"github.com/padbridge/padbridge/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndicator struct {
	mu      sync.Mutex
	history []bool
}

func (f *fakeIndicator) Set(on bool) {
	f.mu.Lock()
	f.history = append(f.history, on)
	f.mu.Unlock()
}

func (f *fakeIndicator) last() (bool, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.history) == 0 {
		return false, false
	}
	return f.history[len(f.history)-1], true
}

const (
	codGamepad  uint32 = 0x002508
	codKeyboard uint32 = 0x002540
	codKbdMouse uint32 = 0x0025C0
)

func newNormalizer(t *testing.T) (*normalizer.Normalizer, *mailbox.Mailbox, *fakeIndicator) {
	t.Helper()
	mb := mailbox.New(time.Millisecond)
	ind := &fakeIndicator{}
	n := normalizer.New(mb, ind, slog.New(slog.NewTextHandler(io.Discard, nil)))
	n.Init()
	return n, mb, ind
}

func connect(t *testing.T, n *normalizer.Normalizer, h platform.Handle) {
	t.Helper()
	require.NoError(t, n.OnDeviceDiscovered(platform.Address{1, 2, 3, 4, 5, 6}, "pad", codGamepad, -50))
	n.OnDeviceConnected(h)
	require.NoError(t, n.OnDeviceReady(h))
}

func pressed(buttons uint16) *platform.Controller {
	return &platform.Controller{Class: platform.ClassGamepad, Gamepad: platform.Gamepad{Buttons: buttons, AxisX: 511}}
}

func TestInitPublishesNeutral(t *testing.T) {
	mb := mailbox.New(time.Millisecond)
	r := report.Neutral()
	r.Buttons = report.ButtonA
	mb.Set(&r)

	n := normalizer.New(mb, nil, nil)
	n.Init()
	assert.Equal(t, report.Neutral(), mb.Peek())
	assert.Equal(t, normalizer.StateDisconnected, n.State())
	assert.False(t, n.Present())
}

func TestLifecycle(t *testing.T) {
	n, mb, ind := newNormalizer(t)

	n.OnInitComplete()
	on, ok := ind.last()
	assert.True(t, ok)
	assert.False(t, on)

	require.NoError(t, n.OnDeviceDiscovered(platform.Address{}, "pad", codGamepad, -60))
	assert.Equal(t, normalizer.StateDiscovered, n.State())

	n.OnDeviceConnected(7)
	assert.Equal(t, normalizer.StateConnected, n.State())
	assert.False(t, n.Present())

	require.NoError(t, n.OnDeviceReady(7))
	assert.Equal(t, normalizer.StateReady, n.State())
	assert.True(t, n.Present())
	on, _ = ind.last()
	assert.True(t, on)

	n.OnControllerData(7, pressed(platform.ButtonA))
	got := mb.Peek()
	assert.Equal(t, report.ButtonB, got.Buttons)
	assert.Equal(t, uint8(255), got.LX)

	n.OnDeviceDisconnected(7)
	assert.Equal(t, report.Neutral(), mb.Peek())
	assert.Equal(t, normalizer.StateDisconnected, n.State())
	assert.False(t, n.Present())
	on, _ = ind.last()
	assert.False(t, on)
}

func TestDisconnectResetsFromAnyTrackedState(t *testing.T) {
	n, mb, _ := newNormalizer(t)

	require.NoError(t, n.OnDeviceDiscovered(platform.Address{}, "pad", codGamepad, 0))
	n.OnDeviceConnected(3)
	n.OnDeviceDisconnected(3)
	assert.Equal(t, normalizer.StateDisconnected, n.State())
	assert.Equal(t, report.Neutral(), mb.Peek())

	require.NoError(t, n.OnDeviceDiscovered(platform.Address{}, "pad", codGamepad, 0))
	n.OnDeviceDisconnected(99)
	assert.Equal(t, normalizer.StateDisconnected, n.State())
}

func TestDisconnectUntrackedKeepsState(t *testing.T) {
	n, mb, ind := newNormalizer(t)
	connect(t, n, 1)
	n.OnControllerData(1, pressed(platform.ButtonX))
	require.Equal(t, report.ButtonY, mb.Peek().Buttons)

	// The report reset is unconditional; only the tracked state survives.
	n.OnDeviceDisconnected(2)
	assert.Equal(t, report.Neutral(), mb.Peek())
	assert.Equal(t, normalizer.StateReady, n.State())
	assert.True(t, n.Present())
	on, _ := ind.last()
	assert.True(t, on)

	n.OnControllerData(1, pressed(platform.ButtonX))
	assert.Equal(t, report.ButtonY, mb.Peek().Buttons)
}

func TestKeyboardIgnored(t *testing.T) {
	n, _, _ := newNormalizer(t)

	assert.ErrorIs(t, n.OnDeviceDiscovered(platform.Address{}, "kbd", codKeyboard, 0), platform.ErrIgnoreDevice)
	assert.ErrorIs(t, n.OnDeviceDiscovered(platform.Address{}, "combo", codKbdMouse, 0), platform.ErrIgnoreDevice)
	assert.Equal(t, normalizer.StateDisconnected, n.State())

	// A pure mouse is not filtered at discovery.
	assert.NoError(t, n.OnDeviceDiscovered(platform.Address{}, "mouse", 0x002580, 0))
}

func TestSingleDevicePolicy(t *testing.T) {
	n, _, _ := newNormalizer(t)
	connect(t, n, 1)

	assert.ErrorIs(t, n.OnDeviceDiscovered(platform.Address{9}, "second", codGamepad, 0), platform.ErrIgnoreDevice)
	assert.Equal(t, normalizer.StateReady, n.State())

	n.OnDeviceDisconnected(1)
	assert.NoError(t, n.OnDeviceDiscovered(platform.Address{9}, "second", codGamepad, 0))
}

func TestReadyOutOfOrder(t *testing.T) {
	n, _, _ := newNormalizer(t)

	assert.ErrorIs(t, n.OnDeviceReady(1), normalizer.ErrUnexpectedState)

	require.NoError(t, n.OnDeviceDiscovered(platform.Address{}, "pad", codGamepad, 0))
	n.OnDeviceConnected(1)
	assert.ErrorIs(t, n.OnDeviceReady(2), normalizer.ErrUnexpectedState)
	assert.Equal(t, normalizer.StateConnected, n.State())

	// Connect without discovery is ignored.
	n2, _, _ := newNormalizer(t)
	n2.OnDeviceConnected(5)
	assert.Equal(t, normalizer.StateDisconnected, n2.State())
}

func TestControllerDataFiltering(t *testing.T) {
	n, mb, _ := newNormalizer(t)

	// Before ready: ignored.
	require.NoError(t, n.OnDeviceDiscovered(platform.Address{}, "pad", codGamepad, 0))
	n.OnDeviceConnected(1)
	n.OnControllerData(1, pressed(platform.ButtonA))
	assert.Equal(t, report.Neutral(), mb.Peek())

	require.NoError(t, n.OnDeviceReady(1))

	// Wrong handle, wrong class, nil frame: ignored.
	n.OnControllerData(2, pressed(platform.ButtonA))
	n.OnControllerData(1, &platform.Controller{Class: platform.ClassMouse, Gamepad: platform.Gamepad{Buttons: platform.ButtonA}})
	n.OnControllerData(1, nil)
	assert.Equal(t, report.Neutral(), mb.Peek())

	n.OnControllerData(1, pressed(platform.ButtonB))
	assert.Equal(t, report.ButtonA, mb.Peek().Buttons)
}

func TestOOBEventNoStateChange(t *testing.T) {
	n, mb, _ := newNormalizer(t)
	connect(t, n, 1)
	n.OnOOBEvent(platform.OOBBluetoothEnabled, true)
	n.OnOOBEvent(platform.OOBSystemButton, platform.Handle(1))
	assert.Equal(t, normalizer.StateReady, n.State())
	assert.Equal(t, report.Neutral(), mb.Peek())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ready", normalizer.StateReady.String())
	assert.Equal(t, "unknown", normalizer.State(42).String())
}

package mailbox_test

import (
	"sync"
	"testing"
	"time"

	"github.com/padbridge/padbridge/mailbox"
	"github.com/padbridge/padbridge/report"
	"github.com/stretchr/testify/assert"
)

func TestGetBeforeSetReturnsNeutral(t *testing.T) {
	m := mailbox.New(time.Millisecond)
	assert.Equal(t, report.Neutral(), m.Get())
}

func TestMostRecentWins(t *testing.T) {
	m := mailbox.New(time.Millisecond)

	r1 := report.Neutral()
	r1.Buttons = report.ButtonA
	r2 := report.Neutral()
	r2.Buttons = report.ButtonB
	r2.LX = 0x00

	m.Set(&r1)
	m.Set(&r2)

	assert.Equal(t, r2, m.Get())
	// The slot is state, not a queue: a second Get still sees r2.
	assert.Equal(t, r2, m.Get())
}

func TestSetCopiesReport(t *testing.T) {
	m := mailbox.New(time.Millisecond)

	r := report.Neutral()
	r.Buttons = report.ButtonX
	m.Set(&r)
	r.Buttons = report.ButtonY

	assert.Equal(t, report.ButtonX, m.Get().Buttons)
}

func TestSetNilIsNoop(t *testing.T) {
	const wait = 40 * time.Millisecond
	m := mailbox.New(wait)

	m.Set(nil)
	assert.Equal(t, report.Neutral(), m.Peek())

	// No token was pushed, so Get must run into its timeout.
	start := time.Now()
	got := m.Get()
	assert.GreaterOrEqual(t, time.Since(start), wait/2)
	assert.Equal(t, report.Neutral(), got)
}

func TestSignalWakesConsumer(t *testing.T) {
	m := mailbox.New(5 * time.Second)

	want := report.Neutral()
	want.Hat = report.HatUp
	go func() {
		time.Sleep(10 * time.Millisecond)
		m.Set(&want)
	}()

	start := time.Now()
	got := m.Get()
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, want, got)
}

func TestGetTimesOutWithoutProducer(t *testing.T) {
	m := mailbox.New(5 * time.Millisecond)
	r := report.Neutral()
	r.RY = 0x10
	m.Set(&r)
	_ = m.Get() // consumes the token

	start := time.Now()
	assert.Equal(t, r, m.Get())
	assert.Less(t, time.Since(start), time.Second)
}

func TestDefaultWait(t *testing.T) {
	assert.Equal(t, mailbox.DefaultWait, mailbox.New(0).Wait())
	assert.Equal(t, 3*time.Millisecond, mailbox.New(3*time.Millisecond).Wait())
}

func TestConcurrentProducerConsumer(t *testing.T) {
	m := mailbox.New(100 * time.Microsecond)
	const n = 2000

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			r := report.Neutral()
			r.LX = uint8(i)
			r.Buttons = uint16(i) & report.ButtonMask
			m.Set(&r)
		}
	}()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < n/4; i++ {
			got := m.Get()
			// Every observed value must be a whole report written by the producer.
			if got.IsNeutral() {
				continue
			}
			assert.Equal(t, uint16(got.LX), got.Buttons&0xFF)
		}
	}()

	wg.Wait()
	<-done

	last := m.Peek()
	assert.Equal(t, uint8((n-1)%256), last.LX)
}

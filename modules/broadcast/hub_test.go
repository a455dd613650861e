package broadcast

import (
	"testing"

	"github.com/go-monolith/mono/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(msg string, args ...any)         {}
func (nopLogger) Info(msg string, args ...any)          {}
func (nopLogger) Warn(msg string, args ...any)          {}
func (nopLogger) Error(msg string, args ...any)         {}
func (l nopLogger) With(args ...any) types.Logger       { return l }
func (l nopLogger) WithError(err error) types.Logger    { return l }
func (l nopLogger) WithModule(m string) types.Logger    { return l }

func TestDeliverToRecipients(t *testing.T) {
	hub := NewHub(nopLogger{})
	c1 := hub.Attach("u1")
	c2 := hub.Attach("u2")
	hub.Attach("u3")

	hub.DeliverTo([]string{"u1", "u2", "absent"}, []byte("hello"))

	assert.Equal(t, []byte("hello"), <-c1.Receive())
	assert.Equal(t, []byte("hello"), <-c2.Receive())
}

func TestDetachClosesStream(t *testing.T) {
	hub := NewHub(nopLogger{})
	c := hub.Attach("u1")
	hub.Detach(c)

	_, open := <-c.Receive()
	assert.False(t, open, "detach closes the stream")
	assert.Zero(t, hub.ClientCount())

	// delivery after detach is a no-op
	hub.DeliverTo([]string{"u1"}, []byte("late"))
}

func TestReattachReplacesClient(t *testing.T) {
	hub := NewHub(nopLogger{})
	old := hub.Attach("u1")
	fresh := hub.Attach("u1")

	_, open := <-old.Receive()
	require.False(t, open, "old stream is closed on replace")

	hub.DeliverTo([]string{"u1"}, []byte("hi"))
	assert.Equal(t, []byte("hi"), <-fresh.Receive())

	// detaching the stale client must not remove the fresh one
	hub.Detach(old)
	assert.Equal(t, 1, hub.ClientCount())
}

func TestSaturatedClientIsSkipped(t *testing.T) {
	hub := NewHub(nopLogger{})
	c := hub.Attach("u1")

	for i := 0; i < sendBuffer+10; i++ {
		hub.DeliverTo([]string{"u1"}, []byte("x"))
	}
	assert.Len(t, c.Receive(), sendBuffer, "overflow is dropped, not blocking")
}

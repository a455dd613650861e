package observe

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRingKeepsOrderBeforeWrap(t *testing.T) {
	ring := NewRing()
	ring.Append("one")
	ring.Append("two")
	ring.Append("three")

	assert.Equal(t, []string{"one", "two", "three"}, ring.Lines())
}

func TestRingDropsOldestAfterWrap(t *testing.T) {
	ring := NewRing()
	for i := 0; i < maxLines+5; i++ {
		ring.Append(fmt.Sprintf("line-%d", i))
	}

	lines := ring.Lines()
	assert.Len(t, lines, maxLines)
	assert.Equal(t, "line-5", lines[0])
	assert.Equal(t, fmt.Sprintf("line-%d", maxLines+4), lines[maxLines-1])
}

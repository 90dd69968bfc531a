package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestReceive(t *testing.T) {
	t.Parallel()
	ch := make(chan int, 1)
	ch <- 7
	assert.Equal(t, 7, Receive(t, ch, ShortTestTimeout, "value"))
}

func TestWaitClosed(t *testing.T) {
	t.Parallel()
	ch := make(chan struct{}, 2)
	ch <- struct{}{}
	close(ch)
	WaitClosed(t, ch, ShortTestTimeout, "closed")
}

package dedup

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGuard_SeenAndAdd(t *testing.T) {
	g := NewGuard(10, 5)

	assert.False(t, g.Seen("m1"))
	g.Add("m1")
	g.Add("m1")
	assert.True(t, g.Seen("m1"))
	assert.Equal(t, 1, g.Len())
}

func TestGuard_TrimKeepsMostRecent(t *testing.T) {
	g := NewGuard(4, 2)
	for i := 1; i <= 4; i++ {
		g.Add(fmt.Sprintf("m%d", i))
	}
	assert.Equal(t, 0, g.Trim(), "no trim at exactly max")

	g.Add("m5")
	assert.Equal(t, 3, g.Trim())
	assert.Equal(t, 2, g.Len())
	assert.False(t, g.Seen("m1"))
	assert.False(t, g.Seen("m3"))
	assert.True(t, g.Seen("m4"))
	assert.True(t, g.Seen("m5"))
}

func TestGuard_Defaults(t *testing.T) {
	g := NewGuard(0, 0)
	for i := 0; i < DefaultMax+1; i++ {
		g.Add(fmt.Sprintf("m%d", i))
	}
	g.Trim()
	assert.Equal(t, DefaultKeep, g.Len())
	assert.True(t, g.Seen(fmt.Sprintf("m%d", DefaultMax)))
}

func TestGuard_Seed(t *testing.T) {
	g := NewGuard(3, 2)
	g.Seed([]string{"a", "b", "c", "d"})

	assert.Equal(t, 2, g.Len())
	assert.True(t, g.Seen("c"))
	assert.True(t, g.Seen("d"))
	assert.False(t, g.Seen("a"))
}

func TestGuard_Run(t *testing.T) {
	g := NewGuard(2, 1)
	g.Add("a")
	g.Add("b")
	g.Add("c")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return g.Len() == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.True(t, g.Seen("c"))
}

func TestGuard_HardCeilingEvictsOldest(t *testing.T) {
	g := NewGuard(2, 1)
	for i := 1; i <= 5; i++ {
		g.Add(fmt.Sprintf("m%d", i))
	}

	assert.Equal(t, 4, g.Len())
	assert.False(t, g.Seen("m1"))
	assert.True(t, g.Seen("m2"))
	assert.True(t, g.Seen("m5"))
}

func TestGuard_ReAddKeepsPosition(t *testing.T) {
	g := NewGuard(2, 1)
	g.Add("a")
	g.Add("b")
	g.Add("a")
	g.Add("c")

	assert.Equal(t, 2, g.Trim())
	assert.False(t, g.Seen("a"))
	assert.True(t, g.Seen("c"))
}

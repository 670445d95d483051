package ws

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMemoryPresence(t *testing.T) {
	p := NewMemoryPresence()
	a, b := &Client{userID: 1}, &Client{userID: 1}

	assert.Nil(t, p.Set(1, a))
	assert.Same(t, a, p.Set(1, b))

	got, ok := p.Get(1)
	assert.True(t, ok)
	assert.Same(t, b, got)

	assert.False(t, p.DeleteIf(1, a), "stale client must not remove the entry")
	assert.Equal(t, 1, p.Len())
	assert.True(t, p.DeleteIf(1, b))
	_, ok = p.Get(1)
	assert.False(t, ok)
}

func TestMemoryPresence_Concurrent(t *testing.T) {
	p := NewMemoryPresence()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			c := &Client{userID: id}
			p.Set(id, c)
			p.Get(id)
			p.DeleteIf(id, c)
		}(uint(i % 5))
	}
	wg.Wait()
	assert.LessOrEqual(t, p.Len(), 5)
}

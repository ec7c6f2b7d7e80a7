package coordinator

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestKeyedMutex_ReclaimsEntries(t *testing.T) {
	k := newKeyedMutex()
	a, b := uuid.New(), uuid.New()

	k.Lock(a)
	k.Lock(b)
	k.Unlock(a)
	assert.Len(t, k.locks, 1)
	k.Unlock(b)
	assert.Empty(t, k.locks)
}

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := newKeyedMutex()
	id := uuid.New()

	var n int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			k.Lock(id)
			n++
			k.Unlock(id)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, n)
	assert.Empty(t, k.locks)
}

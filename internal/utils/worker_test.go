package utils

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	tomb "gopkg.in/tomb.v2"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(4)

	var lock sync.Mutex
	var wg sync.WaitGroup
	seen := make(map[int]bool)
	pool.Setup(&tb, func(_ *tomb.Tomb, task any) error {
		lock.Lock()
		seen[task.(int)] = true
		lock.Unlock()
		wg.Done()
		return nil
	})

	for i := 0; i < 50; i++ {
		wg.Add(1)
		assert.True(t, pool.AddTask(&tb, i))
	}
	wg.Wait()
	assert.Len(t, seen, 50)

	tb.Kill(nil)
	assert.NoError(t, tb.Wait())
	assert.False(t, pool.AddTask(&tb, 51))
}

func TestWorkerPool_ErrorKillsTomb(t *testing.T) {
	var tb tomb.Tomb
	pool := NewWorkerPool(2)
	boom := errors.New("boom")
	pool.Setup(&tb, func(_ *tomb.Tomb, task any) error {
		return boom
	})

	pool.AddTask(&tb, "task")
	select {
	case <-tb.Dead():
	case <-time.After(time.Second):
		t.Fatal("tomb still alive")
	}
	assert.ErrorIs(t, tb.Err(), boom)
}

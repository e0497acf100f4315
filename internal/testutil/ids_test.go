package testutil

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFixedIDGenerator_InOrder(t *testing.T) {
	gen := NewFixedIDGenerator("q-1", "q-2")

	assert.Equal(t, "q-1", gen.Generate())
	assert.Equal(t, "q-2", gen.Generate())
	assert.PanicsWithValue(t, "FixedIDGenerator: all ids exhausted", func() { gen.Generate() })
}

func TestSequentialIDGenerator(t *testing.T) {
	gen := NewSequentialIDGenerator("cohort")

	assert.Equal(t, "cohort-0001", gen.Generate())
	assert.Equal(t, "cohort-0002", gen.Generate())

	gen.Reset()
	assert.Equal(t, "cohort-0001", gen.Generate())
}

func TestSequentialIDGenerator_DefaultPrefix(t *testing.T) {
	assert.Equal(t, "query-0001", NewSequentialIDGenerator("").Generate())
}

func TestSequentialIDGenerator_ThreadSafe(t *testing.T) {
	gen := NewSequentialIDGenerator("q")

	var (
		mu   sync.Mutex
		seen = make(map[string]bool)
		wg   sync.WaitGroup
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				id := gen.Generate()
				mu.Lock()
				seen[id] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 1000)
	assert.Equal(t, "q-1001", gen.Generate())
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(t)
	assert.True(t, logger.Enabled(context.Background(), slog.LevelDebug))
	logger.Debug("logger works", "n", 1)
}

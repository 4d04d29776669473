package parallel

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFor(t *testing.T) {
	for _, cfg := range []Config{DefaultConfig(), Sequential(), {Enabled: true, NumWorkers: 3, MinChunkSize: 1}} {
		var counter int64
		seen := make([]int32, 1000)

		For(len(seen), func(i int) {
			atomic.AddInt64(&counter, 1)
			atomic.AddInt32(&seen[i], 1)
		}, cfg)

		assert.Equal(t, int64(len(seen)), counter)
		for i, v := range seen {
			assert.Equal(t, int32(1), v, "index %d visited %d times", i, v)
		}
	}
}

func TestFor_Empty(t *testing.T) {
	called := false
	For(0, func(int) { called = true }, DefaultConfig())
	assert.False(t, called)
}

func TestForGrid(t *testing.T) {
	outer, inner := 4, 7
	results := make([][]bool, outer)
	for o := range results {
		results[o] = make([]bool, inner)
	}

	ForGrid(outer, inner, func(o, i int) {
		results[o][i] = true
	}, Config{Enabled: true, NumWorkers: 4, MinChunkSize: 1})

	for o := range results {
		for i := range results[o] {
			assert.True(t, results[o][i], "missing result at [%d][%d]", o, i)
		}
	}
}

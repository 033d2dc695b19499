package main

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGoAllWaitsForEveryLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var stopped int32
	loop := func(ctx context.Context) {
		<-ctx.Done()
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&stopped, 1)
	}
	quick := func(context.Context) { atomic.AddInt32(&stopped, 1) }

	wg := goAll(ctx, loop, loop, quick)
	cancel()
	wg.Wait()

	assert.Equal(t, int32(3), atomic.LoadInt32(&stopped))
}

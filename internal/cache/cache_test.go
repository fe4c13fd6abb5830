package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/alumnet-backend/pkg/metrics"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestSetGetExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{Now: clock.Now})

	c.Set("k", []byte("v1"), time.Minute)
	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "v1", string(got))

	clock.Advance(time.Minute)
	_, ok = c.Get("k")
	assert.True(t, ok, "entry is valid at its expiry instant")

	clock.Advance(time.Nanosecond)
	_, ok = c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len(), "stale entry is deleted on read")
}

func TestSetOverwritesValueAndExpiry(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{Now: clock.Now})

	c.Set("k", []byte("old"), time.Second)
	c.Set("k", []byte("new"), time.Hour)
	clock.Advance(time.Minute)

	got, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", string(got))
}

func TestValuesAreCopied(t *testing.T) {
	c := New(Options{})
	payload := []byte("abc")
	c.Set("k", payload, time.Minute)
	payload[0] = 'z'

	got, _ := c.Get("k")
	assert.Equal(t, "abc", string(got))
	got[1] = 'z'
	again, _ := c.Get("k")
	assert.Equal(t, "abc", string(again))
}

func TestDeleteClearAndPrefix(t *testing.T) {
	c := New(Options{})
	c.Set("dashboard:metrics", []byte("m"), time.Minute)
	c.Set("dashboard:activities:10", []byte("a"), time.Minute)
	c.Set("other", []byte("o"), time.Minute)

	assert.Equal(t, 2, c.DeletePrefix("dashboard:"))
	assert.Equal(t, 1, c.Len())

	c.Delete("other")
	_, ok := c.Get("other")
	assert.False(t, ok)

	c.Set("x", []byte("x"), time.Minute)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{Now: clock.Now, SweepBatch: 3})
	for i := 0; i < 10; i++ {
		c.Set(fmt.Sprintf("short-%d", i), []byte("s"), time.Second)
	}
	c.Set("long", []byte("l"), time.Hour)

	clock.Advance(2 * time.Second)
	assert.Equal(t, 11, c.Len())
	assert.Equal(t, 10, c.Sweep())
	assert.Equal(t, 1, c.Len())
	assert.Equal(t, 0, c.Sweep())
}

func TestStartStopRunsSweep(t *testing.T) {
	clock := newFakeClock()
	c := New(Options{Now: clock.Now, SweepInterval: 5 * time.Millisecond})
	c.Set("k", []byte("v"), time.Second)
	clock.Advance(time.Minute)

	c.Start(context.Background())
	c.Start(context.Background())
	require.Eventually(t, func() bool { return c.Len() == 0 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()
}

func TestGetOrLoadCollapsesConcurrentMisses(t *testing.T) {
	c := New(Options{})
	var calls atomic.Int32
	release := make(chan struct{})
	load := func(context.Context) ([]byte, error) {
		calls.Add(1)
		<-release
		return []byte("computed"), nil
	}

	var wg sync.WaitGroup
	results := make([]string, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.GetOrLoad(context.Background(), "k", time.Minute, load)
			if err != nil {
				t.Errorf("load: %v", err)
				return
			}
			results[i] = string(v)
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, "computed", v)
	}
	cached, ok := c.Get("k")
	require.True(t, ok)
	assert.Equal(t, "computed", string(cached))
}

func TestGetOrLoadDoesNotCacheErrors(t *testing.T) {
	c := New(Options{})
	boom := errors.New("query failed")
	_, err := c.GetOrLoad(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
		return nil, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrLoad(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("ok"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", string(v))
}

func TestGetOrLoadCallerCancellation(t *testing.T) {
	c := New(Options{})
	release := make(chan struct{})
	defer close(release)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.GetOrLoad(ctx, "slow", time.Minute, func(context.Context) ([]byte, error) {
		<-release
		return []byte("late"), nil
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCacheMetricsRecorded(t *testing.T) {
	reg := prometheus.NewRegistry()
	clock := newFakeClock()
	c := New(Options{Name: "dashboard", Now: clock.Now, Metrics: metrics.NewCacheMetrics(reg)})

	c.Set("k", []byte("v"), time.Second)
	c.Get("k")
	c.Get("missing")
	clock.Advance(time.Minute)
	c.Set("k2", []byte("v"), time.Nanosecond)
	clock.Advance(time.Second)
	c.Sweep()

	mfs, err := reg.Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() != nil {
				values[mf.GetName()] = m.GetCounter().GetValue()
			}
		}
	}
	assert.Equal(t, 1.0, values["alumnet_cache_hits_total"])
	assert.Equal(t, 1.0, values["alumnet_cache_misses_total"])
	assert.Equal(t, 2.0, values["alumnet_cache_evictions_total"])
}

func TestInvalidationDiscardsRunningLoad(t *testing.T) {
	c := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	type result struct {
		value []byte
		err   error
	}
	first := make(chan result, 1)
	go func() {
		v, err := c.GetOrLoad(context.Background(), "dash:metrics", time.Minute, func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("before"), nil
		})
		first <- result{value: v, err: err}
	}()
	<-started
	assert.Equal(t, 0, c.DeletePrefix("dash:"))

	v, err := c.GetOrLoad(context.Background(), "dash:metrics", time.Minute, func(context.Context) ([]byte, error) {
		return []byte("after"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, "after", string(v), "callers after invalidation must not join the running load")

	close(release)
	res := <-first
	require.NoError(t, res.err)
	assert.Equal(t, "before", string(res.value))

	cached, ok := c.Get("dash:metrics")
	require.True(t, ok)
	assert.Equal(t, "after", string(cached))
}

func TestDeleteDuringLoadKeepsResultOut(t *testing.T) {
	c := New(Options{})
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := c.GetOrLoad(context.Background(), "k", time.Minute, func(context.Context) ([]byte, error) {
			close(started)
			<-release
			return []byte("stale"), nil
		})
		done <- err
	}()
	<-started
	c.Delete("k")
	close(release)
	require.NoError(t, <-done)

	_, ok := c.Get("k")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

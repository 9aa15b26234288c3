package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type publisherStub struct {
	mu    sync.Mutex
	calls []time.Time
	n     int64
	err   error
}

func (p *publisherStub) PublishDue(ctx context.Context, now time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, now)
	return p.n, p.err
}

func (p *publisherStub) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func TestPublishDuePassesUTCNow(t *testing.T) {
	stub := &publisherStub{n: 2}
	s := NewService(stub, nil, zerolog.Nop())
	loc := time.FixedZone("UTC+3", 3*60*60)
	s.now = func() time.Time { return time.Date(2026, 2, 20, 9, 0, 0, 0, loc) }

	n, err := s.PublishDue(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 2, n)
	require.Equal(t, time.UTC, stub.calls[0].Location())
	require.Equal(t, 6, stub.calls[0].Hour())
}

func TestPublishDueWrapsError(t *testing.T) {
	boom := errors.New("boom")
	s := NewService(&publisherStub{err: boom}, nil, zerolog.Nop())
	_, err := s.PublishDue(context.Background())
	require.ErrorIs(t, err, boom)
}

func TestRunStopsOnCancel(t *testing.T) {
	stub := &publisherStub{}
	s := NewService(stub, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx, 10*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return stub.count() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

type lockStub struct {
	taken map[string]bool
}

func (l *lockStub) Once(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) (bool, error) {
	if l.taken[key] {
		return false, nil
	}
	l.taken[key] = true
	return true, fn(ctx)
}

func TestTickPublishesOncePerInterval(t *testing.T) {
	stub := &publisherStub{}
	lock := &lockStub{taken: map[string]bool{}}
	s := NewService(stub, lock, zerolog.Nop())
	at := time.Date(2026, 2, 20, 9, 0, 10, 0, time.UTC)
	s.now = func() time.Time { return at }

	require.NoError(t, s.tick(context.Background(), time.Minute))
	at = at.Add(20 * time.Second)
	require.NoError(t, s.tick(context.Background(), time.Minute))
	require.Equal(t, 1, stub.count())

	at = at.Add(time.Minute)
	require.NoError(t, s.tick(context.Background(), time.Minute))
	require.Equal(t, 2, stub.count())
}

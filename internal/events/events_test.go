package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, time.Second, 5*time.Millisecond)
}

func TestBroker_FanOut(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Change, 4)
	for i := 0; i < 2; i++ {
		go b.Subscribe(ctx, func(_ context.Context, c Change) error {
			got <- c
			return nil
		})
	}
	waitFor(t, func() bool { return b.Subscribers() == 2 })

	require.NoError(t, b.Publish(ctx, Change{Entity: EntityCategory, Op: OpSaved, ID: "food"}))

	for i := 0; i < 2; i++ {
		select {
		case c := <-got:
			assert.Equal(t, "food", c.ID)
			assert.False(t, c.At.IsZero(), "publish stamps the change")
		case <-time.After(time.Second):
			t.Fatal("change not delivered")
		}
	}
}

func TestBroker_SubscribeReturnsOnCancel(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- b.Subscribe(ctx, func(context.Context, Change) error { return nil }) }()
	waitFor(t, func() bool { return b.Subscribers() == 1 })

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("subscribe did not return")
	}
	assert.Equal(t, 0, b.Subscribers())
}

func TestBroker_HandlerErrorKeepsSubscription(t *testing.T) {
	b := NewBroker()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 2)
	go b.Subscribe(ctx, func(context.Context, Change) error {
		calls <- struct{}{}
		return errors.New("boom")
	})
	waitFor(t, func() bool { return b.Subscribers() == 1 })

	_ = b.Publish(ctx, Change{ID: "1"})
	_ = b.Publish(ctx, Change{ID: "2"})
	for i := 0; i < 2; i++ {
		select {
		case <-calls:
		case <-time.After(time.Second):
			t.Fatalf("handler call %d missing", i+1)
		}
	}
}

func TestNop(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	var n Nop
	assert.NoError(t, n.Publish(ctx, Change{}))
	assert.ErrorIs(t, n.Subscribe(ctx, nil), context.DeadlineExceeded)
}

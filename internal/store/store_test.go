package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pantypost/order-sync/internal/orders"
)

type fakeSource struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}

	mu   sync.Mutex
	docs []json.RawMessage
	err  error
}

func (f *fakeSource) GetOrders(ctx context.Context, _ orders.Filter) ([]json.RawMessage, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.docs, f.err
}

func raw(id, status string) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"title":"Item %s","price":10,"seller":"bob","buyer":"alice","shippingStatus":%q}`,
		id, id, status))
}

func ids(s Snapshot) []string {
	out := make([]string, 0, len(s.Orders))
	for _, o := range s.Orders {
		out = append(out, o.ID)
	}
	return out
}

func TestMergeOneIdempotent(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)

	first, changed, err := s.MergeOne(raw("o-1", "processing"))
	require.NoError(t, err)
	assert.True(t, changed)

	second, changed, err := s.MergeOne(raw("o-1", "processing"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, first.Orders, second.Orders)
}

func TestMergeOneInsertsAtFront(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	_, err := s.MergeFullLoad([]json.RawMessage{raw("o-1", "pending"), raw("o-2", "pending")})
	require.NoError(t, err)

	snap, changed, err := s.MergeOne(raw("o-3", "pending"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"o-3", "o-1", "o-2"}, ids(snap))

	// an advance replaces in place and keeps everyone else where they were
	snap, changed, err = s.MergeOne(raw("o-2", "shipped"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, []string{"o-3", "o-1", "o-2"}, ids(snap))
	o, ok := s.Get("o-2")
	require.True(t, ok)
	assert.Equal(t, orders.ShippingShipped, o.ShippingStatus)
}

func TestNonRegression(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	_, _, err := s.MergeOne(raw("o-1", "shipped"))
	require.NoError(t, err)

	_, changed, err := s.MergeOne(raw("o-1", "pending"))
	require.NoError(t, err)
	assert.False(t, changed)
	o, _ := s.Get("o-1")
	assert.Equal(t, orders.ShippingShipped, o.ShippingStatus)
}

func TestStalePushAfterFullLoad(t *testing.T) {
	src := &fakeSource{docs: []json.RawMessage{raw("x", "delivered")}}
	s := New("alice", src, nil)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	_, changed, err := s.MergeOne(raw("x", "processing"))
	require.NoError(t, err)
	assert.False(t, changed)

	snap := s.Snapshot()
	require.Len(t, snap.Orders, 1)
	assert.Equal(t, orders.ShippingDelivered, snap.Orders[0].ShippingStatus)
}

func TestEqualRankNeedsNewerTimestamp(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	_, _, err := s.MergeOne(json.RawMessage(`{"id":"o-1","price":10,"seller":"bob","buyer":"alice",
		"updatedAt":"2026-10-02T00:00:00Z","deliveryAddress":{"fullName":"Alice","addressLine1":"1 Main St"}}`))
	require.NoError(t, err)

	// stale copy without the address
	_, changed, err := s.MergeOne(json.RawMessage(`{"id":"o-1","price":10,"seller":"bob","buyer":"alice",
		"updatedAt":"2026-10-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.False(t, changed)

	_, changed, err = s.MergeOne(json.RawMessage(`{"id":"o-1","price":10,"seller":"bob","buyer":"alice"}`))
	require.NoError(t, err)
	assert.False(t, changed, "undated copy cannot replace a dated one")

	o, _ := s.Get("o-1")
	assert.True(t, o.HasAddress())
}

func TestNoDuplication(t *testing.T) {
	src := &fakeSource{docs: []json.RawMessage{raw("o-1", "pending"), raw("o-1", "processing"), raw("o-2", "pending")}}
	s := New("alice", src, nil)

	_, _, err := s.MergeOne(raw("o-1", "pending"))
	require.NoError(t, err)
	snap, err := s.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1", "o-2"}, ids(snap))
	assert.Equal(t, orders.ShippingProcessing, snap.Orders[0].ShippingStatus)

	snap, _, err = s.MergeOne(raw("o-1", "shipped"))
	require.NoError(t, err)
	assert.Equal(t, []string{"o-1", "o-2"}, ids(snap))
}

func TestMergeFullLoadCountsRejects(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	snap, err := s.MergeFullLoad([]json.RawMessage{
		raw("o-1", "pending"),
		json.RawMessage(`{"id":"bad","seller":"bob","buyer":"alice"}`),
		json.RawMessage(`{"id":"worse","price":-5,"seller":"bob","buyer":"alice"}`),
	})
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Rejected)
	assert.Equal(t, []string{"o-1"}, ids(snap))
}

func TestMergeFullLoadAllInvalidKeepsLastKnownGood(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	_, err := s.MergeFullLoad([]json.RawMessage{raw("o-1", "pending")})
	require.NoError(t, err)

	snap, err := s.MergeFullLoad([]json.RawMessage{json.RawMessage(`{}`), json.RawMessage(`nope`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoValidOrders)
	assert.Equal(t, "2 orders could not be loaded", err.Error())
	assert.Equal(t, []string{"o-1"}, ids(snap))
}

func TestMergeFullLoadRemovesAbsent(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	_, err := s.MergeFullLoad([]json.RawMessage{raw("o-1", "pending"), raw("o-2", "pending")})
	require.NoError(t, err)

	snap, err := s.MergeFullLoad([]json.RawMessage{raw("o-2", "pending")})
	require.NoError(t, err)
	assert.Equal(t, []string{"o-2"}, ids(snap))

	snap, err = s.MergeFullLoad(nil)
	require.NoError(t, err)
	assert.Empty(t, snap.Orders)
}

func TestLoadTransportErrorKeepsSet(t *testing.T) {
	src := &fakeSource{docs: []json.RawMessage{raw("o-1", "pending")}}
	s := New("alice", src, nil)
	_, err := s.Load(context.Background())
	require.NoError(t, err)

	src.mu.Lock()
	src.err = errors.New("502 bad gateway")
	src.mu.Unlock()

	snap, err := s.Load(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, orders.ErrTransport)
	assert.Equal(t, []string{"o-1"}, ids(snap))
	assert.ErrorIs(t, s.Snapshot().Err, orders.ErrTransport)
}

func TestConcurrentLoadsShareOneCall(t *testing.T) {
	src := &fakeSource{
		docs:    []json.RawMessage{raw("o-1", "pending")},
		started: make(chan struct{}, 2),
		release: make(chan struct{}),
	}
	s := New("alice", src, nil)

	var wg sync.WaitGroup
	results := make([]Snapshot, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.Load(context.Background())
	}()
	<-src.started

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = s.Load(context.Background())
	}()
	time.Sleep(50 * time.Millisecond)
	close(src.release)
	wg.Wait()

	assert.Equal(t, int32(1), src.calls.Load())
	assert.Equal(t, results[0].Orders, results[1].Orders)
}

func TestLoadCallerCancelDoesNotAbortShared(t *testing.T) {
	src := &fakeSource{
		docs:    []json.RawMessage{raw("o-1", "pending")},
		started: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	s := New("alice", src, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Load(ctx)
		done <- err
	}()
	<-src.started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)

	close(src.release)
	require.Eventually(t, func() bool { return s.Len() == 1 }, time.Second, 10*time.Millisecond)
}

func TestHas(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)
	_, _, err := s.MergeOne(raw("o-1", "pending"))
	require.NoError(t, err)
	assert.True(t, s.Has(func(o orders.Order) bool { return o.ID == "o-1" }))
	assert.False(t, s.Has(func(o orders.Order) bool { return o.WasAuction }))
}

func TestMergeOneRejectsForeignOrder(t *testing.T) {
	s := New("alice", &fakeSource{}, nil)

	_, changed, err := s.MergeOne(json.RawMessage(`{"id":"o-x","price":5,"buyer":"mallory","seller":"eve"}`))
	assert.ErrorIs(t, err, ErrNotInvolved)
	assert.False(t, changed)
	assert.Empty(t, ids(s.Snapshot()))

	_, changed, err = s.MergeOne(json.RawMessage(`{"id":"o-y","price":5,"buyer":"mallory","seller":"alice"}`))
	require.NoError(t, err)
	assert.True(t, changed, "the seller side is involved too")
}

func TestMergeFullLoadKeepsSyntheticTwins(t *testing.T) {
	twin := json.RawMessage(`{"title":"Socks","price":12,"seller":"bob","buyer":"alice","date":"2026-10-01"}`)
	s := New("alice", &fakeSource{}, nil)

	snap, err := s.MergeFullLoad([]json.RawMessage{twin, twin, raw("o-1", "pending")})
	require.NoError(t, err)
	require.Len(t, snap.Orders, 3)
	first := snap.Orders[0].ID
	assert.Equal(t, first+"-2", snap.Orders[1].ID)

	again, err := s.MergeFullLoad([]json.RawMessage{twin, twin, raw("o-1", "pending")})
	require.NoError(t, err)
	assert.Equal(t, ids(snap), ids(again), "ids are stable across loads")

	_, changed, err := s.MergeOne(twin)
	require.NoError(t, err)
	assert.False(t, changed, "a pushed copy lands on the first twin")
	assert.Len(t, s.Snapshot().Orders, 3)
}

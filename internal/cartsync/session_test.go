package cartsync

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/errors"
	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type notices struct {
	mu  sync.Mutex
	got []Notice
}

func (n *notices) add(notice Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.got = append(n.got, notice)
}

func (n *notices) all() []Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notice(nil), n.got...)
}

func newSession(t *testing.T, api *fakeAPI) (*Session, *manualClock, *notices) {
	t.Helper()

	clock := &manualClock{}
	seen := &notices{}
	session := NewSession(api, Options{Clock: clock, OnError: seen.add})
	t.Cleanup(session.Close)

	require.NoError(t, session.Load(context.Background()))
	return session, clock, seen
}

func quantity(t *testing.T, s *Session, itemID uuid.UUID) int {
	t.Helper()
	q, ok := s.State().Quantity(itemID)
	require.True(t, ok, "item %s missing from projection", itemID)
	return q
}

func TestSetQuantity_CoalescesRapidChanges(t *testing.T) {

	item := newItem(1, "10.00")
	api := newFakeAPI(item)
	session, clock, _ := newSession(t, api)

	for _, q := range []int{2, 3, 4} {
		require.NoError(t, session.SetQuantity(item.ID, q))
		assert.Equal(t, q, quantity(t, session, item.ID), "local value applies immediately")
		clock.Advance(300 * time.Millisecond)
	}

	// Every change restarted the timer, so nothing has been sent yet.
	assert.Empty(t, api.calls())
	line, _ := session.State().Line(item.ID)
	assert.Equal(t, PendingLocalChange, line.Status)

	clock.Advance(100 * time.Millisecond)
	session.Wait()

	assert.Equal(t, []update{{ItemID: item.ID, Quantity: 4}}, api.calls())

	state := session.State()
	line, _ = state.Line(item.ID)
	assert.Equal(t, Settled, line.Status)
	assert.Equal(t, 4, line.Confirmed.Quantity)
	assert.Equal(t, 4, state.Summary.ItemCount)
	assert.True(t, decimal.RequireFromString("40").Equal(state.Summary.Total))
	assert.True(t, state.Settled())
}

func TestSetQuantity_RollsBackOnRejection(t *testing.T) {

	item := newItem(2, "10.00")
	api := newFakeAPI(item)
	api.failUpdate = &APIError{
		StatusCode: http.StatusConflict,
		Code:       errors.ErrCodeInsufficientStock,
		Message:    "Only 3 of Mug available, requested 5",
	}
	session, clock, seen := newSession(t, api)

	require.NoError(t, session.SetQuantity(item.ID, 5))
	assert.Equal(t, 5, quantity(t, session, item.ID))
	assert.True(t, decimal.RequireFromString("50").Equal(session.State().Summary.Subtotal))

	clock.Advance(DefaultDebounce)
	session.Wait()

	state := session.State()
	assert.Equal(t, 2, quantity(t, session, item.ID))

	line, _ := state.Line(item.ID)
	assert.Equal(t, RolledBack, line.Status)
	assert.Equal(t, "Only 3 of Mug available, requested 5", line.Error)
	assert.Equal(t, line.Error, state.LastError)

	assert.Equal(t, 2, state.Summary.ItemCount)
	assert.True(t, decimal.RequireFromString("20").Equal(state.Summary.Subtotal))
	assert.True(t, decimal.RequireFromString("20").Equal(state.Summary.Total))
	assert.True(t, decimal.RequireFromString("20").Equal(state.Cart.Items[0].Total))

	got := seen.all()
	require.Len(t, got, 1)
	assert.Equal(t, item.ID, got[0].ItemID)
	assert.Equal(t, "Only 3 of Mug available, requested 5", got[0].Message)

	session.DismissError(item.ID)
	line, _ = session.State().Line(item.ID)
	assert.Equal(t, Settled, line.Status)
	assert.Empty(t, line.Error)
}

func TestSetQuantity_TransportFailureUsesGenericMessage(t *testing.T) {

	item := newItem(1, "4.00")
	api := newFakeAPI(item)
	api.failUpdate = context.DeadlineExceeded
	session, clock, seen := newSession(t, api)

	require.NoError(t, session.SetQuantity(item.ID, 2))
	clock.Advance(DefaultDebounce)
	session.Wait()

	assert.Equal(t, 1, quantity(t, session, item.ID))
	got := seen.all()
	require.Len(t, got, 1)
	assert.Equal(t, genericFailure, got[0].Message)
	assert.ErrorIs(t, got[0].Err, context.DeadlineExceeded)
}

func TestSetQuantity_QueuesBehindInFlightRequest(t *testing.T) {

	item := newItem(1, "10.00")
	api := newFakeAPI(item)
	api.started = make(chan update, 4)
	api.release = make(chan struct{})
	session, clock, _ := newSession(t, api)

	require.NoError(t, session.SetQuantity(item.ID, 2))
	clock.Advance(DefaultDebounce)
	assert.Equal(t, update{ItemID: item.ID, Quantity: 2}, <-api.started)

	line, _ := session.State().Line(item.ID)
	assert.Equal(t, InFlight, line.Status)

	// A newer value while the first request is outstanding is applied locally
	// but not sent.
	require.NoError(t, session.SetQuantity(item.ID, 3))
	clock.Advance(DefaultDebounce)
	assert.Equal(t, 3, quantity(t, session, item.ID))
	assert.Len(t, api.calls(), 1)

	close(api.release)
	session.Wait()

	assert.Equal(t, []update{
		{ItemID: item.ID, Quantity: 2},
		{ItemID: item.ID, Quantity: 3},
	}, api.calls())

	line, _ = session.State().Line(item.ID)
	assert.Equal(t, Settled, line.Status)
	assert.Equal(t, 3, line.Confirmed.Quantity)
	assert.Equal(t, 3, quantity(t, session, item.ID))
}

func TestSetQuantity_StaleResponseKeepsNewerLocalValue(t *testing.T) {

	item := newItem(1, "10.00")
	api := newFakeAPI(item)
	api.started = make(chan update, 4)
	api.release = make(chan struct{})
	session, clock, _ := newSession(t, api)

	require.NoError(t, session.SetQuantity(item.ID, 2))
	clock.Advance(DefaultDebounce)
	<-api.started

	// The newer edit's timer is still armed when the first response lands.
	require.NoError(t, session.SetQuantity(item.ID, 7))
	close(api.release)
	session.Wait()

	state := session.State()
	line, _ := state.Line(item.ID)
	assert.Equal(t, PendingLocalChange, line.Status)
	assert.Equal(t, 2, line.Confirmed.Quantity)
	assert.Equal(t, 7, quantity(t, session, item.ID))
	assert.Equal(t, 7, state.Summary.ItemCount)

	clock.Advance(DefaultDebounce)
	session.Wait()

	assert.Equal(t, []update{
		{ItemID: item.ID, Quantity: 2},
		{ItemID: item.ID, Quantity: 7},
	}, api.calls())
}

func TestSetQuantity_ItemsSyncIndependently(t *testing.T) {

	first := newItem(1, "10.00")
	second := newItem(1, "2.50")
	api := newFakeAPI(first, second)
	api.started = make(chan update, 4)
	api.release = make(chan struct{})
	session, clock, _ := newSession(t, api)

	require.NoError(t, session.SetQuantity(first.ID, 2))
	clock.Advance(DefaultDebounce)
	assert.Equal(t, first.ID, (<-api.started).ItemID)

	require.NoError(t, session.SetQuantity(second.ID, 4))
	clock.Advance(DefaultDebounce)
	assert.Equal(t, second.ID, (<-api.started).ItemID, "second item is not held back by the first")

	close(api.release)
	session.Wait()

	state := session.State()
	assert.True(t, state.Settled())
	assert.Equal(t, 2, quantity(t, session, first.ID))
	assert.Equal(t, 4, quantity(t, session, second.ID))
	assert.True(t, decimal.RequireFromString("30").Equal(state.Summary.Total))
}

func TestSetQuantity_Errors(t *testing.T) {

	item := newItem(1, "10.00")
	session, _, _ := newSession(t, newFakeAPI(item))

	assert.ErrorIs(t, session.SetQuantity(item.ID, -1), ErrNegativeQuantity)
	assert.ErrorIs(t, session.SetQuantity(uuid.New(), 1), ErrUnknownItem)

	session.Close()
	assert.ErrorIs(t, session.SetQuantity(item.ID, 2), ErrClosed)
}

func TestSetQuantity_ZeroRemovesOnServer(t *testing.T) {

	item := newItem(3, "1.00")
	api := newFakeAPI(item)
	session, clock, _ := newSession(t, api)

	require.NoError(t, session.SetQuantity(item.ID, 0))
	clock.Advance(DefaultDebounce)
	session.Wait()

	state := session.State()
	assert.Empty(t, state.Cart.Items)
	_, ok := state.Line(item.ID)
	assert.False(t, ok)
}

func TestRemoveItem(t *testing.T) {

	t.Run("confirmed", func(t *testing.T) {
		first, second := newItem(1, "10.00"), newItem(2, "3.00")
		api := newFakeAPI(first, second)
		session, clock, _ := newSession(t, api)

		// A pending edit is superseded by the removal and never sent.
		require.NoError(t, session.SetQuantity(first.ID, 5))

		done := session.RemoveItem(first.ID)
		_, ok := session.State().Quantity(first.ID)
		assert.False(t, ok, "removal is applied before the server answers")

		require.NoError(t, <-done)
		clock.Advance(DefaultDebounce)
		session.Wait()

		assert.Empty(t, api.calls())
		state := session.State()
		require.Len(t, state.Cart.Items, 1)
		assert.Equal(t, second.ID, state.Cart.Items[0].ID)
		assert.True(t, decimal.RequireFromString("6").Equal(state.Summary.Total))
	})

	t.Run("rolled back", func(t *testing.T) {
		first, second := newItem(1, "10.00"), newItem(2, "3.00")
		api := newFakeAPI(first, second)
		api.failRemove = &APIError{StatusCode: http.StatusNotFound, Code: errors.ErrCodeCartItemNotFound, Message: "Cart item not found"}
		session, _, seen := newSession(t, api)

		err := <-session.RemoveItem(first.ID)
		require.Error(t, err)
		session.Wait()

		state := session.State()
		require.Len(t, state.Cart.Items, 2)
		assert.Equal(t, first.ID, state.Cart.Items[0].ID, "restored at its original position")
		line, _ := state.Line(first.ID)
		assert.Equal(t, RolledBack, line.Status)
		assert.False(t, line.Removing)
		assert.True(t, decimal.RequireFromString("16").Equal(state.Summary.Total))
		assert.Len(t, seen.all(), 1)
	})

	t.Run("unknown item", func(t *testing.T) {
		session, _, _ := newSession(t, newFakeAPI(newItem(1, "1.00")))
		assert.ErrorIs(t, <-session.RemoveItem(uuid.New()), ErrUnknownItem)
	})
}

func TestClear(t *testing.T) {

	t.Run("confirmed", func(t *testing.T) {
		api := newFakeAPI(newItem(1, "10.00"), newItem(2, "3.00"))
		session, _, _ := newSession(t, api)

		done := session.Clear()
		assert.Empty(t, session.State().Cart.Items)
		require.NoError(t, <-done)
		session.Wait()

		state := session.State()
		assert.Empty(t, state.Cart.Items)
		assert.Empty(t, state.Lines)
		assert.True(t, state.Summary.Total.IsZero())
		assert.True(t, state.Settled())
	})

	t.Run("rolled back", func(t *testing.T) {
		api := newFakeAPI(newItem(1, "10.00"), newItem(2, "3.00"))
		api.failClear = &APIError{StatusCode: http.StatusGone, Code: errors.ErrCodeCartExpired, Message: "Cart has expired"}
		session, _, seen := newSession(t, api)

		require.Error(t, <-session.Clear())
		session.Wait()

		state := session.State()
		assert.Len(t, state.Cart.Items, 2)
		assert.Nil(t, state.Cleared)
		assert.Equal(t, "Cart has expired", state.LastError)
		assert.Equal(t, 3, state.Summary.ItemCount)
		require.Len(t, seen.all(), 1)
		assert.Equal(t, uuid.Nil, seen.all()[0].ItemID)
	})
}

func TestAddItem_AdoptsServerCart(t *testing.T) {

	api := newFakeAPI()

	var mu sync.Mutex
	var last State
	session := NewSession(api, Options{Clock: &manualClock{}, OnChange: func(state State) {
		mu.Lock()
		defer mu.Unlock()
		last = state
	}})
	t.Cleanup(session.Close)
	require.NoError(t, session.Load(context.Background()))

	productID := uuid.New()
	result, err := session.AddItem(context.Background(), productID, 2)
	require.NoError(t, err)
	session.Wait()

	state := session.State()
	require.Len(t, state.Cart.Items, 1)
	assert.Equal(t, result.AddedItem.ID, state.Cart.Items[0].ID)
	assert.Equal(t, productID, state.Cart.Items[0].ProductID)
	line, ok := state.Line(result.AddedItem.ID)
	require.True(t, ok)
	assert.Equal(t, Settled, line.Status)
	assert.True(t, models.Summarize(result.Cart).Total.Equal(state.Summary.Total))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, last.Cart.Items, 1)
	assert.Equal(t, result.AddedItem.ID, last.Cart.Items[0].ID)
}

func TestSession_ListenerSeesStatesInOrder(t *testing.T) {

	item := newItem(1, "10.00")
	api := newFakeAPI(item)
	api.started = make(chan update, 4)
	api.release = make(chan struct{})
	clock := &manualClock{}

	entered := make(chan struct{})
	gate := make(chan struct{})
	blocked := true

	var mu sync.Mutex
	var seen []int

	session := NewSession(api, Options{Clock: clock, OnChange: func(state State) {
		// Only the delivery goroutine touches blocked.
		if blocked {
			blocked = false
			close(entered)
			<-gate
		}
		q, _ := state.Quantity(item.ID)
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, q)
	}})
	t.Cleanup(session.Close)

	require.NoError(t, session.Load(context.Background()))
	<-entered

	// The listener is stuck on the loaded state while the 2 is confirmed.
	require.NoError(t, session.SetQuantity(item.ID, 2))
	clock.Advance(DefaultDebounce)
	<-api.started
	close(api.release)
	require.Eventually(t, func() bool {
		line, _ := session.State().Line(item.ID)
		return line.Status == Settled && line.Confirmed.Quantity == 2
	}, time.Second, time.Millisecond)

	require.NoError(t, session.SetQuantity(item.ID, 7))

	close(gate)
	session.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, seen)
	assert.Equal(t, 1, seen[0])
	assert.Equal(t, 7, seen[len(seen)-1], "the listener ends on the newest state")
	for i := 1; i < len(seen); i++ {
		assert.GreaterOrEqual(t, seen[i], seen[i-1], "states arrive in order: %v", seen)
	}
}

func TestClear_FailureRollsBackUnsentEdits(t *testing.T) {

	item := newItem(2, "10.00")
	api := newFakeAPI(item)
	api.failClear = &APIError{StatusCode: http.StatusGone, Code: errors.ErrCodeCartExpired, Message: "Cart has expired"}
	session, clock, _ := newSession(t, api)

	require.NoError(t, session.SetQuantity(item.ID, 5))
	require.Error(t, <-session.Clear())
	session.Wait()

	clock.Advance(5 * DefaultDebounce)
	session.Wait()

	state := session.State()
	assert.Equal(t, 2, quantity(t, session, item.ID), "the unsent edit is not shown after the clear fails")
	line, _ := state.Line(item.ID)
	assert.Equal(t, RolledBack, line.Status)
	assert.Equal(t, 2, line.Confirmed.Quantity)
	assert.True(t, state.Settled())
	assert.True(t, decimal.RequireFromString("20").Equal(state.Summary.Total))
	assert.Empty(t, api.calls())
}

func tracked(s *Session, itemID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[itemID]
	return ok
}

func TestSession_ForgetsTrackersOfRemovedItems(t *testing.T) {

	first, second, third := newItem(1, "10.00"), newItem(1, "2.00"), newItem(1, "1.00")
	api := newFakeAPI(first, second, third)
	session, clock, _ := newSession(t, api)

	for _, item := range []models.CartItem{first, second, third} {
		require.NoError(t, session.SetQuantity(item.ID, 2))
	}
	clock.Advance(DefaultDebounce)
	session.Wait()
	assert.True(t, tracked(session, first.ID))

	require.NoError(t, <-session.RemoveItem(first.ID))
	session.Wait()
	assert.False(t, tracked(session, first.ID))
	assert.True(t, tracked(session, second.ID))

	require.NoError(t, session.SetQuantity(second.ID, 0))
	clock.Advance(DefaultDebounce)
	session.Wait()
	assert.False(t, tracked(session, second.ID))

	require.NoError(t, <-session.Clear())
	session.Wait()
	assert.False(t, tracked(session, third.ID))
}

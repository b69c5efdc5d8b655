package cartsync

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/aaravmahajanofficial/storefront-cart/internal/models"
	"github.com/google/uuid"
)

const (
	DefaultDebounce       = 400 * time.Millisecond
	DefaultRequestTimeout = 10 * time.Second
)

var (
	ErrUnknownItem      = errors.New("cartsync: item is not in the cart")
	ErrNegativeQuantity = errors.New("cartsync: quantity cannot be negative")
	ErrClosed           = errors.New("cartsync: session closed")
)

// Notice reports a failed mutation. ItemID is uuid.Nil for cart-level
// operations.
type Notice struct {
	ItemID  uuid.UUID
	Message string
	Err     error
}

type Options struct {
	Debounce       time.Duration
	RequestTimeout time.Duration
	Clock          Clock
	Estimator      Estimator
	Logger         *slog.Logger
	// OnChange receives states in order on a single goroutine. A listener
	// that falls behind is handed the newest state and skips the ones in
	// between. It must not call Wait or Close.
	OnChange func(State)
	OnError  func(Notice)
}

// itemSync is the per-item scheduling state. gen invalidates timers that
// fired after being superseded; generations are unique per session.
type itemSync struct {
	timer    Timer
	gen      uint64
	inFlight bool
	queued   bool
}

// Session owns one cart projection and schedules its server mutations.
// Quantity edits for an item are coalesced over the debounce window and at
// most one request per item is outstanding at a time. Edits to different
// items never wait on each other.
type Session struct {
	api     CartAPI
	reducer Reducer
	opts    Options
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	state  State
	items  map[uuid.UUID]*itemSync
	gen    uint64
	closed bool

	// Listener delivery. latest is the newest published state.
	latest    State
	published uint64
	delivered uint64
	wake      chan struct{}
	idle      *sync.Cond
	stopped   bool
}

func NewSession(api CartAPI, opts Options) *Session {

	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = DefaultRequestTimeout
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock()
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &Session{
		api:     api,
		reducer: Reducer{Estimator: opts.Estimator},
		opts:    opts,
		logger:  logger.With("component", "cartsync"),
		ctx:     ctx,
		cancel:  cancel,
		state:   State{Lines: map[uuid.UUID]Line{}, Cart: models.Cart{Items: []models.CartItem{}}},
		items:   make(map[uuid.UUID]*itemSync),
	}

	if opts.OnChange != nil {
		s.wake = make(chan struct{}, 1)
		s.idle = sync.NewCond(&s.mu)
		go s.deliver()
	}

	return s
}

// State returns a copy of the current projection.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Load replaces the projection with the server cart.
func (s *Session) Load(ctx context.Context) error {

	result, err := s.api.GetCart(ctx)
	if err != nil {
		return err
	}

	s.dispatch(Loaded{Cart: result.Cart})
	return nil
}

// AddItem is not optimistic: the server assigns the item id.
func (s *Session) AddItem(ctx context.Context, productID uuid.UUID, quantity int) (*models.AddToCartResult, error) {

	result, err := s.api.AddItem(ctx, productID, quantity)
	if err != nil {
		s.notify(Notice{Message: userMessage(err), Err: err})
		return nil, err
	}

	s.dispatch(Loaded{Cart: result.Cart})
	return result, nil
}

// SetQuantity applies the new quantity locally at once and (re)starts the
// item's debounce timer. Only the value present when the timer fires is sent.
func (s *Session) SetQuantity(itemID uuid.UUID, quantity int) error {

	if quantity < 0 {
		return ErrNegativeQuantity
	}

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}

	line, ok := s.state.Lines[itemID]
	if !ok || line.Removing || s.state.Cart.FindItem(itemID) == nil {
		s.mu.Unlock()
		return ErrUnknownItem
	}

	s.state = s.reducer.Reduce(s.state, QuantityChanged{ItemID: itemID, Quantity: quantity})

	tracker := s.item(itemID)
	if tracker.timer != nil {
		tracker.timer.Stop()
	}
	gen := s.nextGen()
	tracker.gen = gen
	tracker.timer = s.opts.Clock.AfterFunc(s.opts.Debounce, func() { s.flush(itemID, gen) })

	s.publish()
	s.mu.Unlock()

	return nil
}

// RemoveItem drops the item locally and asks the server to remove it. The
// returned channel yields the outcome once.
func (s *Session) RemoveItem(itemID uuid.UUID) <-chan error {

	done := make(chan error, 1)

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		done <- ErrClosed
		return done
	}

	line, ok := s.state.Lines[itemID]
	if !ok || line.Removing {
		s.mu.Unlock()
		done <- ErrUnknownItem
		return done
	}

	s.cancelPending(itemID)
	s.state = s.reducer.Reduce(s.state, RemoveStarted{ItemID: itemID})
	s.publish()
	s.mu.Unlock()

	s.spawn(func(ctx context.Context) {
		result, err := s.api.RemoveItem(ctx, itemID)
		if err != nil {
			message := userMessage(err)
			s.logger.Warn("cart item removal rolled back", slog.String("item_id", itemID.String()), slog.String("error", err.Error()))
			s.dispatch(RemoveFailed{ItemID: itemID, Message: message})
			s.notify(Notice{ItemID: itemID, Message: message, Err: err})
		} else {
			s.dispatch(RemoveSucceeded{ItemID: itemID, Cart: result.Cart})
		}
		done <- err
	})

	return done
}

// Clear empties the cart locally and asks the server to do the same. Pending
// quantity edits are discarded.
func (s *Session) Clear() <-chan error {

	done := make(chan error, 1)

	s.mu.Lock()

	if s.closed {
		s.mu.Unlock()
		done <- ErrClosed
		return done
	}

	for itemID := range s.items {
		s.cancelPending(itemID)
	}
	s.state = s.reducer.Reduce(s.state, ClearStarted{})
	s.publish()
	s.mu.Unlock()

	s.spawn(func(ctx context.Context) {
		result, err := s.api.ClearCart(ctx)
		if err != nil {
			message := userMessage(err)
			s.logger.Warn("cart clear rolled back", slog.String("error", err.Error()))
			s.dispatch(ClearFailed{Message: message})
			s.notify(Notice{Message: message, Err: err})
		} else {
			s.dispatch(ClearSucceeded{Cart: result.Cart})
		}
		done <- err
	})

	return done
}

// DismissError clears a surfaced error; uuid.Nil targets the cart-level one.
func (s *Session) DismissError(itemID uuid.UUID) {
	s.dispatch(ErrorDismissed{ItemID: itemID})
}

// Wait blocks until every request already dispatched has been reconciled and
// the listener has seen the resulting state.
func (s *Session) Wait() {
	s.wg.Wait()

	s.mu.Lock()
	defer s.mu.Unlock()
	for s.idle != nil && !s.stopped && s.delivered < s.published {
		s.idle.Wait()
	}
}

// Close stops pending timers and cancels outstanding requests. Unsent local
// changes are dropped.
func (s *Session) Close() {

	s.mu.Lock()
	s.closed = true
	for _, tracker := range s.items {
		if tracker.timer != nil {
			tracker.timer.Stop()
			tracker.timer = nil
		}
		tracker.gen = s.nextGen()
		tracker.queued = false
	}
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	if s.wake != nil && !s.stopped {
		s.stopped = true
		close(s.wake)
		s.idle.Broadcast()
	}
	s.mu.Unlock()
}

// flush runs when an item's debounce timer fires.
func (s *Session) flush(itemID uuid.UUID, gen uint64) {

	s.mu.Lock()

	tracker, ok := s.items[itemID]
	if s.closed || !ok || tracker.gen != gen {
		s.mu.Unlock()
		return
	}
	tracker.timer = nil

	if tracker.inFlight {
		tracker.queued = true
		s.mu.Unlock()
		return
	}

	if s.startSync(itemID, tracker) {
		s.publish()
	}
	s.mu.Unlock()
}

// startSync marks the item in flight and dispatches its current local
// quantity. Callers hold s.mu.
func (s *Session) startSync(itemID uuid.UUID, tracker *itemSync) bool {

	line, ok := s.state.Lines[itemID]
	item := s.state.Cart.FindItem(itemID)
	if !ok || item == nil || line.Removing || line.Status != PendingLocalChange {
		return false
	}

	quantity := item.Quantity
	s.state = s.reducer.Reduce(s.state, SyncStarted{ItemID: itemID, Quantity: quantity})
	tracker.inFlight = true

	s.spawn(func(ctx context.Context) { s.send(ctx, itemID, quantity) })

	return true
}

func (s *Session) send(ctx context.Context, itemID uuid.UUID, quantity int) {

	result, err := s.api.UpdateItem(ctx, itemID, quantity)

	s.mu.Lock()

	tracker := s.item(itemID)
	tracker.inFlight = false

	var message string
	if err != nil {
		message = userMessage(err)
		s.state = s.reducer.Reduce(s.state, SyncFailed{ItemID: itemID, Message: message})
	} else {
		s.state = s.reducer.Reduce(s.state, SyncSucceeded{ItemID: itemID, Cart: result.Cart})
	}

	// A newer value whose timer already fired waited for this response.
	if tracker.queued && !s.closed {
		tracker.queued = false
		s.startSync(itemID, tracker)
	}

	s.prune()
	s.publish()
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("cart quantity change failed",
			slog.String("item_id", itemID.String()),
			slog.Int("quantity", quantity),
			slog.String("error", err.Error()),
		)
		s.notify(Notice{ItemID: itemID, Message: message, Err: err})
	}
}

// cancelPending drops an unsent edit for the item. Callers hold s.mu.
func (s *Session) cancelPending(itemID uuid.UUID) {
	tracker, ok := s.items[itemID]
	if !ok {
		return
	}
	if tracker.timer != nil {
		tracker.timer.Stop()
		tracker.timer = nil
	}
	tracker.gen = s.nextGen()
	tracker.queued = false
}

// item returns the scheduling state for itemID. Callers hold s.mu.
func (s *Session) item(itemID uuid.UUID) *itemSync {
	tracker, ok := s.items[itemID]
	if !ok {
		tracker = &itemSync{}
		s.items[itemID] = tracker
	}
	return tracker
}

// prune forgets idle trackers of items no longer in the projection. Callers
// hold s.mu.
func (s *Session) prune() {
	for itemID, tracker := range s.items {
		if _, ok := s.state.Lines[itemID]; ok || tracker.timer != nil || tracker.inFlight {
			continue
		}
		delete(s.items, itemID)
	}
}

// Callers hold s.mu.
func (s *Session) nextGen() uint64 {
	s.gen++
	return s.gen
}

func (s *Session) spawn(fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, s.opts.RequestTimeout)
		defer cancel()
		fn(ctx)
	}()
}

func (s *Session) dispatch(a Action) {
	s.mu.Lock()
	s.state = s.reducer.Reduce(s.state, a)
	s.prune()
	s.publish()
	s.mu.Unlock()
}

// publish hands the current state to the delivery goroutine. Callers hold
// s.mu.
func (s *Session) publish() {
	if s.wake == nil || s.stopped {
		return
	}

	s.latest = s.state.clone()
	s.published++

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// deliver calls OnChange with the newest published state until Close.
func (s *Session) deliver() {
	for range s.wake {
		s.mu.Lock()
		state, seq := s.latest, s.published
		if seq == s.delivered {
			s.mu.Unlock()
			continue
		}
		s.mu.Unlock()

		s.opts.OnChange(state)

		s.mu.Lock()
		s.delivered = seq
		s.idle.Broadcast()
		s.mu.Unlock()
	}
}

func (s *Session) notify(n Notice) {
	if s.opts.OnError != nil {
		s.opts.OnError(n)
	}
}

// Package visibilitytest provides in-memory collaborators for testing code
// built on the visibility package.
package visibilitytest

import (
	"context"
	"sync"

	"vempraca_backend/pkg/visibility"
)

// MemoryStore is a concurrency-safe in-memory visibility.Store.
type MemoryStore struct {
	mu       sync.Mutex
	listings map[string]visibility.Listing

	// FindErr and ApplyErr, when set, are returned instead of touching state.
	FindErr  error
	ApplyErr error
	// Block makes every call wait for ctx to be done, simulating a hung store.
	Block bool

	Writes int
}

// NewMemoryStore creates a store seeded with listings.
func NewMemoryStore(listings ...visibility.Listing) *MemoryStore {
	s := &MemoryStore{listings: make(map[string]visibility.Listing)}
	for _, l := range listings {
		s.listings[l.ID] = l
	}
	return s
}

func (s *MemoryStore) FindListing(ctx context.Context, id string) (*visibility.Listing, error) {
	s.mu.Lock()
	block := s.Block
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FindErr != nil {
		return nil, s.FindErr
	}
	l, ok := s.listings[id]
	if !ok {
		return nil, visibility.ErrListingNotFound
	}
	return &l, nil
}

func (s *MemoryStore) ApplyVisibility(ctx context.Context, id string, u visibility.Update) error {
	s.mu.Lock()
	block, applyErr := s.Block, s.ApplyErr
	s.mu.Unlock()
	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if applyErr != nil {
		return applyErr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.listings[id]
	if !ok {
		return visibility.ErrListingNotFound
	}
	if u.NotBefore != nil && l.VisibilityEventAt != nil && l.VisibilityEventAt.After(*u.NotBefore) {
		return visibility.ErrStaleEvent
	}
	l.IsVisible = u.Visible
	if u.SubscriptionID != "" {
		l.SubscriptionID = u.SubscriptionID
	}
	if u.CustomerID != "" {
		l.CustomerID = u.CustomerID
	}
	if u.EventAt != nil && (l.VisibilityEventAt == nil || u.EventAt.After(*l.VisibilityEventAt)) {
		at := *u.EventAt
		l.VisibilityEventAt = &at
	}
	s.listings[id] = l
	s.Writes++
	return nil
}

// Get returns a copy of the stored listing.
func (s *MemoryStore) Get(id string) visibility.Listing {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listings[id]
}

// Put inserts or replaces a listing.
func (s *MemoryStore) Put(l visibility.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[l.ID] = l
}

// SetBlock toggles Block under the store lock.
func (s *MemoryStore) SetBlock(b bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Block = b
}

// FakeProvider is a visibility.Provider that records calls.
type FakeProvider struct {
	mu            sync.Mutex
	subscriptions map[string]visibility.Subscription

	GetErr      error
	CancelErr   error
	ScheduleErr error

	GetCalls      []string
	CancelCalls   []string
	ScheduleCalls []string
}

// NewFakeProvider creates a provider knowing subs.
func NewFakeProvider(subs ...visibility.Subscription) *FakeProvider {
	p := &FakeProvider{subscriptions: make(map[string]visibility.Subscription)}
	for _, s := range subs {
		p.subscriptions[s.ID] = s
	}
	return p
}

// Add registers or replaces a subscription.
func (p *FakeProvider) Add(sub visibility.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subscriptions[sub.ID] = sub
}

func (p *FakeProvider) GetSubscription(ctx context.Context, id string) (*visibility.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GetCalls = append(p.GetCalls, id)
	if p.GetErr != nil {
		return nil, p.GetErr
	}
	return p.lookup(id)
}

func (p *FakeProvider) CancelSubscription(ctx context.Context, id string) (*visibility.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CancelCalls = append(p.CancelCalls, id)
	if p.CancelErr != nil {
		return nil, p.CancelErr
	}
	sub, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	sub.Status = visibility.StatusCanceled
	p.subscriptions[id] = *sub
	return sub, nil
}

func (p *FakeProvider) ScheduleCancellation(ctx context.Context, id string) (*visibility.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ScheduleCalls = append(p.ScheduleCalls, id)
	if p.ScheduleErr != nil {
		return nil, p.ScheduleErr
	}
	sub, err := p.lookup(id)
	if err != nil {
		return nil, err
	}
	sub.CancelAtPeriodEnd = true
	p.subscriptions[id] = *sub
	return sub, nil
}

func (p *FakeProvider) lookup(id string) (*visibility.Subscription, error) {
	sub, ok := p.subscriptions[id]
	if !ok {
		return nil, visibility.ErrSubscriptionNotFound
	}
	md := make(map[string]string, len(sub.Metadata))
	for k, v := range sub.Metadata {
		md[k] = v
	}
	sub.Metadata = md
	return &sub, nil
}

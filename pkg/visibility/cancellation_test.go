package visibility_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vempraca_backend/pkg/visibility"
	"vempraca_backend/pkg/visibility/visibilitytest"
)

func newCanceller(store *visibilitytest.MemoryStore, provider *visibilitytest.FakeProvider) *visibility.Canceller {
	return visibility.NewCanceller(provider, visibility.NewReconciler(store), visibility.Timeouts{})
}

func boundListing() visibility.Listing {
	return visibility.Listing{ID: "L1", OwnerID: "U1", IsVisible: true, SubscriptionID: "S1", CustomerID: "C1"}
}

func activeSubscription() visibility.Subscription {
	return visibility.Subscription{ID: "S1", CustomerID: "C1", Status: visibility.StatusActive}
}

func TestCancelImmediateHidesListing(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())

	res, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"S1"}, provider.CancelCalls)
	assert.Equal(t, visibility.StatusCanceled, res.Status)
	require.NotNil(t, res.IsVisible)
	assert.False(t, *res.IsVisible)
	assert.False(t, store.Get("L1").IsVisible)
}

func TestCancelImmediateIsRetrySafe(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())
	c := newCanceller(store, provider)
	req := visibility.CancelRequest{ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate}

	_, err := c.Cancel(context.Background(), req)
	require.NoError(t, err)
	res, err := c.Cancel(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, provider.CancelCalls, 1)
	assert.Equal(t, visibility.StatusCanceled, res.Status)
	assert.False(t, store.Get("L1").IsVisible)
}

func TestCancelImmediateTreatsMissingSubscriptionAsCanceled(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider()

	res, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	require.NoError(t, err)
	assert.Empty(t, provider.CancelCalls)
	assert.Equal(t, visibility.StatusCanceled, res.Status)
	assert.False(t, store.Get("L1").IsVisible)
}

func TestCancelRejectsNonOwner(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())

	_, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "intruder", Mode: visibility.CancelImmediate,
	})
	assert.ErrorIs(t, err, visibility.ErrForbidden)
	assert.Empty(t, provider.GetCalls)
	assert.Empty(t, provider.CancelCalls)
	assert.Zero(t, store.Writes)
	assert.True(t, store.Get("L1").IsVisible)
}

func TestCancelRequiresActor(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())

	_, err := newCanceller(store, visibilitytest.NewFakeProvider()).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", Mode: visibility.CancelImmediate,
	})
	assert.ErrorIs(t, err, visibility.ErrUnauthorized)
}

func TestCancelRejectsInvalidMode(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())

	_, err := newCanceller(store, visibilitytest.NewFakeProvider()).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: "soon",
	})
	assert.ErrorIs(t, err, visibility.ErrInvalidMode)
}

func TestCancelWithoutSubscription(t *testing.T) {
	store := visibilitytest.NewMemoryStore(visibility.Listing{ID: "L1", OwnerID: "U1"})

	_, err := newCanceller(store, visibilitytest.NewFakeProvider()).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	assert.ErrorIs(t, err, visibility.ErrNoSubscription)
}

func TestCancelUnknownListing(t *testing.T) {
	store := visibilitytest.NewMemoryStore()

	_, err := newCanceller(store, visibilitytest.NewFakeProvider()).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "nope", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	assert.ErrorIs(t, err, visibility.ErrListingNotFound)
}

func TestCancelEndOfPeriodLeavesVisibility(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())
	c := newCanceller(store, provider)
	req := visibility.CancelRequest{ListingID: "L1", ActorID: "U1", Mode: visibility.CancelEndOfPeriod}

	res, err := c.Cancel(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.CancelAtPeriodEnd)
	assert.Nil(t, res.IsVisible)
	assert.True(t, store.Get("L1").IsVisible)
	assert.Zero(t, store.Writes)

	_, err = c.Cancel(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, provider.ScheduleCalls, 1)
}

func TestCancelImmediateGrandfatheredKeepsVisibility(t *testing.T) {
	l := boundListing()
	l.Grandfathered = true
	store := visibilitytest.NewMemoryStore(l)
	provider := visibilitytest.NewFakeProvider(activeSubscription())

	res, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	require.NoError(t, err)
	assert.Len(t, provider.CancelCalls, 1)
	require.NotNil(t, res.IsVisible)
	assert.True(t, *res.IsVisible)
	assert.True(t, store.Get("L1").IsVisible)
}

func TestCancelProviderTimeoutFailsClosed(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())
	provider.CancelErr = context.DeadlineExceeded

	_, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	assert.ErrorIs(t, err, visibility.ErrUpstreamTimeout)
	assert.True(t, store.Get("L1").IsVisible)
}

func TestCancelProviderFailureIsUnavailable(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())
	provider.GetErr = errors.New("boom")

	_, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelEndOfPeriod,
	})
	assert.ErrorIs(t, err, visibility.ErrUpstreamUnavailable)
	assert.Empty(t, provider.ScheduleCalls)
}

func TestCancelStoreTimeoutFailsClosed(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	store.SetBlock(true)
	provider := visibilitytest.NewFakeProvider(activeSubscription())
	c := visibility.NewCanceller(provider, visibility.NewReconciler(store,
		visibility.WithTimeouts(visibility.Timeouts{Store: 20 * time.Millisecond})), visibility.Timeouts{})

	_, err := c.Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	assert.ErrorIs(t, err, visibility.ErrUpstreamTimeout)
	assert.Empty(t, provider.CancelCalls)
}

func TestCancelImmediateSubscriptionGoneMidRequest(t *testing.T) {
	store := visibilitytest.NewMemoryStore(boundListing())
	provider := visibilitytest.NewFakeProvider(activeSubscription())
	provider.CancelErr = visibility.ErrSubscriptionNotFound

	res, err := newCanceller(store, provider).Cancel(context.Background(), visibility.CancelRequest{
		ListingID: "L1", ActorID: "U1", Mode: visibility.CancelImmediate,
	})
	require.NoError(t, err)
	assert.Equal(t, visibility.StatusCanceled, res.Status)
	require.NotNil(t, res.IsVisible)
	assert.False(t, *res.IsVisible)
	assert.False(t, store.Get("L1").IsVisible)
}

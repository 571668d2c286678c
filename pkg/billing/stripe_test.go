package billing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vempraca_backend/pkg/visibility"
)

func newTestStripe(t *testing.T, handler http.HandlerFunc) (*Stripe, *[]string) {
	t.Helper()
	var requests []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests = append(requests, r.Method+" "+r.URL.Path)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	return NewStripe(StripeConfig{SecretKey: "sk_test_123", Timeout: 2 * time.Second, BaseURL: srv.URL}), &requests
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func TestStripeGetSubscription(t *testing.T) {
	s, requests := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"sub_1","object":"subscription","status":"active","customer":"cus_1","cancel_at_period_end":false,"metadata":{"negocio_id":"L1"}}`)
	})

	sub, err := s.GetSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, "sub_1", sub.ID)
	assert.Equal(t, visibility.StatusActive, sub.Status)
	assert.Equal(t, "cus_1", sub.CustomerID)
	assert.Equal(t, "L1", visibility.ListingRefFromMetadata(sub.Metadata))
	assert.Equal(t, []string{"GET /v1/subscriptions/sub_1"}, *requests)
}

func TestStripeCancelSubscription(t *testing.T) {
	s, requests := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, `{"id":"sub_1","object":"subscription","status":"canceled","customer":"cus_1"}`)
	})

	sub, err := s.CancelSubscription(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.Equal(t, visibility.StatusCanceled, sub.Status)
	assert.Equal(t, []string{"DELETE /v1/subscriptions/sub_1"}, *requests)
}

func TestStripeScheduleCancellation(t *testing.T) {
	var form string
	s, requests := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		form = r.PostForm.Get("cancel_at_period_end")
		writeJSON(w, http.StatusOK, `{"id":"sub_1","object":"subscription","status":"active","cancel_at_period_end":true}`)
	})

	sub, err := s.ScheduleCancellation(context.Background(), "sub_1")
	require.NoError(t, err)
	assert.True(t, sub.CancelAtPeriodEnd)
	assert.Equal(t, "true", form)
	assert.Equal(t, []string{"POST /v1/subscriptions/sub_1"}, *requests)
}

func TestStripeErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"missing", http.StatusNotFound, `{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such subscription"}}`, visibility.ErrSubscriptionNotFound},
		{"server error", http.StatusInternalServerError, `{"error":{"type":"api_error","message":"boom"}}`, visibility.ErrUpstreamUnavailable},
		{"rate limited", http.StatusTooManyRequests, `{"error":{"type":"invalid_request_error","code":"rate_limit","message":"slow down"}}`, visibility.ErrUpstreamUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			_, err := s.GetSubscription(context.Background(), "sub_1")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStripeTimeout(t *testing.T) {
	s, _ := newTestStripe(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := s.GetSubscription(ctx, "sub_1")
	assert.ErrorIs(t, err, visibility.ErrUpstreamTimeout)
}

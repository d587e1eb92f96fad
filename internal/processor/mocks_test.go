package processor

import (
	"context"
	"sync"

	"github.com/sakashimaa/paybot/internal/domain"
)

type fakeProvider struct {
	mu sync.Mutex

	createFn func(ctx context.Context, req CheckoutRequest) (*RemoteCheckout, error)
	statusFn func(ctx context.Context, id string) (domain.Status, error)

	createCalls int
	statusCalls int
	lastRequest CheckoutRequest
}

func (f *fakeProvider) Name() string {
	return "fake"
}

func (f *fakeProvider) CreateCheckout(ctx context.Context, req CheckoutRequest) (*RemoteCheckout, error) {
	f.mu.Lock()
	f.createCalls++
	f.lastRequest = req
	f.mu.Unlock()

	if f.createFn != nil {
		return f.createFn(ctx, req)
	}
	return &RemoteCheckout{ID: "pi_abc", URL: "https://pay/abc"}, nil
}

func (f *fakeProvider) PaymentStatus(ctx context.Context, id string) (domain.Status, error) {
	f.mu.Lock()
	f.statusCalls++
	f.mu.Unlock()

	if f.statusFn != nil {
		return f.statusFn(ctx, id)
	}
	return domain.StatusPending, nil
}

func (f *fakeProvider) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.createCalls, f.statusCalls
}

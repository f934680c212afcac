package mutation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/storage/memory"
)

type sessionStub struct {
	role string
	auth bool
}

func (s sessionStub) IsAuthenticated() bool { return s.auth }
func (s sessionStub) Loading() bool         { return false }
func (s sessionStub) Token() string         { return "t" }
func (s sessionStub) Role() string          { return s.role }
func (s sessionStub) TenantID() string      { return "" }

var managers = domain.PermissionFunc(func(role string) bool {
	return strings.EqualFold(role, "admin")
})

type apiStub struct {
	mu        sync.Mutex
	order     domain.OrderPatch
	getErr    error
	updateErr error
	deleteErr error
	updates   []domain.OrderUpdate
	deletes   []string
	calls     int
	gate      chan struct{}
}

func (a *apiStub) GetOrder(ctx context.Context, id string) (domain.OrderPatch, error) {
	a.mu.Lock()
	a.calls++
	gate := a.gate
	a.mu.Unlock()
	if gate != nil {
		<-gate
	}
	return a.order, a.getErr
}

func (a *apiStub) UpdateOrder(ctx context.Context, id string, update domain.OrderUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.updateErr != nil {
		return a.updateErr
	}
	a.updates = append(a.updates, update)
	return nil
}

func (a *apiStub) DeleteOrder(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.deleteErr != nil {
		return a.deleteErr
	}
	a.deletes = append(a.deletes, id)
	return nil
}

func seededStore() *memory.OrderCollection {
	store := memory.NewOrderCollection()
	store.Replace([]domain.Order{{ID: "44", Status: domain.OrderStatusPending, CustomerName: "Ana"}})
	return store
}

func withItems() domain.OrderPatch {
	return domain.OrderPatch{ID: "44", LineItems: []domain.LineItem{{ProductID: "p-1", Quantity: 2}}}
}

func TestChangeStatus_AppliesAfterSuccessfulWrite(t *testing.T) {
	api := &apiStub{order: withItems()}
	store := seededStore()
	store.OpenDetail("44")
	c := NewCoordinator(api, sessionStub{role: "Admin", auth: true}, managers, store)

	require.NoError(t, c.ChangeStatus(context.Background(), "44", domain.OrderStatusShipped))

	require.Len(t, api.updates, 1)
	require.Equal(t, domain.OrderStatusShipped, api.updates[0].Status)
	require.Equal(t, "p-1", api.updates[0].LineItems[0].ProductID)

	order, _ := store.Get("44")
	require.Equal(t, domain.OrderStatusShipped, order.Status)
	detail, _ := store.Detail()
	require.Equal(t, domain.OrderStatusShipped, detail.Status)
	require.False(t, c.Busy("44"))
}

func TestChangeStatus_EmptyLineItemsBlocksWrite(t *testing.T) {
	api := &apiStub{order: domain.OrderPatch{ID: "44"}}
	store := seededStore()
	c := NewCoordinator(api, sessionStub{role: "admin", auth: true}, managers, store)

	err := c.ChangeStatus(context.Background(), "44", domain.OrderStatusDelivered)
	require.ErrorIs(t, err, domain.ErrNoLineItems)
	require.Empty(t, api.updates)

	order, _ := store.Get("44")
	require.Equal(t, domain.OrderStatusPending, order.Status)
}

func TestChangeStatus_FailureKeepsStatus(t *testing.T) {
	api := &apiStub{order: withItems(), updateErr: errors.New("http 500")}
	store := seededStore()
	c := NewCoordinator(api, sessionStub{role: "admin", auth: true}, managers, store)

	require.Error(t, c.ChangeStatus(context.Background(), "44", domain.OrderStatusShipped))
	order, _ := store.Get("44")
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.False(t, c.Busy("44"))
}

func TestChangeStatus_RejectsUnknownStatus(t *testing.T) {
	api := &apiStub{order: withItems()}
	c := NewCoordinator(api, sessionStub{role: "admin", auth: true}, managers, seededStore())

	require.ErrorIs(t, c.ChangeStatus(context.Background(), "44", "Lost"), domain.ErrInvalidStatus)
	require.Zero(t, api.calls)
}

func TestDelete_RequiresManagementRole(t *testing.T) {
	api := &apiStub{}
	store := seededStore()
	c := NewCoordinator(api, sessionStub{role: "Employee", auth: true}, managers, store)

	err := c.Delete(context.Background(), "44")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.Equal(t, "you do not have permission to manage orders", err.Error())
	require.Zero(t, api.calls)
	require.Equal(t, 1, store.Len())

	err = c.ChangeStatus(context.Background(), "44", domain.OrderStatusShipped)
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.Zero(t, api.calls)
}

func TestDelete_RequiresSession(t *testing.T) {
	api := &apiStub{}
	c := NewCoordinator(api, sessionStub{role: "admin"}, managers, seededStore())

	require.ErrorIs(t, c.Delete(context.Background(), "44"), domain.ErrNotAuthenticated)
	require.Zero(t, api.calls)
}

func TestDelete_RemovesOrderAndClosesDetail(t *testing.T) {
	api := &apiStub{}
	store := seededStore()
	store.OpenDetail("44")
	c := NewCoordinator(api, sessionStub{role: "admin", auth: true}, managers, store)

	require.NoError(t, c.Delete(context.Background(), "44"))
	require.Equal(t, []string{"44"}, api.deletes)
	require.Zero(t, store.Len())
	_, open := store.Detail()
	require.False(t, open)
}

func TestDelete_FailureKeepsOrder(t *testing.T) {
	api := &apiStub{deleteErr: errors.New("conflict")}
	store := seededStore()
	c := NewCoordinator(api, sessionStub{role: "admin", auth: true}, managers, store)

	require.Error(t, c.Delete(context.Background(), "44"))
	require.Equal(t, 1, store.Len())
}

func TestBusyOrderRejectsSecondOperation(t *testing.T) {
	api := &apiStub{order: withItems(), gate: make(chan struct{})}
	store := seededStore()
	c := NewCoordinator(api, sessionStub{role: "admin", auth: true}, managers, store)

	errCh := make(chan error, 1)
	go func() {
		errCh <- c.ChangeStatus(context.Background(), "44", domain.OrderStatusShipped)
	}()
	require.Eventually(t, func() bool { return c.Busy("44") }, time.Second, time.Millisecond)

	require.ErrorIs(t, c.Delete(context.Background(), "44"), domain.ErrOperationInProgress)

	close(api.gate)
	require.NoError(t, <-errCh)
	require.False(t, c.Busy("44"))
	require.Equal(t, 1, store.Len())
}

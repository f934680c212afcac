package orderlist

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/orderwatch/internal/domain"
	"github.com/vladislavdragonenkov/orderwatch/internal/service/listener"
)

const (
	waitTimeout = 2 * time.Second
	waitTick    = 5 * time.Millisecond
)

func ptr[T any](v T) *T { return &v }

func items(qty ...int) []domain.LineItem {
	out := make([]domain.LineItem, 0, len(qty))
	for i, q := range qty {
		out = append(out, domain.LineItem{
			ProductID: string(rune('a' + i)),
			Quantity:  q,
			UnitValue: decimal.NewFromInt(10),
			LineTotal: decimal.NewFromInt(int64(10 * q)),
		})
	}
	return out
}

// settled — заказ, которому не нужно фоновое обогащение.
func settled(id string, status domain.OrderStatus) domain.OrderPatch {
	return domain.OrderPatch{
		ID:           id,
		CustomerName: ptr("Jane Roe"),
		CustomerID:   ptr("c-" + id),
		Status:       ptr(status),
		LineItems:    items(1),
	}
}

type fakeAPI struct {
	mu        sync.Mutex
	orders    []domain.OrderPatch
	details   map[string]domain.OrderPatch
	customers map[string]domain.Customer
	listErr   error
	getGate   chan struct{}

	listCalls     int
	getCalls      map[string]int
	customerCalls int
	updates       []domain.OrderUpdate
	deletes       []string
}

func newFakeAPI(orders ...domain.OrderPatch) *fakeAPI {
	return &fakeAPI{
		orders:    orders,
		details:   make(map[string]domain.OrderPatch),
		customers: make(map[string]domain.Customer),
		getCalls:  make(map[string]int),
	}
}

func (a *fakeAPI) ListOrders(_ context.Context, query domain.ListQuery) ([]domain.OrderPatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.listCalls++
	if a.listErr != nil {
		return nil, a.listErr
	}
	start := (query.Page - 1) * query.PageSize
	if start >= len(a.orders) {
		return nil, nil
	}
	end := start + query.PageSize
	if end > len(a.orders) {
		end = len(a.orders)
	}
	return append([]domain.OrderPatch(nil), a.orders[start:end]...), nil
}

func (a *fakeAPI) GetOrder(ctx context.Context, id string) (domain.OrderPatch, error) {
	a.mu.Lock()
	a.getCalls[id]++
	gate := a.getGate
	a.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return domain.OrderPatch{}, ctx.Err()
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if detail, ok := a.details[id]; ok {
		return detail, nil
	}
	for _, order := range a.orders {
		if order.ID == id {
			return order, nil
		}
	}
	return domain.OrderPatch{}, domain.ErrOrderNotFound
}

func (a *fakeAPI) UpdateOrder(_ context.Context, _ string, update domain.OrderUpdate) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates = append(a.updates, update)
	return nil
}

func (a *fakeAPI) DeleteOrder(_ context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.deletes = append(a.deletes, id)
	return nil
}

func (a *fakeAPI) GetCustomer(_ context.Context, id string) (domain.Customer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.customerCalls++
	customer, ok := a.customers[id]
	if !ok {
		return domain.Customer{}, domain.ErrCustomerNotFound
	}
	return customer, nil
}

func (a *fakeAPI) setStatus(id string, status domain.OrderStatus) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for i := range a.orders {
		if a.orders[i].ID == id {
			a.orders[i].Status = ptr(status)
		}
	}
}

func (a *fakeAPI) calls() (list, customers int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.listCalls, a.customerCalls
}

type sessionStub struct {
	role string
	auth bool
}

func (s sessionStub) IsAuthenticated() bool { return s.auth }
func (s sessionStub) Loading() bool         { return false }
func (s sessionStub) Token() string         { return "jwt-token" }
func (s sessionStub) Role() string          { return s.role }
func (s sessionStub) TenantID() string      { return "tenant-1" }

// mutableSession меняет аутентификацию и загрузку на лету.
type mutableSession struct {
	mu      sync.Mutex
	auth    bool
	loading bool
}

func (s *mutableSession) set(auth, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auth, s.loading = auth, loading
}

func (s *mutableSession) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auth
}

func (s *mutableSession) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *mutableSession) Token() string    { return "jwt-token" }
func (s *mutableSession) Role() string     { return "Admin" }
func (s *mutableSession) TenantID() string { return "tenant-1" }

var managers = domain.PermissionFunc(func(role string) bool { return role == "Admin" })

type fakeConn struct {
	mu          sync.Mutex
	handlers    map[string]domain.PushHandler
	reconnected func()
	stopped     bool
}

func (c *fakeConn) Subscribe(name string, h domain.PushHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[name] = h
}

func (c *fakeConn) Unsubscribe(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, name)
}

func (c *fakeConn) OnReconnecting(func(error)) {}

func (c *fakeConn) OnReconnected(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnected = f
}

func (c *fakeConn) OnClosed(func(error))        {}
func (c *fakeConn) Start(context.Context) error { return nil }

func (c *fakeConn) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
	return nil
}

func (c *fakeConn) emit(event domain.PushEvent) {
	c.mu.Lock()
	h := c.handlers[listener.EventOrderUpdated]
	c.mu.Unlock()
	if h != nil {
		event.Name = listener.EventOrderUpdated
		h(event)
	}
}

type fakeChannel struct {
	mu       sync.Mutex
	conn     *fakeConn
	err      error
	connects int
}

func (ch *fakeChannel) Connect(context.Context, string, string) (domain.PushConnection, error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	ch.connects++
	if ch.err != nil {
		return nil, ch.err
	}
	ch.conn = &fakeConn{handlers: make(map[string]domain.PushHandler)}
	return ch.conn, nil
}

func (ch *fakeChannel) current() *fakeConn {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.conn
}

func newTestScreen(t *testing.T, api *fakeAPI, push domain.PushChannel, role string, cfg Config) *Screen {
	t.Helper()
	if cfg.PageSize == 0 {
		cfg.PageSize = 2
	}
	if cfg.ReloadMinInterval == 0 {
		cfg.ReloadMinInterval = -1
	}
	cfg.PushURL = "wss://push.example.com/hubs/orders"
	screen := NewScreen(Dependencies{
		API:         api,
		Session:     sessionStub{role: role, auth: true},
		Permissions: managers,
		Push:        push,
	}, cfg)
	t.Cleanup(func() { _ = screen.Unmount() })
	return screen
}

func TestMount_LoadsPageAndResolvesNames(t *testing.T) {
	api := newFakeAPI(
		domain.OrderPatch{ID: "1", CustomerName: ptr("17"), CustomerID: ptr("17"), Status: ptr(domain.OrderStatusPending), LineItems: items(2)},
		settled("2", domain.OrderStatusShipped),
		settled("3", domain.OrderStatusDelivered),
	)
	api.customers["17"] = domain.Customer{ID: "17", Name: "Alice Smith"}

	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	require.Len(t, screen.Orders(), 2)
	require.True(t, screen.HasMore())
	require.Equal(t, 1, screen.Page())
	require.NoError(t, screen.Error())
	require.Empty(t, screen.Banner())

	require.Eventually(t, func() bool {
		order, ok := screen.Order("1")
		return ok && order.CustomerName == "Alice Smith"
	}, waitTimeout, waitTick)

	order, _ := screen.Order("1")
	require.Equal(t, domain.OrderStatusPending, order.Status)
	_, ok := screen.Customers().Lookup("17")
	require.True(t, ok)
}

func TestPagination(t *testing.T) {
	api := newFakeAPI(
		settled("1", domain.OrderStatusPending),
		settled("2", domain.OrderStatusPending),
		settled("3", domain.OrderStatusPending),
	)
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	ctx := context.Background()
	require.NoError(t, screen.Mount(ctx))

	require.NoError(t, screen.PrevPage(ctx))
	list, _ := api.calls()
	require.Equal(t, 1, list, "no request below page 1")

	require.NoError(t, screen.NextPage(ctx))
	require.Equal(t, 2, screen.Page())
	require.Len(t, screen.Orders(), 1)
	require.False(t, screen.HasMore())

	require.NoError(t, screen.NextPage(ctx))
	list, _ = api.calls()
	require.Equal(t, 2, list)
	require.Equal(t, 2, screen.Page())

	require.NoError(t, screen.PrevPage(ctx))
	require.Equal(t, 1, screen.Page())
	require.Len(t, screen.Orders(), 2)

	require.ErrorIs(t, screen.SetPage(ctx, 0), domain.ErrInvalidPage)

	require.NoError(t, screen.SetPage(ctx, 2))
	require.NoError(t, screen.SetFilter(ctx, domain.Filter{ActiveOnly: ptr(true)}))
	require.Equal(t, 1, screen.Page())
	require.True(t, *screen.Query().Filter.ActiveOnly)
}

func TestDetailPrefetchKeepsListStatus(t *testing.T) {
	api := newFakeAPI(domain.OrderPatch{
		ID:           "7",
		CustomerName: ptr("Jane Roe"),
		Status:       ptr(domain.OrderStatusProcessing),
	})
	api.details["7"] = domain.OrderPatch{
		ID:         "7",
		CustomerID: ptr("c-7"),
		Status:     ptr(domain.OrderStatusPending),
		LineItems:  items(2, 3),
	}

	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	require.Eventually(t, func() bool {
		order, _ := screen.Order("7")
		return len(order.LineItems) == 2
	}, waitTimeout, waitTick)

	order, _ := screen.Order("7")
	require.Equal(t, domain.OrderStatusProcessing, order.Status)
	require.Equal(t, "c-7", order.CustomerID)
	require.Equal(t, 5, order.ItemsCount)
}

func TestPushUpdateOverridesListAndReloads(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending))
	push := &fakeChannel{}
	screen := newTestScreen(t, api, push, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))
	require.Equal(t, listener.StateConnected, screen.ListenerState())

	api.setStatus("44", domain.OrderStatusShipped)
	push.current().emit(domain.PushEvent{OrderID: "44", Status: "Shipped"})

	order, ok := screen.Order("44")
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusShipped, order.Status)
	require.Equal(t, uint64(1), screen.RefreshKey())

	require.Eventually(t, func() bool {
		list, _ := api.calls()
		return list == 2
	}, waitTimeout, waitTick)
	order, _ = screen.Order("44")
	require.Equal(t, domain.OrderStatusShipped, order.Status)
}

func TestReconnectTriggersReload(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	push := &fakeChannel{}
	screen := newTestScreen(t, api, push, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	conn := push.current()
	conn.mu.Lock()
	reconnected := conn.reconnected
	conn.mu.Unlock()
	reconnected()

	require.Equal(t, uint64(1), screen.RefreshKey())
	require.Eventually(t, func() bool {
		list, _ := api.calls()
		return list == 2
	}, waitTimeout, waitTick)
}

func TestPushReloadsAreRateLimited(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	push := &fakeChannel{}
	screen := newTestScreen(t, api, push, "Admin", Config{ReloadMinInterval: 300 * time.Millisecond})
	require.NoError(t, screen.Mount(context.Background()))

	conn := push.current()
	for i := 0; i < 5; i++ {
		conn.emit(domain.PushEvent{OrderID: "1"})
	}
	require.Equal(t, uint64(5), screen.RefreshKey())

	require.Eventually(t, func() bool {
		list, _ := api.calls()
		return list >= 2
	}, waitTimeout, waitTick)
	time.Sleep(150 * time.Millisecond)
	list, _ := api.calls()
	require.Equal(t, 2, list, "second reload waits for the interval")

	time.Sleep(600 * time.Millisecond)
	list, _ = api.calls()
	require.LessOrEqual(t, list, 3)
}

func TestListenerFailureOnlySetsBanner(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	push := &fakeChannel{err: errors.New("dial refused")}
	screen := newTestScreen(t, api, push, "Admin", Config{})

	require.NoError(t, screen.Mount(context.Background()))
	require.Equal(t, domain.ErrLiveUpdatesUnavailable.Error(), screen.Banner())
	require.Len(t, screen.Orders(), 1)
	require.NoError(t, screen.Refresh(context.Background()))
}

func TestMountWithoutSessionSkipsLiveUpdates(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	push := &fakeChannel{}
	screen := NewScreen(Dependencies{
		API:     api,
		Session: sessionStub{auth: false},
		Push:    push,
	}, Config{PushURL: "wss://push.example.com"})
	t.Cleanup(func() { _ = screen.Unmount() })

	require.NoError(t, screen.Mount(context.Background()))
	require.Empty(t, screen.Banner())
	require.Equal(t, 0, push.connects)
	require.Equal(t, listener.StateDisconnected, screen.ListenerState())
}

func newSessionScreen(t *testing.T, api *fakeAPI, push domain.PushChannel, session domain.Session) *Screen {
	t.Helper()
	screen := NewScreen(Dependencies{
		API:         api,
		Session:     session,
		Permissions: managers,
		Push:        push,
	}, Config{PageSize: 2, ReloadMinInterval: -1, PushURL: "wss://push.example.com/hubs/orders"})
	t.Cleanup(func() { _ = screen.Unmount() })
	return screen
}

func TestSessionLossStopsLiveUpdates(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending))
	push := &fakeChannel{}
	session := &mutableSession{auth: true}
	screen := newSessionScreen(t, api, push, session)
	require.NoError(t, screen.Mount(context.Background()))
	require.Equal(t, listener.StateConnected, screen.ListenerState())
	conn := push.current()

	session.set(false, false)
	require.NoError(t, screen.SessionChanged())
	require.Equal(t, listener.StateDisconnected, screen.ListenerState())
	require.Empty(t, screen.Banner())

	conn.mu.Lock()
	require.True(t, conn.stopped)
	require.Empty(t, conn.handlers)
	conn.mu.Unlock()

	conn.emit(domain.PushEvent{OrderID: "44", Status: "Shipped"})
	order, ok := screen.Order("44")
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.Zero(t, screen.RefreshKey())

	// Повторный вызов без изменений сессии ничего не делает.
	require.NoError(t, screen.SessionChanged())
	require.Equal(t, 1, push.connects)
}

func TestSessionReadyStartsLiveUpdates(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending))
	push := &fakeChannel{}
	session := &mutableSession{auth: true, loading: true}
	screen := newSessionScreen(t, api, push, session)
	require.NoError(t, screen.Mount(context.Background()))
	require.Equal(t, 0, push.connects)
	require.Equal(t, listener.StateDisconnected, screen.ListenerState())

	session.set(true, false)
	require.NoError(t, screen.SessionChanged())
	require.Equal(t, listener.StateConnected, screen.ListenerState())
	require.Equal(t, 1, push.connects)

	push.current().emit(domain.PushEvent{OrderID: "44", Status: "Shipped"})
	order, _ := screen.Order("44")
	require.Equal(t, domain.OrderStatusShipped, order.Status)

	require.NoError(t, screen.SessionChanged())
	require.Equal(t, 1, push.connects)
}

func TestSessionChangedBeforeMountIsNoop(t *testing.T) {
	push := &fakeChannel{}
	screen := newSessionScreen(t, newFakeAPI(), push, &mutableSession{auth: true})

	require.NoError(t, screen.SessionChanged())
	require.Equal(t, 0, push.connects)
}

func TestDeleteRequiresPrivilege(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending))
	screen := newTestScreen(t, api, nil, "Employee", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	err := screen.Delete(context.Background(), "44")
	require.ErrorIs(t, err, domain.ErrPermissionDenied)
	require.ErrorIs(t, screen.Error(), domain.ErrPermissionDenied)

	_, ok := screen.Order("44")
	require.True(t, ok)
	require.Empty(t, api.deletes)
}

func TestDeleteRemovesOrderAndClosesDetail(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending), settled("45", domain.OrderStatusPending))
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	_, err := screen.OpenDetail("44")
	require.NoError(t, err)
	require.NoError(t, screen.Delete(context.Background(), "44"))

	_, ok := screen.Order("44")
	require.False(t, ok)
	_, open := screen.Detail()
	require.False(t, open)
	require.Len(t, screen.Orders(), 1)
}

func TestEmptyLineItemsBlockStatusChange(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending))
	api.details["44"] = domain.OrderPatch{ID: "44", Status: ptr(domain.OrderStatusPending)}
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	err := screen.ChangeStatus(context.Background(), "44", domain.OrderStatusShipped)
	require.ErrorIs(t, err, domain.ErrNoLineItems)
	require.Empty(t, api.updates)

	order, _ := screen.Order("44")
	require.Equal(t, domain.OrderStatusPending, order.Status)
}

func TestChangeStatusUpdatesListAndDetail(t *testing.T) {
	api := newFakeAPI(settled("44", domain.OrderStatusPending))
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	_, err := screen.OpenDetail("44")
	require.NoError(t, err)
	require.NoError(t, screen.ChangeStatus(context.Background(), "44", domain.OrderStatusShipped))
	require.False(t, screen.Busy("44"))

	order, _ := screen.Order("44")
	require.Equal(t, domain.OrderStatusShipped, order.Status)
	detail, ok := screen.Detail()
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusShipped, detail.Status)
	require.Len(t, api.updates, 1)
	require.Len(t, api.updates[0].LineItems, 1)
}

func TestOpenDetailDropsResponseAfterClose(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	api.details["9"] = settled("9", domain.OrderStatusDelivered)
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	gate := make(chan struct{})
	api.mu.Lock()
	api.getGate = gate
	api.mu.Unlock()

	order, err := screen.OpenDetail("9")
	require.NoError(t, err)
	require.Equal(t, "9", order.ID)
	require.Eventually(t, screen.DetailLoading, waitTimeout, waitTick)

	screen.CloseDetail()
	close(gate)

	require.Eventually(t, func() bool {
		api.mu.Lock()
		defer api.mu.Unlock()
		return api.getCalls["9"] == 1
	}, waitTimeout, waitTick)
	_, open := screen.Detail()
	require.False(t, open)
}

func TestOpenDetailTwiceWhileLoadingKeepsModal(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	api.details["9"] = settled("9", domain.OrderStatusShipped)
	push := &fakeChannel{}
	screen := newTestScreen(t, api, push, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	gate := make(chan struct{})
	api.mu.Lock()
	api.getGate = gate
	api.mu.Unlock()

	_, err := screen.OpenDetail("9")
	require.NoError(t, err)
	require.Eventually(t, screen.DetailLoading, waitTimeout, waitTick)

	// Статус из push-события попадает в открытую карточку.
	push.current().emit(domain.PushEvent{OrderID: "9", Status: "Processing"})
	detail, ok := screen.Detail()
	require.True(t, ok)
	require.Equal(t, domain.OrderStatusProcessing, detail.Status)

	again, err := screen.OpenDetail("9")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusProcessing, again.Status)
	detail, _ = screen.Detail()
	require.Equal(t, domain.OrderStatusProcessing, detail.Status)
	require.True(t, screen.DetailLoading())

	close(gate)
	require.Eventually(t, func() bool { return !screen.DetailLoading() }, waitTimeout, waitTick)
	api.mu.Lock()
	require.Equal(t, 1, api.getCalls["9"])
	api.mu.Unlock()
}

func TestOpenDetailFillsModal(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	api.details["9"] = settled("9", domain.OrderStatusDelivered)
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))

	_, err := screen.OpenDetail("9")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		detail, ok := screen.Detail()
		return ok && detail.Status == domain.OrderStatusDelivered && !screen.DetailLoading()
	}, waitTimeout, waitTick)
}

func TestMountLoadFailureKeepsScreenMounted(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	api.listErr = errors.New("backend down")
	screen := newTestScreen(t, api, nil, "Admin", Config{})

	require.Error(t, screen.Mount(context.Background()))
	require.True(t, screen.Mounted())
	require.Error(t, screen.Error())
	require.Empty(t, screen.Orders())

	api.mu.Lock()
	api.listErr = nil
	api.mu.Unlock()

	require.NoError(t, screen.Refresh(context.Background()))
	require.NoError(t, screen.Error())
	require.Equal(t, uint64(1), screen.RefreshKey())
	require.Len(t, screen.Orders(), 1)
}

func TestUnmountStopsListenerAndDropsCollection(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	push := &fakeChannel{}
	screen := newTestScreen(t, api, push, "Admin", Config{})
	require.NoError(t, screen.Mount(context.Background()))
	conn := push.current()

	require.NoError(t, screen.Unmount())
	conn.mu.Lock()
	require.True(t, conn.stopped)
	require.Empty(t, conn.handlers)
	conn.mu.Unlock()

	require.Nil(t, screen.Orders())
	require.ErrorIs(t, screen.NextPage(context.Background()), domain.ErrNotMounted)
	require.False(t, screen.Mounted())

	require.NoError(t, screen.Mount(context.Background()))
	require.Equal(t, 2, push.connects)
	require.Len(t, screen.Orders(), 1)
}

func TestSubscribeNotifiesOnChange(t *testing.T) {
	api := newFakeAPI(settled("1", domain.OrderStatusPending))
	screen := newTestScreen(t, api, nil, "Admin", Config{})
	changes := screen.Subscribe()

	require.NoError(t, screen.Mount(context.Background()))
	select {
	case <-changes:
	case <-time.After(waitTimeout):
		t.Fatal("expected change notification")
	}
}

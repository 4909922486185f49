package order_test

import (
	"context"
	"errors"
	"math"
	"regexp"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/config"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/service/order"
	"github.com/Additional-Code/comanda/internal/service/servicetest"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var clock = time.Date(2025, 1, 2, 15, 4, 5, 0, time.UTC)

type publisherMock struct {
	mock.Mock
}

func (m *publisherMock) Publish(ctx context.Context, evt event.OrderEvent) error {
	return m.Called(ctx, evt).Error(0)
}

func ofType(eventType string) any {
	return mock.MatchedBy(func(evt event.OrderEvent) bool { return evt.Type == eventType })
}

type fixture struct {
	world  *servicetest.World
	events *publisherMock
	store  cache.Store
	svc    *order.Service
}

type option func(*order.Dependencies)

func withCache(store cache.Store) option {
	return func(d *order.Dependencies) { d.Cache = store }
}

func withLocation(loc *time.Location) option {
	return func(d *order.Dependencies) { d.Settings.Location = loc }
}

func newFixture(t *testing.T, opts ...option) *fixture {
	t.Helper()

	w := servicetest.NewWorld()
	w.Branches["b1"] = entity.Branch{ID: "b1", TenantID: "t1", Name: "Centro", Active: true}
	w.Branches["b2"] = entity.Branch{ID: "b2", TenantID: "t1", Name: "Norte", Active: true}
	w.Branches["bx"] = entity.Branch{ID: "bx", TenantID: "t2", Name: "Other", Active: true}
	w.Tables["tbl1"] = entity.Table{ID: "tbl1", TenantID: "t1", BranchID: "b1", Number: "1", Status: entity.TableStatusAvailable}
	w.Tables["tbl2"] = entity.Table{ID: "tbl2", TenantID: "t1", BranchID: "b2", Number: "2", Status: entity.TableStatusAvailable}
	w.Tables["tbl3"] = entity.Table{ID: "tbl3", TenantID: "t1", BranchID: "b1", Number: "3", Status: entity.TableStatusOccupied}
	w.Customers["cust1"] = entity.Customer{ID: "cust1", TenantID: "t1", Name: "Ana"}
	w.Products["burger"] = entity.Product{ID: "burger", TenantID: "t1", Name: "Burger", BasePrice: dec("10.50"), Active: true, Available: true}
	w.Products["retired"] = entity.Product{ID: "retired", TenantID: "t1", Name: "Retired", BasePrice: dec("5"), Active: false, Available: true}
	w.Products["soldout"] = entity.Product{ID: "soldout", TenantID: "t1", Name: "Sold out", BasePrice: dec("5"), Active: true, Available: false}
	w.Products["foreign"] = entity.Product{ID: "foreign", TenantID: "t2", Name: "Foreign", BasePrice: dec("5"), Active: true, Available: true}
	w.Combos["lunch"] = entity.Combo{ID: "lunch", TenantID: "t1", Name: "Lunch combo", Price: dec("25.00"), Active: true}
	w.Combos["oldcombo"] = entity.Combo{ID: "oldcombo", TenantID: "t1", Name: "Old combo", Price: dec("9"), Active: false}

	events := new(publisherMock)
	events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	deps := order.Dependencies{
		Tx:        w,
		Orders:    servicetest.OrderStore{W: w},
		Venues:    servicetest.VenueStore{W: w},
		Customers: servicetest.CustomerStore{W: w},
		Catalog:   servicetest.CatalogStore{W: w},
		Tenants:   servicetest.TenantStore{W: w},
		History:   servicetest.HistoryStore{W: w},
		Sequence:  servicetest.SequenceStore{W: w},
		Events:    events,
		Settings: config.Orders{
			DefaultTaxRate: dec("0.16"),
			Location:       time.UTC,
			NumberPrefix:   "ORD",
			CacheTTL:       time.Minute,
			PageSize:       20,
			MaxPageSize:    100,
		},
		Now: func() time.Time { return clock },
	}
	for _, opt := range opts {
		opt(&deps)
	}

	return &fixture{world: w, events: events, store: deps.Cache, svc: order.New(deps)}
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(s string) *string { return &s }

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errorbank.HasCode(err, code), "want %s, got %v", code, err)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.StringFixed(2))
}

func burger(qty int, mods ...order.ModifierRequest) order.LineRequest {
	return order.LineRequest{ProductID: ptr("burger"), Quantity: qty, Modifiers: mods}
}

func counterOrder(lines ...order.LineRequest) order.CreateRequest {
	return order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeCounter, Items: lines}
}

func (f *fixture) create(t *testing.T, userID string, req order.CreateRequest) *entity.Order {
	t.Helper()
	o, err := f.svc.CreateOrder(context.Background(), "t1", userID, req)
	require.NoError(t, err)
	return o
}

func TestCreateOrderPricesLinesAndNumbersTheDay(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, "u1", counterOrder(burger(2, order.ModifierRequest{Name: "Cheese", PriceAdjustment: dec("1.25"), Quantity: 0})))

	assert.Equal(t, entity.OrderStatusPending, o.StatusID)
	assert.Equal(t, "ORD-20250102-001", o.OrderNumber)
	assert.Equal(t, 1, o.DailySequence)
	assert.Equal(t, "2025-01-02", o.BusinessDate)
	assert.Nil(t, o.TableID)
	assert.Nil(t, o.ClosedAt)
	assert.Equal(t, clock, o.OpenedAt)
	assert.Equal(t, "u1", o.CreatedBy)

	require.Len(t, o.Items, 1)
	item := o.Items[0]
	assert.Equal(t, "Burger", item.ProductName)
	assert.Equal(t, entity.KDSStatusPending, item.KDSStatus)
	assert.Nil(t, item.KDSSentAt)
	require.Len(t, item.Modifiers, 1)
	assert.Equal(t, 1, item.Modifiers[0].Quantity, "zero modifier quantity is stored as one")
	assertMoney(t, "1.25", item.ModifiersTotal)

	assertMoney(t, "23.50", o.Subtotal)
	assertMoney(t, "0.16", o.TaxRate)
	assertMoney(t, "3.76", o.Tax)
	assertMoney(t, "0.00", o.Discount)
	assertMoney(t, "27.26", o.Total)

	stored := f.world.Order(o.ID)
	require.NotNil(t, stored)
	assertMoney(t, "27.26", stored.Total)
	assert.Equal(t, []string{entity.OrderStatusPending}, f.world.HistoryOf(o.ID))
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderCreated))

	second := f.create(t, "u1", counterOrder(burger(1)))
	assert.Equal(t, "ORD-20250102-002", second.OrderNumber)

	other := f.create(t, "u1", order.CreateRequest{BranchID: "b2", ServiceType: entity.ServiceTypeCounter})
	assert.Equal(t, "ORD-20250102-001", other.OrderNumber, "each branch counts on its own")
	assert.Regexp(t, regexp.MustCompile(`^ORD-\d{8}-\d{3,}$`), other.OrderNumber)
}

func TestCreateOrderUsesTenantTaxRateAndDiscount(t *testing.T) {
	f := newFixture(t)
	f.world.TaxRates["t1"] = dec("0.08")

	req := counterOrder(burger(1))
	req.Discount = dec("20")
	o := f.create(t, "u1", req)

	assertMoney(t, "10.50", o.Subtotal)
	assertMoney(t, "0.84", o.Tax)
	assertMoney(t, "-8.66", o.Total)
}

func TestCreateOrderCachesTaxRate(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, withCache(cache.NewRedis(client, time.Minute)))
	f.create(t, "u1", counterOrder(burger(1)))

	raw, err := srv.Get("tenants:t1:tax_rate")
	require.NoError(t, err)
	assert.Empty(t, raw, "unset rate is cached as empty")

	f.world.TaxRates["t1"] = dec("0.08")
	o := f.create(t, "u1", counterOrder(burger(1)))
	assertMoney(t, "0.16", o.TaxRate)
}

func TestCreateOrderBusinessDayFollowsLocation(t *testing.T) {
	f := newFixture(t, withLocation(time.FixedZone("UTC-6", -6*60*60)), func(d *order.Dependencies) {
		d.Now = func() time.Time { return time.Date(2025, 1, 2, 3, 0, 0, 0, time.UTC) }
	})

	o := f.create(t, "u1", counterOrder(burger(1)))
	assert.Equal(t, "2025-01-01", o.BusinessDate)
	assert.Equal(t, "ORD-20250101-001", o.OrderNumber)
}

func TestCreateDineInOrderOccupiesTable(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, "u1", order.CreateRequest{
		BranchID:    "b1",
		ServiceType: entity.ServiceTypeDineIn,
		TableID:     ptr("tbl1"),
		Items:       []order.LineRequest{burger(1)},
	})

	require.NotNil(t, o.TableID)
	assert.Equal(t, "tbl1", *o.TableID)
	assert.Equal(t, entity.TableStatusOccupied, f.world.Table("tbl1").Status)

	_, err := f.svc.CreateOrder(context.Background(), "t1", "u2", order.CreateRequest{
		BranchID:    "b1",
		ServiceType: entity.ServiceTypeDineIn,
		TableID:     ptr("tbl1"),
	})
	requireCode(t, err, errorbank.CodeTableNotAvailable)
}

func TestCreateNonDineInOrderIgnoresTable(t *testing.T) {
	f := newFixture(t)

	req := counterOrder(burger(1))
	req.TableID = ptr("tbl1")
	o := f.create(t, "u1", req)

	assert.Nil(t, o.TableID)
	assert.Equal(t, entity.TableStatusAvailable, f.world.Table("tbl1").Status)
}

func TestCreateDeliveryOrderLinksCustomer(t *testing.T) {
	f := newFixture(t)

	o := f.create(t, "u1", order.CreateRequest{
		BranchID:    "b1",
		ServiceType: entity.ServiceTypeDelivery,
		CustomerID:  ptr("cust1"),
		Items:       []order.LineRequest{{ComboID: ptr("lunch"), Quantity: 1, Notes: "no onions"}},
	})

	require.NotNil(t, o.CustomerID)
	assert.Equal(t, "cust1", *o.CustomerID)
	require.Len(t, o.Items, 1)
	assert.Equal(t, "Lunch combo", o.Items[0].ProductName)
	assert.Equal(t, "no onions", o.Items[0].Notes)
	assertMoney(t, "25.00", o.Items[0].UnitPrice)
	assertMoney(t, "29.00", o.Total)
}

func TestCreateOrderRejections(t *testing.T) {
	dineIn := func(table string) order.CreateRequest {
		return order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeDineIn, TableID: ptr(table), Items: []order.LineRequest{burger(1)}}
	}

	cases := []struct {
		name string
		req  order.CreateRequest
		code string
		kind errorbank.Kind
	}{
		{"unknown service type", order.CreateRequest{BranchID: "b1", ServiceType: "DRIVE_THRU"}, errorbank.CodeInvalidServiceType, errorbank.KindBadRequest},
		{"dine in without table", order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeDineIn}, errorbank.CodeTableRequired, errorbank.KindBadRequest},
		{"delivery without customer", order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeDelivery}, errorbank.CodeCustomerRequired, errorbank.KindBadRequest},
		{"negative discount", order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeCounter, Discount: dec("-1")}, errorbank.CodeInvalidDiscount, errorbank.KindBadRequest},
		{"line without product or combo", counterOrder(order.LineRequest{Quantity: 1}), errorbank.CodeInvalidOrderLine, errorbank.KindBadRequest},
		{"line with product and combo", counterOrder(order.LineRequest{ProductID: ptr("burger"), ComboID: ptr("lunch"), Quantity: 1}), errorbank.CodeInvalidOrderLine, errorbank.KindBadRequest},
		{"zero quantity", counterOrder(burger(0)), errorbank.CodeInvalidQuantity, errorbank.KindBadRequest},
		{"missing branch", order.CreateRequest{BranchID: "nope", ServiceType: entity.ServiceTypeCounter}, errorbank.CodeBranchNotFound, errorbank.KindNotFound},
		{"branch of other tenant", order.CreateRequest{BranchID: "bx", ServiceType: entity.ServiceTypeCounter}, errorbank.CodeBranchNotFound, errorbank.KindNotFound},
		{"missing table", dineIn("nope"), errorbank.CodeTableNotFound, errorbank.KindNotFound},
		{"table of other branch", dineIn("tbl2"), errorbank.CodeTableNotFound, errorbank.KindNotFound},
		{"occupied table", dineIn("tbl3"), errorbank.CodeTableNotAvailable, errorbank.KindBusinessRule},
		{"missing customer", order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeDelivery, CustomerID: ptr("nope")}, errorbank.CodeCustomerNotFound, errorbank.KindNotFound},
		{"missing product", counterOrder(order.LineRequest{ProductID: ptr("nope"), Quantity: 1}), errorbank.CodeProductNotFound, errorbank.KindNotFound},
		{"product of other tenant", counterOrder(order.LineRequest{ProductID: ptr("foreign"), Quantity: 1}), errorbank.CodeProductNotFound, errorbank.KindNotFound},
		{"inactive product", counterOrder(order.LineRequest{ProductID: ptr("retired"), Quantity: 1}), errorbank.CodeProductNotAvailable, errorbank.KindBusinessRule},
		{"unavailable product", counterOrder(burger(1), order.LineRequest{ProductID: ptr("soldout"), Quantity: 1}), errorbank.CodeProductNotAvailable, errorbank.KindBusinessRule},
		{"missing combo", counterOrder(order.LineRequest{ComboID: ptr("nope"), Quantity: 1}), errorbank.CodeComboNotFound, errorbank.KindNotFound},
		{"inactive combo", counterOrder(order.LineRequest{ComboID: ptr("oldcombo"), Quantity: 1}), errorbank.CodeProductNotAvailable, errorbank.KindBusinessRule},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)

			o, err := f.svc.CreateOrder(context.Background(), "t1", "u1", tc.req)
			assert.Nil(t, o)
			requireCode(t, err, tc.code)
			assert.True(t, errorbank.IsKind(err, tc.kind))

			assert.Empty(t, f.world.Orders)
			assert.Empty(t, f.world.History)
			assert.Equal(t, entity.TableStatusAvailable, f.world.Table("tbl1").Status)
			f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateOrderRollsBackWhenHistoryFails(t *testing.T) {
	f := newFixture(t)
	f.world.FailHistory = errors.New("disk full")

	_, err := f.svc.CreateOrder(context.Background(), "t1", "u1", order.CreateRequest{
		BranchID:    "b1",
		ServiceType: entity.ServiceTypeDineIn,
		TableID:     ptr("tbl1"),
		Items:       []order.LineRequest{burger(1)},
	})
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))

	assert.Empty(t, f.world.Orders)
	assert.Equal(t, entity.TableStatusAvailable, f.world.Table("tbl1").Status)
}

func TestCreateOrderSurvivesPublishFailure(t *testing.T) {
	f := newFixture(t)
	f.events.ExpectedCalls = nil
	f.events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))

	o, err := f.svc.CreateOrder(context.Background(), "t1", "u1", counterOrder(burger(1)))
	require.NoError(t, err)
	assert.NotNil(t, f.world.Order(o.ID))
}

func TestAddAndRemoveItemsRecalculate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))

	o, err := f.svc.AddItem(ctx, "t1", "u2", o.ID, order.LineRequest{ComboID: ptr("lunch"), Quantity: 1})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)
	assert.Equal(t, 2, o.Items[1].Position)
	assertMoney(t, "35.50", o.Subtotal)
	assertMoney(t, "5.68", o.Tax)
	assertMoney(t, "41.18", o.Total)
	assert.Equal(t, "u2", o.UpdatedBy)
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderItemAdded))

	stored := f.world.Order(o.ID)
	require.Len(t, stored.Items, 2)
	assertMoney(t, "41.18", stored.Total)

	burgerID := o.Items[0].ID
	o, err = f.svc.RemoveItem(ctx, "t1", "u2", o.ID, burgerID)
	require.NoError(t, err)
	require.Len(t, o.Items, 1)
	assertMoney(t, "25.00", o.Subtotal)
	assertMoney(t, "4.00", o.Tax)
	assertMoney(t, "29.00", o.Total)
	assertMoney(t, "29.00", f.world.Order(o.ID).Total)
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderItemRemoved))

	_, err = f.svc.RemoveItem(ctx, "t1", "u2", o.ID, burgerID)
	requireCode(t, err, errorbank.CodeOrderItemNotFound)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	_, err = f.svc.AddItem(ctx, "t1", "u2", o.ID, order.LineRequest{ProductID: ptr("soldout"), Quantity: 1})
	requireCode(t, err, errorbank.CodeProductNotAvailable)
	assert.Len(t, f.world.Order(o.ID).Items, 1)
}

func TestItemMutationsRequirePendingOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))
	_, err := f.svc.SubmitOrder(ctx, "t1", "u1", o.ID)
	require.NoError(t, err)

	before := f.world.Order(o.ID)

	_, err = f.svc.AddItem(ctx, "t1", "u1", o.ID, burger(3))
	requireCode(t, err, errorbank.CodeOrderNotModifiable)

	_, err = f.svc.RemoveItem(ctx, "t1", "u1", o.ID, o.Items[0].ID)
	requireCode(t, err, errorbank.CodeOrderNotModifiable)

	assert.Equal(t, before, f.world.Order(o.ID))
}

func TestMutationsOfOtherTenantsOrdersAreNotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))

	_, err := f.svc.AddItem(ctx, "t2", "u1", o.ID, burger(1))
	requireCode(t, err, errorbank.CodeOrderNotFound)
	_, err = f.svc.SubmitOrder(ctx, "t2", "u1", o.ID)
	requireCode(t, err, errorbank.CodeOrderNotFound)
	_, err = f.svc.CancelOrder(ctx, "t2", "u1", o.ID)
	requireCode(t, err, errorbank.CodeOrderNotFound)
	assert.Equal(t, entity.OrderStatusPending, f.world.Order(o.ID).StatusID)
}

func TestSubmitOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	empty := f.create(t, "u1", counterOrder())
	_, err := f.svc.SubmitOrder(ctx, "t1", "u1", empty.ID)
	requireCode(t, err, errorbank.CodeOrderHasNoItems)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBusinessRule))
	assert.Equal(t, entity.OrderStatusPending, f.world.Order(empty.ID).StatusID)

	o := f.create(t, "u1", counterOrder(burger(1), order.LineRequest{ComboID: ptr("lunch"), Quantity: 2}))
	o, err = f.svc.SubmitOrder(ctx, "t1", "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusInProgress, o.StatusID)
	for _, item := range o.Items {
		require.NotNil(t, item.KDSSentAt)
		assert.Equal(t, clock, *item.KDSSentAt)
		assert.Equal(t, entity.KDSStatusSent, item.KDSStatus)
	}
	for _, item := range f.world.Order(o.ID).Items {
		assert.NotNil(t, item.KDSSentAt)
	}
	assert.Equal(t, []string{entity.OrderStatusPending, entity.OrderStatusInProgress}, f.world.HistoryOf(o.ID))
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderSubmitted))

	_, err = f.svc.SubmitOrder(ctx, "t1", "u1", o.ID)
	requireCode(t, err, errorbank.CodeOrderNotModifiable)
}

func TestMarkOrderReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))

	_, err := f.svc.MarkOrderReady(ctx, "t1", "u1", o.ID)
	requireCode(t, err, errorbank.CodeOrderNotInProgress)

	_, err = f.svc.SubmitOrder(ctx, "t1", "u1", o.ID)
	require.NoError(t, err)

	o, err = f.svc.MarkOrderReady(ctx, "t1", "u2", o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusReady, o.StatusID)
	assert.Equal(t, entity.OrderStatusReady, f.world.Order(o.ID).StatusID)
	assert.Equal(t, []string{entity.OrderStatusPending, entity.OrderStatusInProgress, entity.OrderStatusReady}, f.world.HistoryOf(o.ID))
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderReady))

	_, err = f.svc.MarkOrderReady(ctx, "t1", "u2", o.ID)
	requireCode(t, err, errorbank.CodeOrderNotInProgress)
}

func TestCancelDineInOrderReleasesTable(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "u1", order.CreateRequest{BranchID: "b1", ServiceType: entity.ServiceTypeDineIn, TableID: ptr("tbl1")})
	require.Equal(t, entity.TableStatusOccupied, f.world.Table("tbl1").Status)

	o, err := f.svc.CancelOrder(context.Background(), "t1", "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCancelled, o.StatusID)
	require.NotNil(t, o.ClosedAt)
	assert.Equal(t, clock, *o.ClosedAt)
	assert.Equal(t, entity.TableStatusAvailable, f.world.Table("tbl1").Status)
	assert.Equal(t, []string{entity.OrderStatusPending, entity.OrderStatusCancelled}, f.world.HistoryOf(o.ID))
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderCancelled))
}

func TestCancelCounterOrderNeverTouchesTables(t *testing.T) {
	f := newFixture(t)
	o := f.create(t, "u1", counterOrder(burger(1)))
	calls := f.world.TableCalls

	_, err := f.svc.CancelOrder(context.Background(), "t1", "u1", o.ID)
	require.NoError(t, err)
	assert.Equal(t, calls, f.world.TableCalls)
}

func TestCancelTerminalOrderFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cancelled := f.create(t, "u1", counterOrder(burger(1)))
	_, err := f.svc.CancelOrder(ctx, "t1", "u1", cancelled.ID)
	require.NoError(t, err)
	_, err = f.svc.CancelOrder(ctx, "t1", "u1", cancelled.ID)
	requireCode(t, err, errorbank.CodeOrderAlreadyTerminal)

	completed := f.create(t, "u1", counterOrder(burger(1)))
	stored := f.world.Order(completed.ID)
	stored.StatusID = entity.OrderStatusCompleted
	f.world.PutOrder(stored)

	_, err = f.svc.CancelOrder(ctx, "t1", "u1", completed.ID)
	requireCode(t, err, errorbank.CodeOrderAlreadyTerminal)
	assert.Equal(t, entity.OrderStatusCompleted, f.world.Order(completed.ID).StatusID)
}

func TestGetOrderHidesOtherUsersOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))

	got, err := f.svc.GetOrder(ctx, "t1", "u1", false, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, "t1", "u2", false, o.ID)
	requireCode(t, err, errorbank.CodeOrderNotFound)
	assert.True(t, errorbank.IsKind(err, errorbank.KindNotFound))

	got, err = f.svc.GetOrder(ctx, "t1", "u2", true, o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, got.ID)

	_, err = f.svc.GetOrder(ctx, "t2", "u1", true, o.ID)
	requireCode(t, err, errorbank.CodeOrderNotFound)
}

func TestGetOrderReadsThroughCacheAndMutationsEvict(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t, withCache(cache.NewRedis(client, time.Minute)))
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))
	key := cache.OrderKey("t1", o.ID)

	_, err := f.svc.GetOrder(ctx, "t1", "u1", false, o.ID)
	require.NoError(t, err)
	assert.True(t, srv.Exists(key))

	_, err = f.svc.GetOrder(ctx, "t1", "u2", false, o.ID)
	requireCode(t, err, errorbank.CodeOrderNotFound)

	_, err = f.svc.GetOrder(ctx, "t2", "u1", true, o.ID)
	requireCode(t, err, errorbank.CodeOrderNotFound)

	_, err = f.svc.AddItem(ctx, "t1", "u1", o.ID, burger(1))
	require.NoError(t, err)
	assert.False(t, srv.Exists(key))

	got, err := f.svc.GetOrder(ctx, "t1", "u1", false, o.ID)
	require.NoError(t, err)
	assert.Len(t, got.Items, 2)
	assertMoney(t, "24.36", got.Total)
}

type interleavedStore struct {
	servicetest.OrderStore
	afterRead *func()
}

func (s interleavedStore) FindByIDAndTenant(ctx context.Context, id, tenantID string) (*entity.Order, error) {
	o, err := s.OrderStore.FindByIDAndTenant(ctx, id, tenantID)
	if fn := *s.afterRead; err == nil && fn != nil {
		*s.afterRead = nil
		fn()
	}
	return o, err
}

func TestGetOrderSkipsCachingAnOrderChangedDuringTheRead(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var afterRead func()
	f := newFixture(t, withCache(cache.NewRedis(client, time.Minute)), func(d *order.Dependencies) {
		d.Orders = interleavedStore{OrderStore: d.Orders.(servicetest.OrderStore), afterRead: &afterRead}
	})
	ctx := context.Background()
	o := f.create(t, "u1", counterOrder(burger(1)))
	key := cache.OrderKey("t1", o.ID)

	afterRead = func() {
		_, err := f.svc.AddItem(ctx, "t1", "u1", o.ID, burger(1))
		require.NoError(t, err)
	}
	stale, err := f.svc.GetOrder(ctx, "t1", "u1", false, o.ID)
	require.NoError(t, err)
	assert.Len(t, stale.Items, 1)
	assert.False(t, srv.Exists(key))

	fresh, err := f.svc.GetOrder(ctx, "t1", "u1", false, o.ID)
	require.NoError(t, err)
	assert.Len(t, fresh.Items, 2)
	assert.True(t, srv.Exists(key))

	cached, err := f.svc.GetOrder(ctx, "t1", "u1", false, o.ID)
	require.NoError(t, err)
	assert.Equal(t, fresh.Version, cached.Version)
	assert.Len(t, cached.Items, 2)
}

func TestListOrdersCapsHugePages(t *testing.T) {
	f := newFixture(t)
	f.create(t, "u1", counterOrder(burger(1)))

	page, err := f.svc.ListOrders(context.Background(), order.ListQuery{TenantID: "t1", UserID: "u1", Page: math.MaxInt, Size: 20})
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt32/20, page.Page)
	assert.Equal(t, 1, page.Total)
	assert.Empty(t, page.Items)
}

func TestListOrders(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var mine []*entity.Order
	for i := 0; i < 3; i++ {
		mine = append(mine, f.create(t, "u1", counterOrder(burger(1))))
	}
	theirs := f.create(t, "u2", order.CreateRequest{BranchID: "b2", ServiceType: entity.ServiceTypeCounter})
	_, err := f.svc.CancelOrder(ctx, "t1", "u2", theirs.ID)
	require.NoError(t, err)

	page, err := f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t1", UserID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 20, page.Size)
	for _, o := range page.Items {
		assert.Equal(t, "u1", o.CreatedBy)
	}

	page, err = f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t1", UserID: "u1", IsManager: true})
	require.NoError(t, err)
	assert.Equal(t, 4, page.Total)

	page, err = f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t1", UserID: "u1", IsManager: true, StatusID: ptr(entity.OrderStatusCancelled)})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, theirs.ID, page.Items[0].ID)

	page, err = f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t1", UserID: "u1", IsManager: true, BranchID: ptr("b1"), Page: 2, Size: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Len(t, page.Items, 1)

	page, err = f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t1", UserID: "u1", Page: -3, Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.Size)

	page, err = f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t2", UserID: "u1", IsManager: true})
	require.NoError(t, err)
	assert.Zero(t, page.Total)

	_, err = f.svc.ListOrders(ctx, order.ListQuery{TenantID: "t1", StatusID: ptr("LOST")})
	requireCode(t, err, errorbank.CodeInvalidStatus)
	assert.Len(t, mine, 3)
}

func TestFormatNumber(t *testing.T) {
	day := time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "ORD-20250309-007", order.FormatNumber("ORD", day, 7))
	assert.Equal(t, "ORD-20250309-1234", order.FormatNumber("ORD", day, 1234))
}

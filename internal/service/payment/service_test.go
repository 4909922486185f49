package payment_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/comanda/internal/cache"
	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/event"
	"github.com/Additional-Code/comanda/internal/service/payment"
	"github.com/Additional-Code/comanda/internal/service/servicetest"
	"github.com/Additional-Code/comanda/pkg/errorbank"
)

var clock = time.Date(2025, 3, 9, 20, 30, 0, 0, time.UTC)

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
	svc    *payment.Service
}

func newFixture(t *testing.T, store cache.Store) *fixture {
	t.Helper()

	w := servicetest.NewWorld()
	w.Tables["tbl1"] = entity.Table{ID: "tbl1", TenantID: "t1", BranchID: "b1", Number: "1", Status: entity.TableStatusOccupied}
	w.Customers["cust1"] = entity.Customer{ID: "cust1", TenantID: "t1", Name: "Ana", TotalOrders: 2, TotalSpent: dec("40.00")}

	events := new(publisherMock)
	events.On("Publish", mock.Anything, mock.Anything).Return(nil)

	svc := payment.New(payment.Dependencies{
		Tx:        w,
		Orders:    servicetest.OrderStore{W: w},
		Payments:  servicetest.PaymentStore{W: w},
		Tables:    servicetest.VenueStore{W: w},
		Customers: servicetest.CustomerStore{W: w},
		History:   servicetest.HistoryStore{W: w},
		Events:    events,
		Cache:     store,
		Now:       func() time.Time { return clock },
	})
	return &fixture{world: w, events: events, svc: svc}
}

func (f *fixture) putOrder(id, status, total string, mutate ...func(*entity.Order)) {
	o := &entity.Order{
		ID:          id,
		TenantID:    "t1",
		BranchID:    "b1",
		ServiceType: entity.ServiceTypeCounter,
		OrderNumber: "ORD-20250309-001",
		Total:       dec(total),
		StatusID:    status,
		OpenedAt:    clock.Add(-time.Hour),
		CreatedBy:   "u1",
		UpdatedBy:   "u1",
	}
	for _, m := range mutate {
		m(o)
	}
	f.world.PutOrder(o)
}

func dineIn(o *entity.Order) {
	table := "tbl1"
	o.ServiceType = entity.ServiceTypeDineIn
	o.TableID = &table
}

func forCustomer(o *entity.Order) {
	customer := "cust1"
	o.CustomerID = &customer
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func cash(orderID, tendered string) payment.RegisterRequest {
	return payment.RegisterRequest{OrderID: orderID, PaymentMethod: "CASH", AmountTendered: dec(tendered)}
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, errorbank.HasCode(err, code), "want %s, got %v", code, err)
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), "want %s, got %s", want, got.StringFixed(2))
}

func TestExactCashPaymentCompletesOrder(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "41.18")

	p, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "41.18"))
	require.NoError(t, err)

	assertMoney(t, "41.18", p.Amount)
	assertMoney(t, "41.18", p.AmountReceived)
	assertMoney(t, "0.00", p.ChangeGiven)
	assert.Equal(t, entity.PaymentMethodCash, p.PaymentMethod)
	assert.Equal(t, "cashier", p.CreatedBy)

	o := f.world.Order("o1")
	assert.Equal(t, entity.OrderStatusCompleted, o.StatusID)
	require.NotNil(t, o.ClosedAt)
	assert.Equal(t, clock, *o.ClosedAt)
	assert.Equal(t, []string{entity.OrderStatusCompleted}, f.world.HistoryOf("o1"))

	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.PaymentRegistered))
	f.events.AssertCalled(t, "Publish", mock.Anything, ofType(event.OrderCompleted))
}

func TestOverpaymentReturnsChange(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "39.00")

	p, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "50"))
	require.NoError(t, err)

	assertMoney(t, "39.00", p.Amount)
	assertMoney(t, "50.00", p.AmountReceived)
	assertMoney(t, "11.00", p.ChangeGiven)
	assert.Equal(t, "50.00", p.AmountReceived.StringFixed(2))
}

func TestPaymentMethodIsNormalized(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "10.00")

	p, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", payment.RegisterRequest{
		OrderID: "o1", PaymentMethod: " cash ", AmountTendered: dec("10"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.PaymentMethodCash, p.PaymentMethod)
}

func TestRegisterPaymentRejections(t *testing.T) {
	tests := []struct {
		name   string
		status string
		req    payment.RegisterRequest
		code   string
	}{
		{"insufficient", entity.OrderStatusReady, cash("o1", "41.17"), errorbank.CodeInsufficientPayment},
		{"zero tendered", entity.OrderStatusReady, cash("o1", "0"), errorbank.CodeInsufficientPayment},
		{"negative tendered", entity.OrderStatusReady, cash("o1", "-5"), errorbank.CodeInvalidAmount},
		{"pending order", entity.OrderStatusPending, cash("o1", "100"), errorbank.CodeOrderNotReady},
		{"in progress order", entity.OrderStatusInProgress, cash("o1", "100"), errorbank.CodeOrderNotReady},
		{"completed order", entity.OrderStatusCompleted, cash("o1", "100"), errorbank.CodeOrderNotReady},
		{"card", entity.OrderStatusReady, payment.RegisterRequest{OrderID: "o1", PaymentMethod: "CARD", AmountTendered: dec("100")}, errorbank.CodeUnsupportedPaymentMethod},
		{"unknown order", entity.OrderStatusReady, cash("nope", "100"), errorbank.CodeOrderNotFound},
		{"unknown order with zero tendered", entity.OrderStatusReady, cash("nope", "0"), errorbank.CodeOrderNotFound},
		{"pending order with zero tendered", entity.OrderStatusPending, cash("o1", "0"), errorbank.CodeOrderNotReady},
		{"card with negative tendered", entity.OrderStatusReady, payment.RegisterRequest{OrderID: "o1", PaymentMethod: "CARD", AmountTendered: dec("-1")}, errorbank.CodeUnsupportedPaymentMethod},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.putOrder("o1", tt.status, "41.18", dineIn)

			_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", tt.req)
			requireCode(t, err, tt.code)

			assert.Zero(t, f.world.PaymentCount())
			assert.Equal(t, tt.status, f.world.Order("o1").StatusID)
			assert.Equal(t, entity.TableStatusOccupied, f.world.Table("tbl1").Status)
			f.events.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		})
	}
}

func TestFullyDiscountedOrderCanBePaid(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		tendered string
		change   string
	}{
		{"zero total, nothing tendered", "0.00", "0", "0.00"},
		{"zero total, cash tendered", "0.00", "5", "5.00"},
		{"negative total", "-3.50", "0", "3.50"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.putOrder("o1", entity.OrderStatusReady, tt.total, dineIn)

			p, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", tt.tendered))
			require.NoError(t, err)
			assertMoney(t, tt.total, p.Amount)
			assertMoney(t, tt.change, p.ChangeGiven)
			assert.Equal(t, entity.OrderStatusCompleted, f.world.Order("o1").StatusID)
			assert.Equal(t, entity.TableStatusAvailable, f.world.Table("tbl1").Status)
		})
	}
}

func TestInsufficientPaymentIsAnInputError(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "20.00")

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "19.99"))
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindBadRequest))
}

func TestOrderOfAnotherTenantIsNotFound(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "10.00")

	_, err := f.svc.RegisterPayment(context.Background(), "t2", "cashier", cash("o1", "10"))
	requireCode(t, err, errorbank.CodeOrderNotFound)

	_, err = f.svc.ListPayments(context.Background(), "t2", "o1")
	requireCode(t, err, errorbank.CodeOrderNotFound)
}

func TestCompletingDineInReleasesTable(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "41.18", dineIn)

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "50"))
	require.NoError(t, err)

	table := f.world.Table("tbl1")
	assert.Equal(t, entity.TableStatusAvailable, table.Status)
	assert.Equal(t, clock, table.UpdatedAt)
}

func TestCompletionUpdatesCustomerStatistics(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "41.18", forCustomer)

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "41.18"))
	require.NoError(t, err)

	c := f.world.Customer("cust1")
	assert.Equal(t, 3, c.TotalOrders)
	assertMoney(t, "81.18", c.TotalSpent)
	require.NotNil(t, c.LastOrderAt)
	assert.Equal(t, clock, *c.LastOrderAt)
}

func TestCompletionWithoutCustomerOrTableTouchesNeither(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "12.00")

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "12"))
	require.NoError(t, err)

	assert.Zero(t, f.world.CustomerStatCalls)
	assert.Zero(t, f.world.TableCalls)
}

func TestHistoryFailureRollsBackPayment(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "41.18", dineIn, forCustomer)
	f.world.FailHistory = errors.New("disk full")

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "50"))
	require.Error(t, err)
	assert.True(t, errorbank.IsKind(err, errorbank.KindInternal))

	assert.Zero(t, f.world.PaymentCount())
	assert.Equal(t, entity.OrderStatusReady, f.world.Order("o1").StatusID)
	assert.Equal(t, entity.TableStatusOccupied, f.world.Table("tbl1").Status)
	assert.Equal(t, 2, f.world.Customer("cust1").TotalOrders)
}

func TestPublishFailureDoesNotFailPayment(t *testing.T) {
	f := newFixture(t, nil)
	f.events.ExpectedCalls = nil
	f.events.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
	f.putOrder("o1", entity.OrderStatusReady, "10.00")

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "10"))
	require.NoError(t, err)
	assert.Equal(t, entity.OrderStatusCompleted, f.world.Order("o1").StatusID)
}

func TestRegisterPaymentEvictsCachedOrder(t *testing.T) {
	srv := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	store := cache.NewRedis(client, time.Minute)

	f := newFixture(t, store)
	f.putOrder("o1", entity.OrderStatusReady, "10.00")
	require.NoError(t, srv.Set(cache.OrderKey("t1", "o1"), `{"id":"o1"}`))

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "10"))
	require.NoError(t, err)
	assert.False(t, srv.Exists(cache.OrderKey("t1", "o1")))
}

func TestListPayments(t *testing.T) {
	f := newFixture(t, nil)
	f.putOrder("o1", entity.OrderStatusReady, "10.00")
	f.putOrder("o2", entity.OrderStatusReady, "5.00")

	_, err := f.svc.RegisterPayment(context.Background(), "t1", "cashier", cash("o1", "20"))
	require.NoError(t, err)

	payments, err := f.svc.ListPayments(context.Background(), "t1", "o1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assertMoney(t, "10.00", payments[0].ChangeGiven)

	payments, err = f.svc.ListPayments(context.Background(), "t1", "o2")
	require.NoError(t, err)
	assert.Empty(t, payments)
}

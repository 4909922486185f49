// Package servicetest holds an in-memory backing store for service tests. A
// World satisfies every store the services consume; its transactions roll
// back by restoring a snapshot.
package servicetest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Additional-Code/comanda/internal/entity"
	"github.com/Additional-Code/comanda/internal/repository"
	orderrepo "github.com/Additional-Code/comanda/internal/repository/order"
)

// World is the in-memory state shared by the adapters below.
type World struct {
	mu sync.Mutex

	Orders    map[string]*entity.Order
	Branches  map[string]entity.Branch
	Tables    map[string]entity.Table
	Customers map[string]entity.Customer
	Products  map[string]entity.Product
	Combos    map[string]entity.Combo
	TaxRates  map[string]decimal.Decimal
	History   []entity.OrderStatusHistory
	Payments  []entity.Payment
	Sequences map[string]int

	// TableCalls counts every table lookup or write.
	TableCalls int
	// CustomerStatCalls counts IncrementOrderStats calls.
	CustomerStatCalls int
	// FailHistory makes Record fail when set.
	FailHistory error
}

// NewWorld returns an empty world.
func NewWorld() *World {
	return &World{
		Orders:    map[string]*entity.Order{},
		Branches:  map[string]entity.Branch{},
		Tables:    map[string]entity.Table{},
		Customers: map[string]entity.Customer{},
		Products:  map[string]entity.Product{},
		Combos:    map[string]entity.Combo{},
		TaxRates:  map[string]decimal.Decimal{},
		Sequences: map[string]int{},
	}
}

// Order returns a copy of the stored order, or nil.
func (w *World) Order(id string) *entity.Order {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.Orders[id]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

// PutOrder stores a copy of o.
func (w *World) PutOrder(o *entity.Order) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.Orders[o.ID] = cloneOrder(o)
}

// Table returns the stored table.
func (w *World) Table(id string) entity.Table {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Tables[id]
}

// Customer returns the stored customer.
func (w *World) Customer(id string) entity.Customer {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.Customers[id]
}

// HistoryOf lists the statuses recorded for an order, oldest first.
func (w *World) HistoryOf(orderID string) []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	var out []string
	for _, h := range w.History {
		if h.OrderID == orderID {
			out = append(out, h.StatusID)
		}
	}
	return out
}

// PaymentCount returns the number of stored payments.
func (w *World) PaymentCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.Payments)
}

// RunInTx runs fn and restores the pre-call state if it fails.
func (w *World) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	w.mu.Lock()
	snap := w.snapshot()
	w.mu.Unlock()

	if err := fn(ctx); err != nil {
		w.mu.Lock()
		w.restore(snap)
		w.mu.Unlock()
		return err
	}
	return nil
}

type snapshot struct {
	orders    map[string]*entity.Order
	tables    map[string]entity.Table
	customers map[string]entity.Customer
	history   []entity.OrderStatusHistory
	payments  []entity.Payment
	sequences map[string]int
}

func (w *World) snapshot() snapshot {
	s := snapshot{
		orders:    make(map[string]*entity.Order, len(w.Orders)),
		tables:    make(map[string]entity.Table, len(w.Tables)),
		customers: make(map[string]entity.Customer, len(w.Customers)),
		history:   append([]entity.OrderStatusHistory(nil), w.History...),
		payments:  append([]entity.Payment(nil), w.Payments...),
		sequences: make(map[string]int, len(w.Sequences)),
	}
	for k, v := range w.Orders {
		s.orders[k] = cloneOrder(v)
	}
	for k, v := range w.Tables {
		s.tables[k] = v
	}
	for k, v := range w.Customers {
		s.customers[k] = v
	}
	for k, v := range w.Sequences {
		s.sequences[k] = v
	}
	return s
}

func (w *World) restore(s snapshot) {
	w.Orders = s.orders
	w.Tables = s.tables
	w.Customers = s.customers
	w.History = s.history
	w.Payments = s.payments
	w.Sequences = s.sequences
}

func cloneOrder(o *entity.Order) *entity.Order {
	c := *o
	c.Items = make([]entity.OrderItem, len(o.Items))
	for i, it := range o.Items {
		it.Modifiers = append([]entity.OrderItemModifier(nil), it.Modifiers...)
		c.Items[i] = it
	}
	return &c
}

// OrderStore adapts the world to the order repository contract.
type OrderStore struct{ W *World }

func (s OrderStore) Create(_ context.Context, o *entity.Order) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	if _, ok := s.W.Orders[o.ID]; ok {
		return fmt.Errorf("duplicate order %s", o.ID)
	}
	for _, other := range s.W.Orders {
		if other.TenantID == o.TenantID && other.BranchID == o.BranchID &&
			other.BusinessDate == o.BusinessDate && other.DailySequence == o.DailySequence {
			return fmt.Errorf("duplicate daily sequence %d", o.DailySequence)
		}
	}
	s.W.Orders[o.ID] = cloneOrder(o)
	return nil
}

func (s OrderStore) Update(_ context.Context, o *entity.Order) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	stored, ok := s.W.Orders[o.ID]
	if !ok || stored.TenantID != o.TenantID {
		return repository.ErrNotFound
	}
	stored.Subtotal, stored.Tax, stored.Discount, stored.Total = o.Subtotal, o.Tax, o.Discount, o.Total
	stored.StatusID, stored.ClosedAt = o.StatusID, o.ClosedAt
	stored.UpdatedBy, stored.UpdatedAt = o.UpdatedBy, o.UpdatedAt
	stored.Version++
	o.Version = stored.Version
	return nil
}

func (s OrderStore) Version(_ context.Context, id, tenantID string) (int, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	o, ok := s.W.Orders[id]
	if !ok || o.TenantID != tenantID {
		return 0, repository.ErrNotFound
	}
	return o.Version, nil
}

func (s OrderStore) FindByIDAndTenant(_ context.Context, id, tenantID string) (*entity.Order, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	o, ok := s.W.Orders[id]
	if !ok || o.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return cloneOrder(o), nil
}

func (s OrderStore) FindForUpdate(ctx context.Context, id, tenantID string) (*entity.Order, error) {
	return s.FindByIDAndTenant(ctx, id, tenantID)
}

func (s OrderStore) List(_ context.Context, f orderrepo.ListFilter) ([]entity.Order, int, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	matched := make([]entity.Order, 0)
	for _, o := range s.W.Orders {
		if o.TenantID != f.TenantID ||
			(f.CreatedBy != nil && o.CreatedBy != *f.CreatedBy) ||
			(f.BranchID != nil && o.BranchID != *f.BranchID) ||
			(f.StatusID != nil && o.StatusID != *f.StatusID) {
			continue
		}
		matched = append(matched, *cloneOrder(o))
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].OpenedAt.Equal(matched[j].OpenedAt) {
			return matched[i].OpenedAt.After(matched[j].OpenedAt)
		}
		return matched[i].ID < matched[j].ID
	})
	if f.Offset < 0 || f.Limit < 0 {
		return nil, 0, fmt.Errorf("negative offset %d or limit %d", f.Offset, f.Limit)
	}
	total := len(matched)
	start := min(f.Offset, total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (s OrderStore) AddItem(_ context.Context, item *entity.OrderItem) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	o, ok := s.W.Orders[item.OrderID]
	if !ok {
		return repository.ErrNotFound
	}
	it := *item
	it.Modifiers = append([]entity.OrderItemModifier(nil), item.Modifiers...)
	o.Items = append(o.Items, it)
	return nil
}

func (s OrderStore) RemoveItem(_ context.Context, orderID, itemID string) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	o, ok := s.W.Orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	idx := o.ItemIndex(itemID)
	if idx < 0 {
		return repository.ErrNotFound
	}
	o.Items = append(o.Items[:idx], o.Items[idx+1:]...)
	return nil
}

func (s OrderStore) MarkItemsSent(_ context.Context, orderID string, at time.Time) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	o, ok := s.W.Orders[orderID]
	if !ok {
		return repository.ErrNotFound
	}
	for i := range o.Items {
		if o.Items[i].KDSSentAt == nil {
			t := at
			o.Items[i].KDSSentAt = &t
			o.Items[i].KDSStatus = entity.KDSStatusSent
		}
	}
	return nil
}

// VenueStore adapts the world to the branch and table contract.
type VenueStore struct{ W *World }

func (s VenueStore) FindBranch(_ context.Context, id, tenantID string) (*entity.Branch, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	b, ok := s.W.Branches[id]
	if !ok || b.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &b, nil
}

func (s VenueStore) FindTable(_ context.Context, id, tenantID string) (*entity.Table, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	s.W.TableCalls++
	t, ok := s.W.Tables[id]
	if !ok || t.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &t, nil
}

func (s VenueStore) TableBelongsToBranch(_ context.Context, tableID, branchID, tenantID string) (bool, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	s.W.TableCalls++
	t, ok := s.W.Tables[tableID]
	return ok && t.BranchID == branchID && t.TenantID == tenantID, nil
}

func (s VenueStore) OccupyTable(_ context.Context, table *entity.Table, at time.Time) (bool, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	s.W.TableCalls++
	t, ok := s.W.Tables[table.ID]
	if !ok || t.Status != entity.TableStatusAvailable {
		return false, nil
	}
	t.Status = entity.TableStatusOccupied
	t.UpdatedAt = at
	s.W.Tables[table.ID] = t
	table.Status = t.Status
	return true, nil
}

func (s VenueStore) SaveTable(_ context.Context, table *entity.Table) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	s.W.TableCalls++
	s.W.Tables[table.ID] = *table
	return nil
}

// CustomerStore adapts the world to the customer contract.
type CustomerStore struct{ W *World }

func (s CustomerStore) FindByIDAndTenant(_ context.Context, id, tenantID string) (*entity.Customer, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	c, ok := s.W.Customers[id]
	if !ok || c.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

func (s CustomerStore) IncrementOrderStats(_ context.Context, tenantID, customerID string, amount decimal.Decimal, at time.Time) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	s.W.CustomerStatCalls++
	c, ok := s.W.Customers[customerID]
	if !ok || c.TenantID != tenantID {
		return repository.ErrNotFound
	}
	c.TotalOrders++
	c.TotalSpent = c.TotalSpent.Add(amount)
	c.LastOrderAt = &at
	s.W.Customers[customerID] = c
	return nil
}

// CatalogStore adapts the world to the product and combo contract.
type CatalogStore struct{ W *World }

func (s CatalogStore) FindProduct(_ context.Context, id, tenantID string) (*entity.Product, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	p, ok := s.W.Products[id]
	if !ok || p.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (s CatalogStore) FindCombo(_ context.Context, id, tenantID string) (*entity.Combo, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	c, ok := s.W.Combos[id]
	if !ok || c.TenantID != tenantID {
		return nil, repository.ErrNotFound
	}
	return &c, nil
}

// TenantStore adapts the world to the tax rate contract.
type TenantStore struct{ W *World }

func (s TenantStore) TaxRate(_ context.Context, tenantID string) (decimal.NullDecimal, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	rate, ok := s.W.TaxRates[tenantID]
	return decimal.NullDecimal{Decimal: rate, Valid: ok}, nil
}

// HistoryStore adapts the world to the status history contract.
type HistoryStore struct{ W *World }

func (s HistoryStore) Record(_ context.Context, tenantID, orderID, statusID, userID string, at time.Time) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	if s.W.FailHistory != nil {
		return s.W.FailHistory
	}
	s.W.History = append(s.W.History, entity.OrderStatusHistory{
		ID:        fmt.Sprintf("h%d", len(s.W.History)+1),
		TenantID:  tenantID,
		OrderID:   orderID,
		StatusID:  statusID,
		ChangedBy: userID,
		ChangedAt: at,
	})
	return nil
}

// SequenceStore adapts the world to the daily sequence contract.
type SequenceStore struct{ W *World }

func (s SequenceStore) Next(_ context.Context, tenantID, branchID, businessDate string) (int, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	key := tenantID + "/" + branchID + "/" + businessDate
	s.W.Sequences[key]++
	return s.W.Sequences[key], nil
}

// PaymentStore adapts the world to the payment contract.
type PaymentStore struct{ W *World }

func (s PaymentStore) Create(_ context.Context, p *entity.Payment) error {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	s.W.Payments = append(s.W.Payments, *p)
	return nil
}

func (s PaymentStore) SumByOrder(_ context.Context, tenantID, orderID string) (decimal.Decimal, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	sum := decimal.Zero
	for _, p := range s.W.Payments {
		if p.TenantID == tenantID && p.OrderID == orderID {
			sum = sum.Add(p.Amount)
		}
	}
	return sum, nil
}

func (s PaymentStore) ListByOrder(_ context.Context, tenantID, orderID string) ([]entity.Payment, error) {
	s.W.mu.Lock()
	defer s.W.mu.Unlock()
	out := make([]entity.Payment, 0)
	for _, p := range s.W.Payments {
		if p.TenantID == tenantID && p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out, nil
}

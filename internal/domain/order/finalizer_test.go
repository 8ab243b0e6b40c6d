package order

import (
	"context"
	"testing"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/tradecart/marketplace/internal/domain/cart"
	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/payment"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/vendor"
)

// --- Mock implementations ---

// txState is the in-memory database the mock transaction mutates. The store
// clones it per transaction and merges only on success, so aborted
// transactions leave it untouched.
type txState struct {
	products     map[string]*product.Product
	vendors      map[string]*vendor.Vendor
	orders       []*Order
	redemptions  map[string]string
	removedLines [][]string
	paid         map[string]bool
}

func newTxState() *txState {
	return &txState{
		products:    map[string]*product.Product{},
		vendors:     map[string]*vendor.Vendor{},
		redemptions: map[string]string{},
		paid:        map[string]bool{},
	}
}

func (s *txState) clone() *txState {
	c := newTxState()
	for id, p := range s.products {
		cp := *p
		c.products[id] = &cp
	}
	for id, v := range s.vendors {
		cv := *v
		c.vendors[id] = &cv
	}
	c.orders = append(c.orders, s.orders...)
	for k, v := range s.redemptions {
		c.redemptions[k] = v
	}
	c.removedLines = append(c.removedLines, s.removedLines...)
	for k, v := range s.paid {
		c.paid[k] = v
	}
	return c
}

type mockTx struct {
	state *txState
	store *mockTxStore
}

func (t *mockTx) FindOrderByPaymentID(_ context.Context, paymentID string) (*Order, error) {
	// Simulates read committed: while a concurrent finalization's insert is
	// uncommitted, the guard read sees no order.
	if t.store.guardMisses > 0 {
		t.store.guardMisses--
		return nil, ErrNotFound
	}
	for _, o := range t.state.orders {
		if o.PaymentID == paymentID {
			return o, nil
		}
	}
	return nil, ErrNotFound
}

func (t *mockTx) GetProducts(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := t.state.products[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (t *mockTx) GetVendors(_ context.Context, ids []string) ([]vendor.Vendor, error) {
	out := make([]vendor.Vendor, 0, len(ids))
	for _, id := range ids {
		if v, ok := t.state.vendors[id]; ok {
			out = append(out, *v)
		}
	}
	return out, nil
}

func (t *mockTx) ReserveStock(_ context.Context, productID string, qty int) error {
	p, ok := t.state.products[productID]
	if !ok {
		return product.ErrNotFound
	}
	if p.Stock < qty {
		return &InsufficientStockError{ProductID: productID, Available: p.Stock}
	}
	p.Stock -= qty
	return nil
}

func (t *mockTx) CreateOrder(_ context.Context, o *Order) error {
	// Enforces the payment_id unique index.
	for _, prev := range t.state.orders {
		if prev.PaymentID == o.PaymentID {
			return errors.Wrapf(ErrDuplicatePayment, "payment %s", o.PaymentID)
		}
	}
	t.state.orders = append(t.state.orders, o)
	return nil
}

func (t *mockTx) RedeemCouponOnce(_ context.Context, couponID, customerID, orderID string) error {
	key := couponID + ":" + customerID
	if _, ok := t.state.redemptions[key]; ok {
		return coupon.ErrAlreadyRedeemed
	}
	t.state.redemptions[key] = orderID
	return nil
}

func (t *mockTx) RemoveCartLines(_ context.Context, _ cart.Owner, productIDs []string) error {
	t.state.removedLines = append(t.state.removedLines, productIDs)
	return nil
}

func (t *mockTx) MarkPaymentPaid(_ context.Context, paymentID string) error {
	t.state.paid[paymentID] = true
	return nil
}

type mockTxStore struct {
	state *txState
	// guardMisses makes the next N idempotency-guard reads come back empty,
	// the way read committed hides a concurrent uncommitted insert.
	guardMisses int
}

func (s *mockTxStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	working := s.state.clone()
	if err := fn(ctx, &mockTx{state: working, store: s}); err != nil {
		return err
	}
	*s.state = *working
	return nil
}

type mockDispatcher struct {
	enqueued   []ShipmentJob
	synced     []ShipmentJob
	enqueueErr error
}

func (m *mockDispatcher) Enqueue(_ context.Context, job ShipmentJob) error {
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

func (m *mockDispatcher) DispatchSync(_ context.Context, job ShipmentJob) error {
	m.synced = append(m.synced, job)
	return nil
}

type mockNotifier struct {
	confirmed int
	vendors   []string
	admin     int
}

func (m *mockNotifier) OrderConfirmed(_ context.Context, _ *Order) error {
	m.confirmed++
	return nil
}

func (m *mockNotifier) VendorOrderReceived(_ context.Context, vendorID string, _ *Order) error {
	m.vendors = append(m.vendors, vendorID)
	return nil
}

func (m *mockNotifier) AdminOrderPlaced(_ context.Context, _ *Order) error {
	m.admin++
	return nil
}

type mockCartMaintainer struct {
	refreshed int
	recovered int
}

func (m *mockCartMaintainer) Refresh(_ context.Context, _ pricing.Buyer) error {
	m.refreshed++
	return nil
}

func (m *mockCartMaintainer) MarkRecovered(_ context.Context, _ pricing.Buyer) error {
	m.recovered++
	return nil
}

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type finalizerFixture struct {
	state      *txState
	store      *mockTxStore
	dispatcher *mockDispatcher
	notifier   *mockNotifier
	carts      *mockCartMaintainer
	finalizer  *Finalizer
}

func newFinalizerFixture() *finalizerFixture {
	f := &finalizerFixture{
		state:      newTxState(),
		dispatcher: &mockDispatcher{},
		notifier:   &mockNotifier{},
		carts:      &mockCartMaintainer{},
	}
	f.store = &mockTxStore{state: f.state}
	f.state.products["p1"] = &product.Product{ID: "p1", VendorID: "v1", Name: "Widget", Stock: 10, Active: true}
	f.state.products["p2"] = &product.Product{ID: "p2", VendorID: "v2", Name: "Gadget", Stock: 5, Active: true}
	f.state.vendors["v1"] = &vendor.Vendor{ID: "v1", Name: "First", Active: true}
	f.state.vendors["v2"] = &vendor.Vendor{ID: "v2", Name: "Second", Active: true}

	counter, err := noop.NewMeterProvider().Meter("test").Int64Counter("orders_finalized_total")
	if err != nil {
		panic(err)
	}
	f.finalizer = NewFinalizer(f.store, f.dispatcher, f.notifier, f.carts, counter)
	return f
}

func pricedCart(lines ...pricing.LineBreakdown) *cart.Cart {
	snap := &pricing.Snapshot{Lines: lines}
	for _, l := range lines {
		snap.Subtotal = snap.Subtotal.Add(l.Total)
	}
	snap.GrandTotal = snap.Subtotal
	c := &cart.Cart{
		ID:       "cart-1",
		Owner:    cart.Owner{CustomerID: "cust-1"},
		Lines:    make([]cart.Line, 0, len(lines)),
		Snapshot: snap,
	}
	for _, l := range lines {
		c.Lines = append(c.Lines, cart.Line{
			ProductID: l.ProductID,
			VendorID:  l.VendorID,
			Quantity:  l.Quantity,
		})
	}
	return c
}

func line(productID, vendorID string, qty int, total string) pricing.LineBreakdown {
	return pricing.LineBreakdown{
		ProductID: productID,
		VendorID:  vendorID,
		Quantity:  qty,
		Subtotal:  d(total),
		Total:     d(total),
	}
}

func pendingPayment() *payment.Payment {
	return &payment.Payment{
		ID:         "pay-1",
		CustomerID: "cust-1",
		AddressID:  "addr-1",
		Method:     payment.MethodGateway,
		Status:     payment.StatusPending,
		Amount:     d("100"),
	}
}

// --- Tests ---

func TestFinalize_CreatesOrderAtomically(t *testing.T) {
	f := newFinalizerFixture()

	o, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 2, "200"), line("p2", "v2", 1, "300")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, "pay-1", o.PaymentID)
	assert.Equal(t, "cust-1", o.CustomerID)
	assert.Len(t, o.Shipments, 2)
	assert.True(t, d("500").Equal(o.GrandTotal))

	assert.Equal(t, 8, f.state.products["p1"].Stock)
	assert.Equal(t, 4, f.state.products["p2"].Stock)
	assert.True(t, f.state.paid["pay-1"])
	require.Len(t, f.state.removedLines, 1)
	assert.ElementsMatch(t, []string{"p1", "p2"}, f.state.removedLines[0])

	assert.Len(t, f.dispatcher.enqueued, 2)
	assert.Equal(t, 1, f.notifier.confirmed)
	assert.ElementsMatch(t, []string{"v1", "v2"}, f.notifier.vendors)
	assert.Equal(t, 1, f.notifier.admin)
	assert.Equal(t, 1, f.carts.refreshed)
	assert.Equal(t, 1, f.carts.recovered)
}

func TestFinalize_DuplicatePaymentIsIdempotent(t *testing.T) {
	f := newFinalizerFixture()
	req := FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 1, "100")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	}

	first, err := f.finalizer.Finalize(context.Background(), req)
	require.NoError(t, err)
	second, err := f.finalizer.Finalize(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, f.state.orders, 1)
	// No second reservation, dispatch, or notification round.
	assert.Equal(t, 9, f.state.products["p1"].Stock)
	assert.Len(t, f.dispatcher.enqueued, 1)
	assert.Equal(t, 1, f.notifier.confirmed)
	assert.Equal(t, 1, f.carts.refreshed)
}

func TestFinalize_ConcurrentDuplicateReturnsWinnersOrder(t *testing.T) {
	f := newFinalizerFixture()
	req := FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 1, "100")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	}

	winner, err := f.finalizer.Finalize(context.Background(), req)
	require.NoError(t, err)

	// The loser's guard read ran before the winner committed, so it proceeds
	// to the insert and loses the payment_id unique index.
	f.store.guardMisses = 1
	loser, err := f.finalizer.Finalize(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, winner.ID, loser.ID)
	assert.Len(t, f.state.orders, 1)
	// The losing transaction rolled back: no double reservation, and no
	// second dispatch or notification round.
	assert.Equal(t, 9, f.state.products["p1"].Stock)
	assert.Len(t, f.dispatcher.enqueued, 1)
	assert.Equal(t, 1, f.notifier.confirmed)
	assert.Equal(t, 1, f.carts.refreshed)
}

func TestFinalize_ExactStockSucceeds(t *testing.T) {
	f := newFinalizerFixture()
	f.state.products["p1"].Stock = 2

	o, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 2, "200")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	assert.Equal(t, 0, f.state.products["p1"].Stock)
}

func TestFinalize_InsufficientStockAbortsEverything(t *testing.T) {
	f := newFinalizerFixture()

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 2, "200"), line("p2", "v2", 6, "600")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	var isErr *InsufficientStockError
	require.ErrorAs(t, err, &isErr)
	assert.Equal(t, "p2", isErr.ProductID)
	assert.Equal(t, 5, isErr.Available)

	// The first line's reservation rolled back with the transaction.
	assert.Equal(t, 10, f.state.products["p1"].Stock)
	assert.Empty(t, f.state.orders)
	assert.Empty(t, f.state.removedLines)
	assert.Empty(t, f.dispatcher.enqueued)
	assert.Zero(t, f.notifier.confirmed)
}

func TestFinalize_RedeemedCouponAbortsTransaction(t *testing.T) {
	f := newFinalizerFixture()
	f.state.redemptions["cpn-1:cust-1"] = "order-prev"

	crt := pricedCart(line("p1", "v1", 1, "80"))
	crt.Snapshot.CouponID = "cpn-1"
	crt.Snapshot.CouponDiscount = d("20")

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    crt,
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.ErrorIs(t, err, coupon.ErrAlreadyRedeemed)
	assert.Empty(t, f.state.orders)
	assert.Equal(t, 10, f.state.products["p1"].Stock)
	assert.False(t, f.state.paid["pay-1"])
}

func TestFinalize_CouponRedeemedWithOrder(t *testing.T) {
	f := newFinalizerFixture()

	crt := pricedCart(line("p1", "v1", 1, "80"))
	crt.Snapshot.CouponID = "cpn-1"

	o, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    crt,
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.NoError(t, err)
	assert.Equal(t, o.ID, f.state.redemptions["cpn-1:cust-1"])
}

func TestFinalize_EmptyCart(t *testing.T) {
	f := newFinalizerFixture()

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.ErrorIs(t, err, cart.ErrEmptyCart)
}

func TestFinalize_ZeroTotal(t *testing.T) {
	f := newFinalizerFixture()

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 1, "0")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.ErrorIs(t, err, ErrZeroTotal)
}

func TestFinalize_InactiveProductAborts(t *testing.T) {
	f := newFinalizerFixture()
	f.state.products["p1"].Active = false

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 1, "100")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	var puErr *pricing.ProductUnavailableError
	require.ErrorAs(t, err, &puErr)
	assert.Empty(t, f.state.orders)
}

func TestFinalize_InactiveVendorAborts(t *testing.T) {
	f := newFinalizerFixture()
	f.state.vendors["v1"].Active = false

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 1, "100")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.ErrorIs(t, err, vendor.ErrNotFound)
}

func TestFinalize_AlreadyPaidSkipsMarking(t *testing.T) {
	f := newFinalizerFixture()
	pay := pendingPayment()
	pay.Method = payment.MethodCOD
	pay.Status = payment.StatusPaid

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pay,
		Cart:    pricedCart(line("p1", "v1", 1, "100")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.NoError(t, err)
	assert.False(t, f.state.paid["pay-1"])
}

func TestFinalize_EnqueueFailureFallsBackToSyncDispatch(t *testing.T) {
	f := newFinalizerFixture()
	f.dispatcher.enqueueErr = errors.New("broker down")

	o, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart:    pricedCart(line("p1", "v1", 1, "100")),
		Buyer:   pricing.Buyer{CustomerID: "cust-1"},
	})

	require.NoError(t, err)
	assert.Empty(t, f.dispatcher.enqueued)
	require.Len(t, f.dispatcher.synced, 1)
	assert.Equal(t, o.ID, f.dispatcher.synced[0].OrderID)
}

func TestFinalize_ShipmentJobsSplitLinesByVendor(t *testing.T) {
	f := newFinalizerFixture()

	_, err := f.finalizer.Finalize(context.Background(), FinalizeRequest{
		Payment: pendingPayment(),
		Cart: pricedCart(
			line("p1", "v1", 1, "100"),
			line("p2", "v2", 1, "300"),
		),
		Buyer: pricing.Buyer{CustomerID: "cust-1"},
	})

	require.NoError(t, err)
	require.Len(t, f.dispatcher.enqueued, 2)
	for _, job := range f.dispatcher.enqueued {
		require.Len(t, job.Lines, 1)
		assert.Equal(t, job.VendorID, job.Lines[0].VendorID)
	}
}

package cart

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradecart/marketplace/internal/domain/campaign"
	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/discount"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/domain/product"
	"github.com/tradecart/marketplace/internal/domain/shipping"
	"github.com/tradecart/marketplace/internal/domain/tax"
)

// --- Mock implementations ---

type mockCartRepo struct {
	carts   map[string]*Cart
	deleted []string
	saveErr error
}

func newCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: map[string]*Cart{}}
}

func ownerKey(o Owner) string {
	if o.CustomerID != "" {
		return "c:" + o.CustomerID
	}
	return "s:" + o.SessionID
}

func (m *mockCartRepo) FindByOwner(_ context.Context, owner Owner) (*Cart, error) {
	c, ok := m.carts[ownerKey(owner)]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

func (m *mockCartRepo) Save(_ context.Context, c *Cart) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.carts[ownerKey(c.Owner)] = c
	return nil
}

func (m *mockCartRepo) Delete(_ context.Context, id string) error {
	m.deleted = append(m.deleted, id)
	for k, c := range m.carts {
		if c.ID == id {
			delete(m.carts, k)
		}
	}
	return nil
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	return nil, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

type mockCouponRepo struct {
	byCode   map[string]*coupon.Coupon
	redeemed map[string]bool
}

func (m *mockCouponRepo) GetByID(_ context.Context, id string) (*coupon.Coupon, error) {
	for _, c := range m.byCode {
		if c.ID == id {
			return c, nil
		}
	}
	return nil, coupon.ErrInvalidCoupon
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	c, ok := m.byCode[code]
	if !ok {
		return nil, coupon.ErrInvalidCoupon
	}
	return c, nil
}

func (m *mockCouponRepo) HasRedeemed(_ context.Context, couponID, customerID string) (bool, error) {
	return m.redeemed[couponID+":"+customerID], nil
}

type stubCampaigns struct{}

func (stubCampaigns) ActiveForVendors(_ context.Context, _ []string, _ time.Time) (campaign.Set, error) {
	return campaign.Set{}, nil
}

type stubTaxes struct{}

func (stubTaxes) TaxSettings(_ context.Context, _ []string) (map[string]tax.Settings, error) {
	return map[string]tax.Settings{}, nil
}

type stubRules struct{}

func (stubRules) ShippingRules(_ context.Context, _ []string) (map[string]shipping.Rule, error) {
	return map[string]shipping.Rule{}, nil
}

// --- Helpers ---

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fixture struct {
	carts    *mockCartRepo
	products *mockProductRepo
	coupons  *mockCouponRepo
	svc      *Service
}

func newFixture(products ...*product.Product) *fixture {
	byID := make(map[string]*product.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	f := &fixture{
		carts:    newCartRepo(),
		products: &mockProductRepo{byID: byID},
		coupons:  &mockCouponRepo{byCode: map[string]*coupon.Coupon{}, redeemed: map[string]bool{}},
	}
	engine := pricing.NewEngine(f.products, stubCampaigns{}, f.coupons, stubTaxes{}, stubRules{})
	f.svc = NewService(f.carts, f.products, f.coupons, engine)
	return f
}

func widget() *product.Product {
	return &product.Product{
		ID:       "p1",
		VendorID: "v1",
		Name:     "Widget",
		Price:    d("100"),
		TaxMode:  product.TaxExclusive,
		Stock:    10,
		Active:   true,
	}
}

var buyer = pricing.Buyer{CustomerID: "cust-1", Region: "MH"}

// --- Tests ---

func TestAddItem_InvalidQuantity(t *testing.T) {
	f := newFixture(widget())

	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 0)
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestAddItem_UnknownProduct(t *testing.T) {
	f := newFixture()

	_, err := f.svc.AddItem(context.Background(), buyer, "ghost", 1)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestAddItem_InactiveProduct(t *testing.T) {
	p := widget()
	p.Active = false
	f := newFixture(p)

	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)

	var puErr *pricing.ProductUnavailableError
	require.ErrorAs(t, err, &puErr)
}

func TestAddItem_CreatesCartAndPrices(t *testing.T) {
	f := newFixture(widget())

	c, err := f.svc.AddItem(context.Background(), buyer, "p1", 2)

	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 2, c.Lines[0].Quantity)
	assert.True(t, d("100").Equal(c.Lines[0].PriceAtAddition))
	require.NotNil(t, c.Snapshot)
	// 200 plus the default 18% tax, no shipping rules configured.
	assert.True(t, d("236.00").Equal(c.Snapshot.GrandTotal))
}

func TestAddItem_IncrementsExistingLine(t *testing.T) {
	f := newFixture(widget())

	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)
	c, err := f.svc.AddItem(context.Background(), buyer, "p1", 3)
	require.NoError(t, err)

	require.Len(t, c.Lines, 1)
	assert.Equal(t, 4, c.Lines[0].Quantity)
}

func TestAddItem_BelowMinimumQuantity(t *testing.T) {
	p := widget()
	p.MinQuantity = 3
	f := newFixture(p)

	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 2)

	var bmErr *BelowMinimumError
	require.ErrorAs(t, err, &bmErr)
	assert.Equal(t, 3, bmErr.Minimum)
}

func TestAddItem_AccumulatedQuantityMeetsMinimum(t *testing.T) {
	p := widget()
	p.MinQuantity = 3
	f := newFixture(p)

	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 2)
	require.Error(t, err)

	c, err := f.svc.AddItem(context.Background(), buyer, "p1", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Lines[0].Quantity)
}

func TestUpdateItem_MissingLine(t *testing.T) {
	f := newFixture(widget())
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateItem(context.Background(), buyer, "other", 2)
	require.ErrorIs(t, err, product.ErrNotFound)
}

func TestUpdateItem_BelowMinimum(t *testing.T) {
	p := widget()
	p.MinQuantity = 2
	f := newFixture(p)
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 2)
	require.NoError(t, err)

	_, err = f.svc.UpdateItem(context.Background(), buyer, "p1", 1)

	var bmErr *BelowMinimumError
	require.ErrorAs(t, err, &bmErr)
}

func TestRemoveItem(t *testing.T) {
	f := newFixture(widget())
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)

	c, err := f.svc.RemoveItem(context.Background(), buyer, "p1")

	require.NoError(t, err)
	assert.Empty(t, c.Lines)
	assert.True(t, c.Snapshot.GrandTotal.IsZero())
}

func TestApplyCoupon_GuestRejected(t *testing.T) {
	f := newFixture(widget())

	_, err := f.svc.ApplyCoupon(context.Background(), pricing.Buyer{SessionID: "sess"}, "SAVE20")
	require.ErrorIs(t, err, ErrGuestCoupon)
}

func TestApplyCoupon_EmptyCart(t *testing.T) {
	f := newFixture(widget())
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.RemoveItem(context.Background(), buyer, "p1")
	require.NoError(t, err)

	_, err = f.svc.ApplyCoupon(context.Background(), buyer, "SAVE20")
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestApplyCoupon_AlreadyRedeemed(t *testing.T) {
	f := newFixture(widget())
	f.coupons.byCode["SAVE20"] = &coupon.Coupon{
		ID: "cpn-1", Code: "SAVE20", VendorID: "v1",
		DiscountType: discount.TypePercentage, DiscountValue: d("20"), Active: true,
	}
	f.coupons.redeemed["cpn-1:cust-1"] = true
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)

	_, err = f.svc.ApplyCoupon(context.Background(), buyer, "SAVE20")
	require.ErrorIs(t, err, coupon.ErrAlreadyRedeemed)
}

func TestApplyCoupon_AttachesAndDiscounts(t *testing.T) {
	f := newFixture(widget())
	f.coupons.byCode["SAVE20"] = &coupon.Coupon{
		ID: "cpn-1", Code: "SAVE20", VendorID: "v1",
		DiscountType: discount.TypePercentage, DiscountValue: d("20"), Active: true,
	}
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)

	c, err := f.svc.ApplyCoupon(context.Background(), buyer, "SAVE20")

	require.NoError(t, err)
	require.NotNil(t, c.Coupon)
	assert.Equal(t, "cpn-1", c.Coupon.CouponID)
	assert.True(t, d("20.00").Equal(c.Snapshot.CouponDiscount))
	// 100 - 20, taxed at the default 18%.
	assert.True(t, d("94.40").Equal(c.Snapshot.GrandTotal))
}

func TestRemoveCoupon(t *testing.T) {
	f := newFixture(widget())
	f.coupons.byCode["SAVE20"] = &coupon.Coupon{
		ID: "cpn-1", Code: "SAVE20", VendorID: "v1",
		DiscountType: discount.TypePercentage, DiscountValue: d("20"), Active: true,
	}
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(context.Background(), buyer, "SAVE20")
	require.NoError(t, err)

	c, err := f.svc.RemoveCoupon(context.Background(), buyer)

	require.NoError(t, err)
	assert.Nil(t, c.Coupon)
	assert.True(t, c.Snapshot.CouponDiscount.IsZero())
}

func TestGet_RepriceClearsStaleCoupon(t *testing.T) {
	f := newFixture(widget())
	cpn := &coupon.Coupon{
		ID: "cpn-1", Code: "SAVE20", VendorID: "v1",
		DiscountType: discount.TypePercentage, DiscountValue: d("20"), Active: true,
	}
	f.coupons.byCode["SAVE20"] = cpn
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(context.Background(), buyer, "SAVE20")
	require.NoError(t, err)

	// The coupon expires between requests.
	until := time.Now().Add(-time.Minute)
	cpn.ValidUntil = &until

	c, err := f.svc.Get(context.Background(), buyer)

	require.NoError(t, err)
	assert.Nil(t, c.Coupon)
	assert.True(t, c.Snapshot.CouponDiscount.IsZero())
	assert.True(t, d("118.00").Equal(c.Snapshot.GrandTotal))
}

func TestGet_MissingCartReturnsEmpty(t *testing.T) {
	f := newFixture()

	c, err := f.svc.Get(context.Background(), buyer)

	require.NoError(t, err)
	assert.NotEmpty(t, c.ID)
	assert.Empty(t, c.Lines)
	assert.Equal(t, StatusActive, c.Status)
}

func TestMerge_SumsQuantitiesAndDeletesSessionCart(t *testing.T) {
	f := newFixture(widget())
	guest := pricing.Buyer{SessionID: "sess-1"}

	_, err := f.svc.AddItem(context.Background(), guest, "p1", 2)
	require.NoError(t, err)
	_, err = f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)

	c, err := f.svc.Merge(context.Background(), buyer, "sess-1")

	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Equal(t, 3, c.Lines[0].Quantity)
	assert.Len(t, f.carts.deleted, 1)
}

func TestMerge_NoSessionCartReturnsCustomerCart(t *testing.T) {
	f := newFixture(widget())
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)

	c, err := f.svc.Merge(context.Background(), buyer, "nope")

	require.NoError(t, err)
	require.Len(t, c.Lines, 1)
	assert.Empty(t, f.carts.deleted)
}

func TestRefresh_ClearsCouponOnEmptiedCart(t *testing.T) {
	f := newFixture(widget())
	f.coupons.byCode["SAVE20"] = &coupon.Coupon{
		ID: "cpn-1", Code: "SAVE20", VendorID: "v1",
		DiscountType: discount.TypePercentage, DiscountValue: d("20"), Active: true,
	}
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)
	_, err = f.svc.ApplyCoupon(context.Background(), buyer, "SAVE20")
	require.NoError(t, err)

	// Finalization drained the lines out from under the cart row.
	stored := f.carts.carts[ownerKey(Owner{CustomerID: buyer.CustomerID})]
	stored.Lines = nil

	require.NoError(t, f.svc.Refresh(context.Background(), buyer))
	assert.Nil(t, stored.Coupon)
	assert.True(t, stored.Snapshot.GrandTotal.IsZero())
}

func TestMarkRecovered_OnlyFlipsAbandoned(t *testing.T) {
	f := newFixture(widget())
	_, err := f.svc.AddItem(context.Background(), buyer, "p1", 1)
	require.NoError(t, err)
	stored := f.carts.carts[ownerKey(Owner{CustomerID: buyer.CustomerID})]

	require.NoError(t, f.svc.MarkRecovered(context.Background(), buyer))
	assert.Equal(t, StatusActive, stored.Status)

	stored.Status = StatusAbandoned
	require.NoError(t, f.svc.MarkRecovered(context.Background(), buyer))
	assert.Equal(t, StatusRecovered, stored.Status)
}

package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/tradecart/marketplace/internal/domain/coupon"
	"github.com/tradecart/marketplace/internal/domain/pricing"
	"github.com/tradecart/marketplace/internal/domain/product"
)

// Sentinel errors for cart mutations.
var (
	ErrEmptyCart       = errors.New("cart is empty")
	ErrInvalidQuantity = errors.New("quantity must be greater than 0")
	ErrGuestCoupon     = errors.New("coupons require a signed-in customer")
)

// BelowMinimumError indicates a requested quantity is below the product's
// minimum order quantity.
type BelowMinimumError struct {
	ProductID string
	Minimum   int
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("product %s requires a minimum quantity of %d", e.ProductID, e.Minimum)
}

// Service owns cart mutations. Every mutation recomputes the priced snapshot
// through the pricing engine before persisting, so callers always observe a
// fully priced cart.
type Service struct {
	carts    Repository
	products product.Repository
	coupons  coupon.Repository
	engine   *pricing.Engine
	now      func() time.Time
}

// NewService creates a cart Service.
func NewService(carts Repository, products product.Repository, coupons coupon.Repository, engine *pricing.Engine) *Service {
	return &Service{
		carts:    carts,
		products: products,
		coupons:  coupons,
		engine:   engine,
		now:      time.Now,
	}
}

// Get returns the owner's cart with a freshly recomputed snapshot. A missing
// cart is returned as an empty one rather than an error.
func (s *Service) Get(ctx context.Context, buyer pricing.Buyer) (*Cart, error) {
	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.emptyCart(buyer), nil
		}
		return nil, errors.Wrap(err, "find cart")
	}
	if err := s.reprice(ctx, c, buyer); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

// AddItem adds a product to the cart or increases an existing line's
// quantity, then reprices.
func (s *Service) AddItem(ctx context.Context, buyer pricing.Buyer, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if !p.Active {
		return nil, &pricing.ProductUnavailableError{ProductID: productID}
	}

	c, err := s.findOrCreate(ctx, buyer)
	if err != nil {
		return nil, err
	}

	if i := c.LineIndex(productID); i >= 0 {
		c.Lines[i].Quantity += quantity
	} else {
		c.Lines = append(c.Lines, Line{
			ProductID:       p.ID,
			VendorID:        p.VendorID,
			Quantity:        quantity,
			PriceAtAddition: p.Price,
		})
	}

	if i := c.LineIndex(productID); p.MinQuantity > 1 && c.Lines[i].Quantity < p.MinQuantity {
		return nil, &BelowMinimumError{ProductID: productID, Minimum: p.MinQuantity}
	}

	return s.repriceAndSave(ctx, c, buyer)
}

// UpdateItem sets a line's quantity, then reprices.
func (s *Service) UpdateItem(ctx context.Context, buyer pricing.Buyer, productID string, quantity int) (*Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}

	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	i := c.LineIndex(productID)
	if i < 0 {
		return nil, product.ErrNotFound
	}

	p, err := s.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrap(err, "get product")
	}
	if p.MinQuantity > 1 && quantity < p.MinQuantity {
		return nil, &BelowMinimumError{ProductID: productID, Minimum: p.MinQuantity}
	}

	c.Lines[i].Quantity = quantity
	return s.repriceAndSave(ctx, c, buyer)
}

// RemoveItem deletes a line, then reprices.
func (s *Service) RemoveItem(ctx context.Context, buyer pricing.Buyer, productID string) (*Cart, error) {
	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	i := c.LineIndex(productID)
	if i < 0 {
		return nil, product.ErrNotFound
	}

	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return s.repriceAndSave(ctx, c, buyer)
}

// ApplyCoupon validates the code against live coupon data and attaches it to
// the cart. The attached reference is display-only: pricing re-validates it
// on every subsequent pass.
func (s *Service) ApplyCoupon(ctx context.Context, buyer pricing.Buyer, code string) (*Cart, error) {
	if buyer.Guest() {
		return nil, ErrGuestCoupon
	}

	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	if len(c.Lines) == 0 {
		return nil, ErrEmptyCart
	}

	cp, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := cp.Validate(s.now()); err != nil {
		return nil, err
	}
	redeemed, err := s.coupons.HasRedeemed(ctx, cp.ID, buyer.CustomerID)
	if err != nil {
		return nil, errors.Wrap(err, "check redemption")
	}
	if redeemed {
		return nil, coupon.ErrAlreadyRedeemed
	}

	c.Coupon = &AppliedCoupon{CouponID: cp.ID, Code: cp.Code, AppliedAt: s.now()}
	return s.repriceAndSave(ctx, c, buyer)
}

// RemoveCoupon detaches any applied coupon, then reprices.
func (s *Service) RemoveCoupon(ctx context.Context, buyer pricing.Buyer) (*Cart, error) {
	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		return nil, errors.Wrap(err, "find cart")
	}
	c.Coupon = nil
	return s.repriceAndSave(ctx, c, buyer)
}

// Merge folds an anonymous session cart into the customer's cart when the
// session authenticates. Quantities for the same product are summed; the
// session cart is deleted and the merged cart repriced.
func (s *Service) Merge(ctx context.Context, customerBuyer pricing.Buyer, sessionID string) (*Cart, error) {
	guest, err := s.carts.FindByOwner(ctx, Owner{SessionID: sessionID})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.Get(ctx, customerBuyer)
		}
		return nil, errors.Wrap(err, "find session cart")
	}

	c, err := s.findOrCreate(ctx, customerBuyer)
	if err != nil {
		return nil, err
	}

	for _, gl := range guest.Lines {
		if i := c.LineIndex(gl.ProductID); i >= 0 {
			c.Lines[i].Quantity += gl.Quantity
		} else {
			c.Lines = append(c.Lines, gl)
		}
	}

	if err := s.carts.Delete(ctx, guest.ID); err != nil {
		return nil, errors.Wrap(err, "delete session cart")
	}
	return s.repriceAndSave(ctx, c, customerBuyer)
}

// Refresh recomputes and persists the owner's snapshot. The order finalizer
// calls it after commit, once the ordered lines are gone from the cart row.
func (s *Service) Refresh(ctx context.Context, buyer pricing.Buyer) error {
	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "find cart")
	}
	if len(c.Lines) == 0 {
		c.Coupon = nil
	}
	if err := s.reprice(ctx, c, buyer); err != nil {
		return err
	}
	return errors.Wrap(s.carts.Save(ctx, c), "save cart")
}

// MarkRecovered flips an abandoned cart to recovered. Best-effort: callers
// log failures and move on.
func (s *Service) MarkRecovered(ctx context.Context, buyer pricing.Buyer) error {
	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return errors.Wrap(err, "find cart")
	}
	if c.Status != StatusAbandoned {
		return nil
	}
	c.Status = StatusRecovered
	return errors.Wrap(s.carts.Save(ctx, c), "save cart")
}

func (s *Service) findOrCreate(ctx context.Context, buyer pricing.Buyer) (*Cart, error) {
	c, err := s.carts.FindByOwner(ctx, ownerOf(buyer))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return s.emptyCart(buyer), nil
		}
		return nil, errors.Wrap(err, "find cart")
	}
	return c, nil
}

func (s *Service) emptyCart(buyer pricing.Buyer) *Cart {
	return &Cart{
		ID:       uuid.New().String(),
		Owner:    ownerOf(buyer),
		Lines:    []Line{},
		Snapshot: &pricing.Snapshot{Lines: []pricing.LineBreakdown{}},
		Status:   StatusActive,
	}
}

// reprice recomputes the snapshot and clears the coupon when the engine
// reports it no longer validates.
func (s *Service) reprice(ctx context.Context, c *Cart, buyer pricing.Buyer) error {
	couponID := ""
	if c.Coupon != nil && !buyer.Guest() {
		couponID = c.Coupon.CouponID
	}
	snap, err := s.engine.Price(ctx, pricing.Request{
		Lines:    c.PricingLines(),
		CouponID: couponID,
		Buyer:    buyer,
	})
	if err != nil {
		return err
	}
	if snap.CouponCleared {
		c.Coupon = nil
	}
	c.Snapshot = snap
	c.UpdatedAt = s.now()
	return nil
}

func (s *Service) repriceAndSave(ctx context.Context, c *Cart, buyer pricing.Buyer) (*Cart, error) {
	if err := s.reprice(ctx, c, buyer); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, c); err != nil {
		return nil, errors.Wrap(err, "save cart")
	}
	return c, nil
}

func ownerOf(b pricing.Buyer) Owner {
	return Owner{CustomerID: b.CustomerID, SessionID: b.SessionID}
}

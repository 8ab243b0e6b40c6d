// Package gateway holds payment gateway adapters. Only the sandbox adapter
// ships here; production deployments point the same interface at the real
// provider's SDK.
package gateway

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/go-faster/sdk/zctx"

	"github.com/tradecart/marketplace/internal/domain/payment"
)

// Sandbox issues charge references locally. Settlement is driven entirely by
// the settlement callback endpoint, which is how the provider's test
// environment behaves as well.
type Sandbox struct{}

var _ payment.Gateway = Sandbox{}

// NewSandbox creates a Sandbox gateway.
func NewSandbox() Sandbox {
	return Sandbox{}
}

func (Sandbox) CreateCharge(ctx context.Context, amount decimal.Decimal, currency, idempotencyKey string) (*payment.GatewayHandle, error) {
	// The reference derives from the idempotency key, so a provider-level
	// retry of the same attempt gets the same handle back.
	attempt := uuid.New()
	if idempotencyKey != "" {
		attempt = uuid.NewSHA1(uuid.NameSpaceURL, []byte(idempotencyKey))
	}
	ref := fmt.Sprintf("sandbox_%s", attempt)
	zctx.From(ctx).Info("sandbox charge created",
		zap.String("reference", ref),
		zap.String("amount", amount.String()),
		zap.String("currency", currency),
	)
	return &payment.GatewayHandle{
		Reference: ref,
		ClientKey: uuid.NewSHA1(uuid.NameSpaceOID, []byte(ref)).String(),
	}, nil
}

package payment

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// AmountMismatchError indicates the gateway settled a different amount than
// the checkout expected. Both values are carried for audit logging. This is
// the anti-fraud check: the client cannot dictate the settled amount.
type AmountMismatchError struct {
	Expected decimal.Decimal
	Actual   decimal.Decimal
}

func (e *AmountMismatchError) Error() string {
	return fmt.Sprintf("payment amount mismatch: expected %s, gateway settled %s",
		e.Expected, e.Actual)
}

// Verifier checks a gateway transaction against the amount the checkout
// expects to have been paid.
type Verifier struct {
	gateway Gateway
}

// NewVerifier creates a Verifier over the given gateway boundary.
func NewVerifier(gateway Gateway) *Verifier {
	return &Verifier{gateway: gateway}
}

// Verify fetches the transaction identified by txnRef from the gateway and
// compares the settled amount to expected with exact decimal equality. It
// makes a single gateway call and never retries; retry policy belongs to the
// caller. The returned transaction carries the gateway's canonical amount,
// method, and settlement timestamp.
func (v *Verifier) Verify(ctx context.Context, txnRef string, expected decimal.Decimal) (*GatewayTransaction, error) {
	txn, err := v.gateway.VerifyTransaction(ctx, txnRef)
	if err != nil {
		if errors.Is(err, ErrPaymentNotFound) {
			return nil, err
		}
		return nil, errors.Wrap(ErrGatewayUnreachable, err.Error())
	}
	if txn == nil {
		return nil, ErrPaymentNotFound
	}

	if !txn.Amount.Equal(expected) {
		return nil, &AmountMismatchError{Expected: expected, Actual: txn.Amount}
	}

	return txn, nil
}

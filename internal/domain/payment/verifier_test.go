package payment

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockGateway struct {
	txn *GatewayTransaction
	err error
}

func (m *mockGateway) VerifyTransaction(_ context.Context, _ string) (*GatewayTransaction, error) {
	return m.txn, m.err
}

func TestVerify_Success(t *testing.T) {
	settled := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	gw := &mockGateway{txn: &GatewayTransaction{
		TxnRef:    "imp-1",
		Amount:    decimal.RequireFromString("44.85"),
		Method:    "card",
		SettledAt: settled,
	}}

	txn, err := NewVerifier(gw).Verify(context.Background(), "imp-1", decimal.RequireFromString("44.85"))
	require.NoError(t, err)
	assert.Equal(t, "card", txn.Method)
	assert.Equal(t, settled, txn.SettledAt)
	assert.True(t, decimal.RequireFromString("44.85").Equal(txn.Amount))
}

func TestVerify_AmountMismatch(t *testing.T) {
	gw := &mockGateway{txn: &GatewayTransaction{
		TxnRef: "imp-1",
		Amount: decimal.RequireFromString("40.00"),
	}}

	_, err := NewVerifier(gw).Verify(context.Background(), "imp-1", decimal.RequireFromString("44.85"))

	var amErr *AmountMismatchError
	require.ErrorAs(t, err, &amErr)
	assert.True(t, decimal.RequireFromString("44.85").Equal(amErr.Expected))
	assert.True(t, decimal.RequireFromString("40.00").Equal(amErr.Actual))
}

func TestVerify_ExactComparison(t *testing.T) {
	// 44.850 and 44.85 are the same value; Equal compares values, not scale.
	gw := &mockGateway{txn: &GatewayTransaction{
		TxnRef: "imp-1",
		Amount: decimal.RequireFromString("44.850"),
	}}

	_, err := NewVerifier(gw).Verify(context.Background(), "imp-1", decimal.RequireFromString("44.85"))
	require.NoError(t, err)
}

func TestVerify_NotFound(t *testing.T) {
	gw := &mockGateway{err: ErrPaymentNotFound}

	_, err := NewVerifier(gw).Verify(context.Background(), "imp-missing", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestVerify_NilTransaction(t *testing.T) {
	gw := &mockGateway{}

	_, err := NewVerifier(gw).Verify(context.Background(), "imp-1", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestVerify_GatewayFailureCollapses(t *testing.T) {
	// IO and protocol failures surface uniformly as ErrGatewayUnreachable.
	gw := &mockGateway{err: errors.New("connection reset by peer")}

	_, err := NewVerifier(gw).Verify(context.Background(), "imp-1", decimal.NewFromInt(10))
	require.ErrorIs(t, err, ErrGatewayUnreachable)
	assert.Contains(t, err.Error(), "connection reset")
}

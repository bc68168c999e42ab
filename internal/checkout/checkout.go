// Package checkout composes order assembly, payment verification, and
// subscription reconciliation into a single atomic checkout.
package checkout

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pilldrop/commerce-api/internal/domain/cart"
	"github.com/pilldrop/commerce-api/internal/domain/member"
	"github.com/pilldrop/commerce-api/internal/domain/order"
	"github.com/pilldrop/commerce-api/internal/domain/payment"
	"github.com/pilldrop/commerce-api/internal/domain/subscription"
)

// PurchaseKind distinguishes one-time purchases from subscription checkouts.
type PurchaseKind string

const (
	PurchaseOneTime      PurchaseKind = "oneTime"
	PurchaseSubscription PurchaseKind = "subscription"
)

// UnitOfWork opens a transaction serialized per member and executes fn inside
// it. Repository calls made with the ctx passed to fn join the transaction.
// fn returning an error rolls everything back.
type UnitOfWork interface {
	WithinMemberTx(ctx context.Context, memberID string, fn func(ctx context.Context) error) error
}

// Request is the input to a checkout: the member's identity, the client's
// per-item price declarations, and the gateway transaction reference the
// client obtained from the payment widget.
type Request struct {
	MemberID      string
	Declarations  []order.PriceDeclaration
	GatewayTxnRef string
	PaymentMethod string
	PurchaseKind  PurchaseKind
	Buyer         payment.BuyerInfo
	Shipping      subscription.ShippingInfo
}

// Receipt is returned on a committed checkout.
type Receipt struct {
	PaymentID     string
	GatewayTxnRef string
	OrderID       string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        order.Status
	PaidAt        time.Time
	// Subscription reports the reconciliation outcome for subscription
	// purchases, nil otherwise.
	Subscription *subscription.Outcome
}

// Config holds orchestrator tuning knobs.
type Config struct {
	// GatewayTimeout bounds the payment verification call. It is distinct
	// from any transaction timeout: the gateway call happens before the
	// write transaction opens, so a slow gateway never holds locks.
	GatewayTimeout time.Duration
}

// Orchestrator runs the checkout sequence. The payment gateway is consulted
// before the write transaction opens; the transaction itself is pure local
// state mutation.
type Orchestrator struct {
	cfg      Config
	members  member.Repository
	carts    cart.Repository
	orders   order.Repository
	payments payment.Repository
	verifier *payment.Verifier
	subs     *subscription.Service
	uow      UnitOfWork
	now      func() time.Time
	inst     *instruments
}

// NewOrchestrator wires a checkout Orchestrator from its collaborators.
func NewOrchestrator(
	cfg Config,
	members member.Repository,
	carts cart.Repository,
	orders order.Repository,
	payments payment.Repository,
	verifier *payment.Verifier,
	subs *subscription.Service,
	uow UnitOfWork,
) *Orchestrator {
	if cfg.GatewayTimeout <= 0 {
		cfg.GatewayTimeout = 10 * time.Second
	}
	return &Orchestrator{
		cfg:      cfg,
		members:  members,
		carts:    carts,
		orders:   orders,
		payments: payments,
		verifier: verifier,
		subs:     subs,
		uow:      uow,
		now:      time.Now,
		inst:     newInstruments(),
	}
}

// Process converts the member's cart into a committed, paid order.
//
// Sequence: load member and cart, assemble the order (pure), verify the
// payment against the gateway, then in one member-serialized transaction:
// reject duplicate gateway references, persist order and items, record the
// payment, mark the order PAYMENT_COMPLETED, clear the cart, and reconcile
// the subscription when the purchase is one. Any failure after verification
// rolls the transaction back wholly; the cart stays intact so the client can
// retry with the same gateway reference.
func (oc *Orchestrator) Process(ctx context.Context, req Request) (*Receipt, error) {
	ctx, span := oc.inst.start(ctx, req.PurchaseKind)
	defer span.End()

	lg := zctx.From(ctx).With(
		zap.String("member_id", req.MemberID),
		zap.String("gateway_txn_ref", req.GatewayTxnRef),
	)

	m, err := oc.members.GetByID(ctx, req.MemberID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup member")
	}

	c, err := oc.carts.FindByMember(ctx, m.ID)
	if err != nil {
		return nil, errors.Wrap(err, "lookup cart")
	}
	items, err := oc.carts.FindItems(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart items")
	}

	o, err := order.AssembleOrder(items, req.Declarations, m.ID, req.PaymentMethod, oc.now())
	if err != nil {
		return nil, err
	}

	// External I/O happens outside the write transaction. A gateway timeout
	// here leaves no order, no payment, and an intact cart.
	verifyCtx, cancel := context.WithTimeout(ctx, oc.cfg.GatewayTimeout)
	txn, err := oc.verifier.Verify(verifyCtx, req.GatewayTxnRef, o.TotalAmount)
	cancel()
	if err != nil {
		if amErr := new(payment.AmountMismatchError); errors.As(err, &amErr) {
			lg.Warn("payment amount mismatch",
				zap.String("expected", amErr.Expected.String()),
				zap.String("actual", amErr.Actual.String()))
			oc.inst.rejected(ctx, "amount_mismatch")
		} else {
			oc.inst.rejected(ctx, "gateway")
		}
		return nil, err
	}

	var receipt *Receipt
	err = oc.uow.WithinMemberTx(ctx, m.ID, func(ctx context.Context) error {
		// Idempotency: the gateway reference keys the whole checkout. The
		// unique constraint on payments.gateway_txn_ref backstops this
		// lookup against concurrent racers.
		if existing, err := oc.payments.FindByGatewayRef(ctx, req.GatewayTxnRef); err != nil {
			return errors.Wrap(err, "check gateway reference")
		} else if existing != nil {
			return payment.ErrDuplicatePayment
		}

		if err := oc.orders.Create(ctx, o); err != nil {
			return errors.Wrap(err, "persist order")
		}

		p := &payment.Payment{
			ID:            uuid.New().String(),
			OrderID:       o.ID,
			GatewayTxnRef: txn.TxnRef,
			Amount:        txn.Amount,
			PaymentMethod: txn.Method,
			Status:        string(order.StatusPaymentCompleted),
			BuyerEmail:    req.Buyer.Email,
			BuyerName:     req.Buyer.Name,
			BuyerTel:      req.Buyer.Tel,
			BuyerAddr:     req.Buyer.Addr,
			BuyerPostcode: req.Buyer.Postcode,
			PaidAt:        txn.SettledAt,
		}
		if err := oc.payments.Create(ctx, p); err != nil {
			return errors.Wrap(err, "record payment")
		}

		if err := oc.orders.UpdateStatus(ctx, o.ID, order.StatusPaymentCompleted); err != nil {
			return errors.Wrap(err, "complete order")
		}

		if err := oc.carts.Clear(ctx, c.ID); err != nil {
			return errors.Wrap(err, "clear cart")
		}

		receipt = &Receipt{
			PaymentID:     p.ID,
			GatewayTxnRef: p.GatewayTxnRef,
			OrderID:       o.ID,
			Amount:        p.Amount,
			PaymentMethod: p.PaymentMethod,
			Status:        order.StatusPaymentCompleted,
			PaidAt:        p.PaidAt,
		}

		if req.PurchaseKind == PurchaseSubscription {
			outcome, err := oc.subs.Reconcile(ctx, m.ID, o, req.Shipping)
			if err != nil {
				return errors.Wrap(err, "reconcile subscription")
			}
			receipt.Subscription = outcome
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, payment.ErrDuplicatePayment) {
			oc.inst.rejected(ctx, "duplicate")
		}
		return nil, err
	}

	oc.inst.committed(ctx, req.PurchaseKind)
	lg.Info("checkout committed",
		zap.String("order_id", receipt.OrderID),
		zap.String("payment_id", receipt.PaymentID),
		zap.String("amount", receipt.Amount.String()))
	return receipt, nil
}

package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pilldrop/commerce-api/internal/checkout"
	"github.com/pilldrop/commerce-api/internal/domain/cart"
	"github.com/pilldrop/commerce-api/internal/domain/member"
	"github.com/pilldrop/commerce-api/internal/domain/order"
	"github.com/pilldrop/commerce-api/internal/domain/payment"
	"github.com/pilldrop/commerce-api/internal/domain/product"
	"github.com/pilldrop/commerce-api/internal/domain/subscription"
)

type stubMemberRepo struct {
	members map[string]*member.Member
}

func (s *stubMemberRepo) GetByID(_ context.Context, id string) (*member.Member, error) {
	if m, ok := s.members[id]; ok {
		return m, nil
	}
	return nil, member.ErrNotFound
}

func (s *stubMemberRepo) GetByEmail(_ context.Context, email string) (*member.Member, error) {
	for _, m := range s.members {
		if m.Email == email {
			return m, nil
		}
	}
	return nil, member.ErrNotFound
}

type stubCartRepo struct {
	cart    *cart.Cart
	items   []cart.Item
	cleared bool
}

func (s *stubCartRepo) FindByMember(_ context.Context, memberID string) (*cart.Cart, error) {
	if s.cart == nil || s.cart.MemberID != memberID {
		return nil, cart.ErrNotFound
	}
	return s.cart, nil
}

func (s *stubCartRepo) FindItems(_ context.Context, cartID string) ([]cart.Item, error) {
	return s.items, nil
}

func (s *stubCartRepo) Clear(_ context.Context, cartID string) error {
	s.cleared = true
	return nil
}

type stubOrderRepo struct {
	created *order.Order
}

func (s *stubOrderRepo) Create(_ context.Context, o *order.Order) error {
	s.created = o
	return nil
}

func (s *stubOrderRepo) UpdateStatus(_ context.Context, orderID string, status order.Status) error {
	return nil
}

func (s *stubOrderRepo) GetByID(_ context.Context, orderID string) (*order.Order, error) {
	if s.created != nil && s.created.ID == orderID {
		return s.created, nil
	}
	return nil, errors.New("order not found")
}

type stubPaymentRepo struct {
	existing map[string]*payment.Payment
	created  *payment.Payment
}

func (s *stubPaymentRepo) Create(_ context.Context, p *payment.Payment) error {
	if _, ok := s.existing[p.GatewayTxnRef]; ok {
		return payment.ErrDuplicatePayment
	}
	s.created = p
	return nil
}

func (s *stubPaymentRepo) FindByGatewayRef(_ context.Context, txnRef string) (*payment.Payment, error) {
	return s.existing[txnRef], nil
}

type stubGateway struct {
	txn *payment.GatewayTransaction
	err error
}

func (s *stubGateway) VerifyTransaction(_ context.Context, txnRef string) (*payment.GatewayTransaction, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.txn, nil
}

type stubSubRepo struct {
	active    *subscription.Subscription
	byID      map[string]*subscription.Subscription
	nextItems []subscription.NextItem
	updated   *subscription.Subscription
}

func (s *stubSubRepo) FindActiveByMember(_ context.Context, memberID string) (*subscription.Subscription, error) {
	if s.active == nil || s.active.MemberID != memberID {
		return nil, subscription.ErrNotFound
	}
	return s.active, nil
}

func (s *stubSubRepo) GetByID(_ context.Context, id string) (*subscription.Subscription, error) {
	if sub, ok := s.byID[id]; ok {
		return sub, nil
	}
	return nil, subscription.ErrNotFound
}

func (s *stubSubRepo) Create(_ context.Context, sub *subscription.Subscription) error {
	s.active = sub
	return nil
}

func (s *stubSubRepo) Update(_ context.Context, sub *subscription.Subscription) error {
	s.updated = sub
	return nil
}

func (s *stubSubRepo) AppendNextItems(_ context.Context, items []subscription.NextItem) error {
	s.nextItems = append(s.nextItems, items...)
	return nil
}

func (s *stubSubRepo) FindNextItems(_ context.Context, subscriptionID string) ([]subscription.NextItem, error) {
	return s.nextItems, nil
}

type stubProductRepo struct {
	products []product.Product
}

func (s *stubProductRepo) List(_ context.Context) ([]product.Product, error) {
	return s.products, nil
}

func (s *stubProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	for i := range s.products {
		if s.products[i].ID == id {
			return &s.products[i], nil
		}
	}
	return nil, product.ErrNotFound
}

func (s *stubProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	return s.products, nil
}

// nopUoW runs the transactional function directly.
type nopUoW struct{}

func (nopUoW) WithinMemberTx(ctx context.Context, memberID string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var testSecret = []byte("test-signing-secret")

type fixture struct {
	members  *stubMemberRepo
	carts    *stubCartRepo
	orders   *stubOrderRepo
	payments *stubPaymentRepo
	gateway  *stubGateway
	subs     *stubSubRepo
	products *stubProductRepo
	router   http.Handler
}

func newFixture() *fixture {
	f := &fixture{
		members: &stubMemberRepo{members: map[string]*member.Member{
			"member-1": {ID: "member-1", Email: "jane@example.com", Name: "Jane"},
		}},
		carts: &stubCartRepo{
			cart: &cart.Cart{ID: "cart-1", MemberID: "member-1"},
			items: []cart.Item{
				{ID: "ci-1", CartID: "cart-1", ProductID: "prod-1", Quantity: 2},
			},
		},
		orders:   &stubOrderRepo{},
		payments: &stubPaymentRepo{existing: map[string]*payment.Payment{}},
		gateway: &stubGateway{txn: &payment.GatewayTransaction{
			TxnRef:    "imp_100",
			Amount:    decimal.RequireFromString("39.98"),
			Method:    "card",
			SettledAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		}},
		subs:     &stubSubRepo{byID: map[string]*subscription.Subscription{}},
		products: &stubProductRepo{},
	}

	orchestrator := checkout.NewOrchestrator(
		checkout.Config{},
		f.members,
		f.carts,
		f.orders,
		f.payments,
		payment.NewVerifier(f.gateway),
		subscription.NewService(f.subs),
		nopUoW{},
	)
	h := NewHandler(
		orchestrator,
		subscription.NewService(f.subs),
		f.products,
		f.carts,
		NewAuthenticator(testSecret),
	)
	f.router = h.Routes()
	return f
}

func bearerToken(t *testing.T, memberID string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": memberID,
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString(testSecret)
	require.NoError(t, err)
	return signed
}

func doRequest(f *fixture, method, target, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func TestRequireMember(t *testing.T) {
	f := newFixture()

	t.Run("missing token", func(t *testing.T) {
		rec := doRequest(f, http.MethodGet, "/cart", "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		rec := doRequest(f, http.MethodGet, "/cart", "not.a.jwt", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "member-1"})
		signed, err := token.SignedString([]byte("another-secret"))
		require.NoError(t, err)

		rec := doRequest(f, http.MethodGet, "/cart", signed, "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestListProducts(t *testing.T) {
	f := newFixture()
	f.products.products = []product.Product{
		{ID: "prod-1", SKU: "PD-001", Name: "Omega-3", Price: decimal.RequireFromString("19.99"), Category: "supplement"},
	}

	rec := doRequest(f, http.MethodGet, "/products", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got []productResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "PD-001", got[0].SKU)
	assert.Equal(t, "19.99", got[0].Price)
}

func TestGetCart(t *testing.T) {
	f := newFixture()
	token := bearerToken(t, "member-1")

	rec := doRequest(f, http.MethodGet, "/cart", token, "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got cartResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "cart-1", got.CartID)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "ci-1", got.Items[0].CartItemID)
}

const checkoutBody = `{
	"gatewayTxnRef": "imp_100",
	"payMethod": "card",
	"purchaseType": "oneTime",
	"cartOrderItems": [{"cartItemId": "ci-1", "price": "19.99"}],
	"buyer": {"email": "jane@example.com", "name": "Jane"}
}`

func TestProcessPayment(t *testing.T) {
	t.Run("one-time success", func(t *testing.T) {
		f := newFixture()
		token := bearerToken(t, "member-1")

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, checkoutBody)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got receiptResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "imp_100", got.GatewayTxnRef)
		assert.Equal(t, "39.98", got.Amount)
		assert.Equal(t, string(order.StatusPaymentCompleted), got.Status)
		assert.Empty(t, got.SubscriptionID)
		assert.True(t, f.carts.cleared)
	})

	t.Run("subscription purchase returns subscription id", func(t *testing.T) {
		f := newFixture()
		token := bearerToken(t, "member-1")
		body := strings.Replace(checkoutBody, "oneTime", "subscription", 1)

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		var got receiptResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.NotEmpty(t, got.SubscriptionID)
		assert.False(t, got.SubscriptionRenewed)
	})

	t.Run("missing gateway ref fails validation", func(t *testing.T) {
		f := newFixture()
		token := bearerToken(t, "member-1")
		body := `{"payMethod": "card", "purchaseType": "oneTime", "cartOrderItems": [{"cartItemId": "ci-1", "price": "19.99"}]}`

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unparseable price", func(t *testing.T) {
		f := newFixture()
		token := bearerToken(t, "member-1")
		body := strings.Replace(checkoutBody, "19.99", "nineteen", 1)

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("declared price disagrees with gateway", func(t *testing.T) {
		f := newFixture()
		f.gateway.txn.Amount = decimal.RequireFromString("10.00")
		token := bearerToken(t, "member-1")

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, checkoutBody)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("duplicate gateway ref", func(t *testing.T) {
		f := newFixture()
		f.payments.existing["imp_100"] = &payment.Payment{ID: "pay-1", GatewayTxnRef: "imp_100"}
		token := bearerToken(t, "member-1")

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, checkoutBody)
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("gateway unreachable", func(t *testing.T) {
		f := newFixture()
		f.gateway.err = context.DeadlineExceeded
		token := bearerToken(t, "member-1")

		rec := doRequest(f, http.MethodPost, "/checkout/payment", token, checkoutBody)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})
}

func TestGetSubscription(t *testing.T) {
	f := newFixture()
	token := bearerToken(t, "member-1")

	t.Run("no active subscription", func(t *testing.T) {
		rec := doRequest(f, http.MethodGet, "/subscription/", token, "")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("active with staged items", func(t *testing.T) {
		f.subs.active = &subscription.Subscription{
			ID:              "sub-1",
			MemberID:        "member-1",
			Status:          subscription.StatusActive,
			StartDate:       time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			LastBillingDate: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
			NextBillingDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			CurrentCycle:    3,
			PaymentMethod:   "card",
		}
		f.subs.nextItems = []subscription.NextItem{
			{ID: "ni-1", SubscriptionID: "sub-1", ProductID: "prod-1", NextMonthQuantity: 2, NextMonthPrice: decimal.RequireFromString("19.99")},
		}

		rec := doRequest(f, http.MethodGet, "/subscription/", token, "")
		require.Equal(t, http.StatusOK, rec.Code)

		var got subscriptionResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
		assert.Equal(t, "sub-1", got.ID)
		assert.Equal(t, "2025-06-01", got.NextBillingDate)
		assert.Equal(t, 3, got.CurrentCycle)
		require.Len(t, got.NextItems, 1)
		assert.Equal(t, "19.99", got.NextItems[0].Price)
	})
}

func TestUpdateBillingDate(t *testing.T) {
	f := newFixture()
	token := bearerToken(t, "member-1")
	f.subs.byID["sub-1"] = &subscription.Subscription{
		ID:       "sub-1",
		MemberID: "member-1",
		Status:   subscription.StatusActive,
	}

	t.Run("success", func(t *testing.T) {
		body := `{"subscriptionId": "sub-1", "newDate": "2025-07-15"}`
		rec := doRequest(f, http.MethodPut, "/subscription/billing-date", token, body)
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, f.subs.updated)
		assert.Equal(t, time.Date(2025, 7, 15, 0, 0, 0, 0, time.UTC), f.subs.updated.NextBillingDate)
	})

	t.Run("malformed date", func(t *testing.T) {
		body := `{"subscriptionId": "sub-1", "newDate": "15/07/2025"}`
		rec := doRequest(f, http.MethodPut, "/subscription/billing-date", token, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("cancelled subscription rejected", func(t *testing.T) {
		f.subs.byID["sub-2"] = &subscription.Subscription{
			ID:       "sub-2",
			MemberID: "member-1",
			Status:   subscription.StatusCancelled,
		}
		body := `{"subscriptionId": "sub-2", "newDate": "2025-07-15"}`
		rec := doRequest(f, http.MethodPut, "/subscription/billing-date", token, body)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown subscription", func(t *testing.T) {
		body := `{"subscriptionId": "nope", "newDate": "2025-07-15"}`
		rec := doRequest(f, http.MethodPut, "/subscription/billing-date", token, body)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestUpdatePaymentMethod(t *testing.T) {
	f := newFixture()
	token := bearerToken(t, "member-1")
	f.subs.byID["sub-1"] = &subscription.Subscription{
		ID:       "sub-1",
		MemberID: "member-1",
		Status:   subscription.StatusActive,
	}

	body := `{"subscriptionId": "sub-1", "method": "kakaopay"}`
	rec := doRequest(f, http.MethodPut, "/subscription/payment-method", token, body)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, f.subs.updated)
	assert.Equal(t, "kakaopay", f.subs.updated.PaymentMethod)
}

func TestCancelSubscription(t *testing.T) {
	token := ""

	setup := func(t *testing.T) *fixture {
		f := newFixture()
		token = bearerToken(t, "member-1")
		f.subs.byID["sub-1"] = &subscription.Subscription{
			ID:       "sub-1",
			MemberID: "member-1",
			Status:   subscription.StatusActive,
		}
		return f
	}

	t.Run("immediate", func(t *testing.T) {
		f := setup(t)
		rec := doRequest(f, http.MethodDelete, "/subscription/?subscriptionId=sub-1&immediately=true", token, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, f.subs.updated)
		assert.Equal(t, subscription.StatusCancelled, f.subs.updated.Status)
	})

	t.Run("deferred", func(t *testing.T) {
		f := setup(t)
		rec := doRequest(f, http.MethodDelete, "/subscription/?subscriptionId=sub-1", token, "")
		require.Equal(t, http.StatusNoContent, rec.Code)
		require.NotNil(t, f.subs.updated)
		assert.Equal(t, subscription.StatusActive, f.subs.updated.Status)
		assert.True(t, f.subs.updated.CancelAtCycleEnd)
	})

	t.Run("missing id", func(t *testing.T) {
		f := setup(t)
		rec := doRequest(f, http.MethodDelete, "/subscription/", token, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

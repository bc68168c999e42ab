package handler

import (
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/pilldrop/commerce-api/internal/checkout"
	"github.com/pilldrop/commerce-api/internal/domain/order"
	"github.com/pilldrop/commerce-api/internal/domain/payment"
	"github.com/pilldrop/commerce-api/internal/domain/subscription"
)

// checkoutRequest is the POST /checkout/payment body. Declared prices arrive
// as strings and are parsed into exact decimals.
type checkoutRequest struct {
	GatewayTxnRef string                `json:"gatewayTxnRef" validate:"required"`
	PaymentMethod string                `json:"payMethod" validate:"required"`
	PurchaseKind  string                `json:"purchaseType" validate:"required,oneof=oneTime subscription"`
	CartItems     []checkoutItemDecl    `json:"cartOrderItems" validate:"required,min=1,dive"`
	Buyer         checkoutBuyerInfo     `json:"buyer"`
	Shipping      checkoutShippingInfo  `json:"shipping"`
}

type checkoutItemDecl struct {
	CartItemID string `json:"cartItemId" validate:"required"`
	Price      string `json:"price" validate:"required"`
}

type checkoutBuyerInfo struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Tel      string `json:"tel"`
	Addr     string `json:"addr"`
	Postcode string `json:"postcode"`
}

type checkoutShippingInfo struct {
	PostalCode    string `json:"postalCode"`
	RoadAddress   string `json:"roadAddress"`
	DetailAddress string `json:"detailAddress"`
}

// receiptResponse is returned on a committed checkout.
type receiptResponse struct {
	PaymentID     string    `json:"paymentId"`
	GatewayTxnRef string    `json:"gatewayTxnRef"`
	OrderID       string    `json:"orderId"`
	Amount        string    `json:"amount"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	PaidAt        time.Time `json:"paidAt"`

	SubscriptionID      string `json:"subscriptionId,omitempty"`
	SubscriptionRenewed bool   `json:"subscriptionRenewed,omitempty"`
}

// ProcessPayment handles POST /checkout/payment: it converts the member's
// cart into a committed order after verifying the gateway transaction.
func (h *Handler) ProcessPayment(w http.ResponseWriter, r *http.Request) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: http.StatusUnauthorized, Message: "unauthorized"})
		return
	}

	var req checkoutRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	declarations := make([]order.PriceDeclaration, len(req.CartItems))
	for i, item := range req.CartItems {
		price, err := decimal.NewFromString(item.Price)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{
				Code:    http.StatusBadRequest,
				Message: "invalid price for cart item " + item.CartItemID,
			})
			return
		}
		declarations[i] = order.PriceDeclaration{CartItemID: item.CartItemID, Price: price}
	}

	receipt, err := h.checkout.Process(r.Context(), checkout.Request{
		MemberID:      memberID,
		Declarations:  declarations,
		GatewayTxnRef: req.GatewayTxnRef,
		PaymentMethod: req.PaymentMethod,
		PurchaseKind:  checkout.PurchaseKind(req.PurchaseKind),
		Buyer: payment.BuyerInfo{
			Email:    req.Buyer.Email,
			Name:     req.Buyer.Name,
			Tel:      req.Buyer.Tel,
			Addr:     req.Buyer.Addr,
			Postcode: req.Buyer.Postcode,
		},
		Shipping: subscription.ShippingInfo{
			PostalCode:    req.Shipping.PostalCode,
			RoadAddress:   req.Shipping.RoadAddress,
			DetailAddress: req.Shipping.DetailAddress,
		},
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := receiptResponse{
		PaymentID:     receipt.PaymentID,
		GatewayTxnRef: receipt.GatewayTxnRef,
		OrderID:       receipt.OrderID,
		Amount:        receipt.Amount.String(),
		PaymentMethod: receipt.PaymentMethod,
		Status:        string(receipt.Status),
		PaidAt:        receipt.PaidAt,
	}
	if receipt.Subscription != nil {
		resp.SubscriptionID = receipt.Subscription.Subscription.ID
		resp.SubscriptionRenewed = receipt.Subscription.Renewed
	}
	writeJSON(w, http.StatusOK, resp)
}

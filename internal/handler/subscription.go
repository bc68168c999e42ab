package handler

import (
	"net/http"
	"time"
)

// subscriptionResponse is the GET /subscription body.
type subscriptionResponse struct {
	ID               string             `json:"id"`
	Status           string             `json:"status"`
	StartDate        string             `json:"startDate"`
	LastBillingDate  string             `json:"lastBillingDate"`
	NextBillingDate  string             `json:"nextBillingDate"`
	CurrentCycle     int                `json:"currentCycle"`
	PaymentMethod    string             `json:"paymentMethod"`
	PostalCode       string             `json:"postalCode"`
	RoadAddress      string             `json:"roadAddress"`
	DetailAddress    string             `json:"detailAddress"`
	CancelAtCycleEnd bool               `json:"cancelAtCycleEnd"`
	NextItems        []nextItemResponse `json:"nextItems"`
}

type nextItemResponse struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Price     string `json:"price"`
}

const dateLayout = "2006-01-02"

// GetSubscription handles GET /subscription for the authenticated member.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: http.StatusUnauthorized, Message: "unauthorized"})
		return
	}

	sub, items, err := h.subs.Get(r.Context(), memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := subscriptionResponse{
		ID:               sub.ID,
		Status:           string(sub.Status),
		StartDate:        sub.StartDate.Format(dateLayout),
		LastBillingDate:  sub.LastBillingDate.Format(dateLayout),
		NextBillingDate:  sub.NextBillingDate.Format(dateLayout),
		CurrentCycle:     sub.CurrentCycle,
		PaymentMethod:    sub.PaymentMethod,
		PostalCode:       sub.PostalCode,
		RoadAddress:      sub.RoadAddress,
		DetailAddress:    sub.DetailAddress,
		CancelAtCycleEnd: sub.CancelAtCycleEnd,
		NextItems:        make([]nextItemResponse, 0, len(items)),
	}
	for _, it := range items {
		resp.NextItems = append(resp.NextItems, nextItemResponse{
			ProductID: it.ProductID,
			Quantity:  it.NextMonthQuantity,
			Price:     it.NextMonthPrice.String(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// updateBillingDateRequest is the PUT /subscription/billing-date body.
type updateBillingDateRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	NewDate        string `json:"newDate" validate:"required"`
}

// UpdateBillingDate handles PUT /subscription/billing-date.
func (h *Handler) UpdateBillingDate(w http.ResponseWriter, r *http.Request) {
	var req updateBillingDateRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	newDate, err := time.Parse(dateLayout, req.NewDate)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "newDate must be YYYY-MM-DD"})
		return
	}

	if err := h.subs.UpdateBillingDate(r.Context(), req.SubscriptionID, newDate); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// updatePaymentMethodRequest is the PUT /subscription/payment-method body.
type updatePaymentMethodRequest struct {
	SubscriptionID string `json:"subscriptionId" validate:"required"`
	Method         string `json:"method" validate:"required"`
}

// UpdatePaymentMethod handles PUT /subscription/payment-method.
func (h *Handler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req updatePaymentMethodRequest
	if err := h.decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: err.Error()})
		return
	}

	if err := h.subs.UpdatePaymentMethod(r.Context(), req.SubscriptionID, req.Method); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

// CancelSubscription handles DELETE /subscription?subscriptionId=...&immediately=...
func (h *Handler) CancelSubscription(w http.ResponseWriter, r *http.Request) {
	subID := r.URL.Query().Get("subscriptionId")
	if subID == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: http.StatusBadRequest, Message: "subscriptionId is required"})
		return
	}
	immediately := r.URL.Query().Get("immediately") == "true"

	if err := h.subs.Cancel(r.Context(), subID, immediately); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

package handler

import (
	"net/http"
)

type productResponse struct {
	ID       string `json:"id"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	Category string `json:"category"`
}

// ListProducts handles GET /products.
func (h *Handler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:       p.ID,
			SKU:      p.SKU,
			Name:     p.Name,
			Price:    p.Price.String(),
			Category: p.Category,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

type cartItemResponse struct {
	CartItemID string `json:"cartItemId"`
	ProductID  string `json:"productId"`
	Quantity   int    `json:"quantity"`
}

type cartResponse struct {
	CartID string             `json:"cartId"`
	Items  []cartItemResponse `json:"items"`
}

// GetCart handles GET /cart for the authenticated member.
func (h *Handler) GetCart(w http.ResponseWriter, r *http.Request) {
	memberID, ok := MemberIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Code: http.StatusUnauthorized, Message: "unauthorized"})
		return
	}

	c, err := h.carts.FindByMember(r.Context(), memberID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	items, err := h.carts.FindItems(r.Context(), c.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := cartResponse{CartID: c.ID, Items: make([]cartItemResponse, 0, len(items))}
	for _, it := range items {
		resp.Items = append(resp.Items, cartItemResponse{
			CartItemID: it.ID,
			ProductID:  it.ProductID,
			Quantity:   it.Quantity,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestListProducts(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)
	if len(products) != seededProducts {
		t.Fatalf("expected %d products, got %d", seededProducts, len(products))
	}
}

func TestListProducts_Fields(t *testing.T) {
	resp := doGet(t, "/api/products")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	products := decodeJSON[[]productResponse](t, resp)

	var omega *productResponse
	for i := range products {
		if products[i].ID == "prod-omega3" {
			omega = &products[i]
			break
		}
	}

	if omega == nil {
		t.Fatal("product 'prod-omega3' not found")
	}
	if omega.SKU != "PD-OMEGA3-90" {
		t.Errorf("sku: got %q, want %q", omega.SKU, "PD-OMEGA3-90")
	}
	if omega.Name != "Omega-3 Fish Oil 90ct" {
		t.Errorf("name: got %q, want %q", omega.Name, "Omega-3 Fish Oil 90ct")
	}
	if omega.Price != "19.99" {
		t.Errorf("price: got %q, want %q", omega.Price, "19.99")
	}
	if omega.Category != "supplement" {
		t.Errorf("category: got %q, want %q", omega.Category, "supplement")
	}
}

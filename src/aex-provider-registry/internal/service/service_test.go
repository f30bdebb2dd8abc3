package service

import (
	"context"
	"testing"

	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/model"
	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/store"
)

func activeCatalogue(t *testing.T) []model.SKU {
	t.Helper()
	skus, err := store.NewMemoryStore().ListActive(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	return skus
}

func TestSearch_QueryMatchesAndRanksCheapestFirst(t *testing.T) {
	items := Search(activeCatalogue(t), model.SearchRequest{
		Query: "red high-top basketball shoes",
	})

	if len(items) != 3 {
		t.Fatalf("got %d items, want the 3 shoe SKUs: %+v", len(items), items)
	}
	for i := 1; i < len(items); i++ {
		if items[i].UnitPrice < items[i-1].UnitPrice {
			t.Errorf("items not cheapest-first: %v before %v", items[i-1].UnitPrice, items[i].UnitPrice)
		}
	}
	if items[0].SKU != "sku_shoes_budget" {
		t.Errorf("cheapest item = %q", items[0].SKU)
	}
}

func TestSearch_MaxPriceFilters(t *testing.T) {
	items := Search(activeCatalogue(t), model.SearchRequest{
		Query:    "basketball shoes",
		MaxPrice: 70,
	})
	for _, item := range items {
		if item.UnitPrice > 70 {
			t.Errorf("item %s over max price: %v", item.SKU, item.UnitPrice)
		}
	}
	if len(items) != 2 {
		t.Errorf("got %d items, want 2 under the cap", len(items))
	}
}

func TestSearch_SKUAllowList(t *testing.T) {
	items := Search(activeCatalogue(t), model.SearchRequest{
		SKUs: []string{"sku_mug"},
	})
	if len(items) != 1 || items[0].SKU != "sku_mug" {
		t.Fatalf("sku allow-list ignored: %+v", items)
	}
}

func TestSearch_RefundabilityConstraint(t *testing.T) {
	// The mug is non-refundable and must drop out.
	items := Search(activeCatalogue(t), model.SearchRequest{
		RequiresRefundability: true,
	})
	for _, item := range items {
		if !item.Refundable {
			t.Errorf("non-refundable item %s returned", item.SKU)
		}
	}
}

func TestSearch_MerchantAllowList(t *testing.T) {
	items := Search(activeCatalogue(t), model.SearchRequest{
		Merchants: []string{"did:ap2:merchant:someone-else"},
	})
	if len(items) != 0 {
		t.Errorf("items returned for a merchant with no listings: %+v", items)
	}
}

func TestSearch_Limit(t *testing.T) {
	items := Search(activeCatalogue(t), model.SearchRequest{Limit: 2})
	if len(items) != 2 {
		t.Errorf("limit ignored: got %d items", len(items))
	}
}

func TestSearch_NoTokenMatch(t *testing.T) {
	items := Search(activeCatalogue(t), model.SearchRequest{Query: "submarine"})
	if len(items) != 0 {
		t.Errorf("unrelated query matched: %+v", items)
	}
}

func TestStatusTransitionsDropFromSearch(t *testing.T) {
	st := store.NewMemoryStore()
	ctx := context.Background()

	if err := st.SetStatus(ctx, "sku_mug", model.SKUStatusDiscontinued); err != nil {
		t.Fatal(err)
	}
	skus, err := st.ListActive(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, sku := range skus {
		if sku.SKUID == "sku_mug" {
			t.Error("discontinued SKU still listed as active")
		}
	}
}

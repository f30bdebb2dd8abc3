// Package service implements the SKU registry: the catalogue directory
// behind the Merchant Agent's product search. Ranking is deliberately
// simple — token match then price — because cart-ranking heuristics belong
// to the agents, not the directory.
package service

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/model"
	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/store"
)

type Service struct {
	store store.Store
}

func New(st store.Store) *Service {
	return &Service{store: st}
}

func (s *Service) HandleRegisterSKU(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.RegisterSKURequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.SKUID) == "" || strings.TrimSpace(req.Label) == "" {
		http.Error(w, "sku and label are required", http.StatusBadRequest)
		return
	}
	if req.UnitPrice <= 0 || strings.TrimSpace(req.Currency) == "" {
		http.Error(w, "unit_price and currency are required", http.StatusBadRequest)
		return
	}
	if !strings.HasPrefix(req.MerchantDID, "did:") {
		http.Error(w, "merchant_did must be a DID", http.StatusBadRequest)
		return
	}

	now := time.Now().UTC()
	sku := model.SKU{
		SKUID:       req.SKUID,
		Label:       req.Label,
		Description: req.Description,
		Brand:       req.Brand,
		Tags:        req.Tags,
		Currency:    req.Currency,
		UnitPrice:   req.UnitPrice,
		MerchantDID: req.MerchantDID,
		Refundable:  req.Refundable,
		TrustTier:   model.TrustTierUnverified,
		Status:      model.SKUStatusActive,
		Metadata:    req.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.UpsertSKU(ctx, sku); err != nil {
		slog.ErrorContext(ctx, "sku upsert failed", "sku", req.SKUID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "sku_registered", "sku", sku.SKUID, "merchant", sku.MerchantDID)
	respondJSON(w, http.StatusCreated, sku)
}

func (s *Service) HandleGetSKU(w http.ResponseWriter, r *http.Request) {
	sku, err := s.store.GetSKU(r.Context(), r.PathValue("sku"))
	if err != nil {
		if errors.Is(err, store.ErrSKUNotFound) {
			http.Error(w, "sku not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, sku)
}

func (s *Service) HandleSetStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.SKUStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	switch req.Status {
	case model.SKUStatusActive, model.SKUStatusOutOfStock, model.SKUStatusDiscontinued:
	default:
		http.Error(w, "unknown status", http.StatusBadRequest)
		return
	}

	if err := s.store.SetStatus(r.Context(), r.PathValue("sku"), req.Status); err != nil {
		if errors.Is(err, store.ErrSKUNotFound) {
			http.Error(w, "sku not found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"sku": r.PathValue("sku"), "status": string(req.Status)})
}

func (s *Service) HandleSearch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req model.SearchRequest
	if err := decodeJSON(r, &req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	skus, err := s.store.ListActive(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "catalogue listing failed", "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	items := Search(skus, req)
	slog.DebugContext(ctx, "catalogue_searched", "query", req.Query, "matches", len(items))
	respondJSON(w, http.StatusOK, model.SearchResponse{Items: items, Count: len(items)})
}

// Search filters and ranks the catalogue against the request's
// constraints, cheapest first.
func Search(skus []model.SKU, req model.SearchRequest) []model.Item {
	tokens := tokenize(req.Query)

	type scored struct {
		item  model.Item
		score int
	}
	var matches []scored
	for _, sku := range skus {
		if len(req.SKUs) > 0 && !containsString(req.SKUs, sku.SKUID) {
			continue
		}
		if len(req.Merchants) > 0 && !containsString(req.Merchants, sku.MerchantDID) {
			continue
		}
		if req.Currency != "" && sku.Currency != req.Currency {
			continue
		}
		if req.MaxPrice > 0 && sku.UnitPrice > req.MaxPrice {
			continue
		}
		if req.RequiresRefundability && !sku.Refundable {
			continue
		}

		score := matchScore(sku, tokens)
		if len(tokens) > 0 && score == 0 {
			continue
		}

		matches = append(matches, scored{
			item: model.Item{
				SKU:         sku.SKUID,
				Label:       sku.Label,
				Brand:       sku.Brand,
				Currency:    sku.Currency,
				UnitPrice:   sku.UnitPrice,
				MerchantDID: sku.MerchantDID,
				Refundable:  sku.Refundable,
				TrustTier:   string(sku.TrustTier),
			},
			score: score,
		})
	}

	// Cheapest-first is the contract the Merchant Agent's
	// budget/standard/premium spread relies on; match quality only breaks
	// price ties.
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].item.UnitPrice != matches[j].item.UnitPrice {
			return matches[i].item.UnitPrice < matches[j].item.UnitPrice
		}
		return matches[i].score > matches[j].score
	})

	limit := req.Limit
	if limit <= 0 || limit > len(matches) {
		limit = len(matches)
	}
	out := make([]model.Item, 0, limit)
	for _, m := range matches[:limit] {
		out = append(out, m.item)
	}
	return out
}

func matchScore(sku model.SKU, tokens []string) int {
	if len(tokens) == 0 {
		return 0
	}
	haystack := strings.ToLower(sku.Label + " " + sku.Brand + " " + sku.Description + " " + strings.Join(sku.Tags, " "))
	score := 0
	for _, tok := range tokens {
		if strings.Contains(haystack, tok) {
			score++
		}
	}
	return score
}

func tokenize(query string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.Trim(tok, ".,;:!?")
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}

func containsString(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer io.Copy(io.Discard, r.Body)
	return json.NewDecoder(r.Body).Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

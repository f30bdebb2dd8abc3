package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-provider-registry/internal/service"
)

func NewRouter(svc *service.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /skus", svc.HandleRegisterSKU)
	mux.HandleFunc("GET /skus/{sku}", svc.HandleGetSKU)
	mux.HandleFunc("POST /skus/{sku}/status", svc.HandleSetStatus)
	mux.HandleFunc("POST /search", svc.HandleSearch)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

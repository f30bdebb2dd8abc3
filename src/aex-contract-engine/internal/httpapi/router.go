package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-contract-engine/internal/service"
)

func NewRouter(svc *service.Service) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /artifacts", svc.HandleArchive)
	mux.HandleFunc("GET /artifacts", svc.HandleList)
	mux.HandleFunc("GET /artifacts/{transactionID}", svc.HandleGet)
	mux.HandleFunc("POST /artifacts/{transactionID}/dispute", svc.HandleDispute)
	mux.HandleFunc("POST /artifacts/{transactionID}/resolve", svc.HandleResolve)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

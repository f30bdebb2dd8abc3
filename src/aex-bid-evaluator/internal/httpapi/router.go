package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-bid-evaluator/internal/service"
)

func NewRouter(svc *service.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /internal/v1/evaluate", svc.HandleEvaluate)
	mux.HandleFunc("GET /internal/v1/evaluations/{mandateID}", svc.HandleGetLatest)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

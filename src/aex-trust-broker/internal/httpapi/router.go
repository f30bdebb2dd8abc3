package httpapi

import (
	"net/http"

	"github.com/parlakisik/aex-ap2/aex-trust-broker/internal/service"
)

func NewRouter(svc *service.Service) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /agents", svc.HandleRegisterAgent)
	mux.HandleFunc("GET /agents", svc.HandleListAgents)
	mux.HandleFunc("GET /agents/{did}", svc.HandleGetAgent)
	mux.HandleFunc("POST /agents/{did}/keys", svc.HandleAddKey)
	mux.HandleFunc("POST /agents/{did}/keys/revoke", svc.HandleRevokeKey)
	mux.HandleFunc("GET /dids/{did}/did.json", svc.HandleResolveDID)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	return mux
}

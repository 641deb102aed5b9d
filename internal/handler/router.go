package handler

import (
	"net/http"

	"github.com/Dan9191/card-service/internal/middleware"
	"github.com/gorilla/mux"
)

// NewRouter wires every route of the API
func NewRouter(h *Handler, auth middleware.Authenticator) *mux.Router {
	r := mux.NewRouter()
	r.Use(middleware.RequestLogger(h.log))
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "Route not found")
	})

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)

	// Public routes
	authRouter := r.PathPrefix("/api/auth").Subrouter()
	authRouter.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	authRouter.HandleFunc("/create-admin", h.CreateAdmin).Methods(http.MethodPost)
	authRouter.HandleFunc("/login", h.Login).Methods(http.MethodPost)

	// Protected routes
	cardRouter := r.PathPrefix("/api/cards").Subrouter()
	cardRouter.Use(middleware.AuthMiddleware(auth, h.log))
	cardRouter.HandleFunc("", h.ListCards).Methods(http.MethodGet)
	cardRouter.HandleFunc("/transfer", h.Transfer).Methods(http.MethodPost)
	cardRouter.HandleFunc("/{id:[0-9]+}", h.GetCard).Methods(http.MethodGet)
	cardRouter.HandleFunc("/{id:[0-9]+}/request-block", h.RequestBlock).Methods(http.MethodPut)

	adminRouter := r.PathPrefix("/api/admin/cards").Subrouter()
	adminRouter.Use(middleware.AuthMiddleware(auth, h.log), middleware.AdminOnly())
	adminRouter.HandleFunc("", h.IssueCard).Methods(http.MethodPost)
	adminRouter.HandleFunc("/{id:[0-9]+}", h.DeleteCard).Methods(http.MethodDelete)
	adminRouter.HandleFunc("/{id:[0-9]+}/block", h.BlockCard).Methods(http.MethodPut)
	adminRouter.HandleFunc("/{id:[0-9]+}/activate", h.ActivateCard).Methods(http.MethodPut)
	adminRouter.HandleFunc("/{id:[0-9]+}/balance", h.TopUpCard).Methods(http.MethodPut)

	return r
}

package api

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/erazemk/popis/internal/auth"
	"github.com/erazemk/popis/internal/model"
	"github.com/erazemk/popis/internal/stocktake"
	"github.com/erazemk/popis/internal/store"
)

// NewRouter creates the API router with all endpoints registered.
func NewRouter(db *sql.DB, signer *auth.Signer, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	engine := stocktake.NewEngine(logger, store.NewStocktakes(db), store.NewDirectory(db))

	authHandler := &AuthHandler{DB: db, Signer: signer}
	usersHandler := &UsersHandler{DB: db}
	itemsHandler := &ItemsHandler{DB: db}
	stocktakesHandler := &StocktakesHandler{Engine: engine, Query: stocktake.NewQuery(engine)}

	authMW := AuthMiddleware(signer, db)
	requireAdmin := RequireRole(model.RoleAdmin)
	requireModerator := RequireRole(model.RoleModerator)

	// Public: login.
	mux.HandleFunc("POST /api/auth/login", authHandler.Login)

	// Authenticated routes.
	mux.Handle("PUT /api/auth/password", authMW(http.HandlerFunc(authHandler.ChangePassword)))
	mux.Handle("POST /api/auth/logout", authMW(http.HandlerFunc(authHandler.Logout)))

	// Users (admin only).
	mux.Handle("GET /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.List))))
	mux.Handle("POST /api/users", authMW(requireAdmin(http.HandlerFunc(usersHandler.Create))))
	mux.Handle("GET /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Get))))
	mux.Handle("PUT /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Update))))
	mux.Handle("PUT /api/users/{id}/password", authMW(requireAdmin(http.HandlerFunc(usersHandler.ResetPassword))))
	mux.Handle("DELETE /api/users/{id}", authMW(requireAdmin(http.HandlerFunc(usersHandler.Delete))))

	// Items: read (all roles), write (moderator+).
	mux.Handle("GET /api/items", authMW(http.HandlerFunc(itemsHandler.List)))
	mux.Handle("POST /api/items", authMW(requireModerator(http.HandlerFunc(itemsHandler.Create))))
	mux.Handle("GET /api/items/{id}", authMW(http.HandlerFunc(itemsHandler.Get)))
	mux.Handle("PUT /api/items/{id}", authMW(requireModerator(http.HandlerFunc(itemsHandler.Update))))
	mux.Handle("DELETE /api/items/{id}", authMW(requireModerator(http.HandlerFunc(itemsHandler.Delete))))

	// Stocktakes: read and check (all roles), manage (moderator+).
	mux.Handle("GET /api/stocktakes", authMW(http.HandlerFunc(stocktakesHandler.List)))
	mux.Handle("POST /api/stocktakes", authMW(requireModerator(http.HandlerFunc(stocktakesHandler.Create))))
	mux.Handle("GET /api/stocktakes/{id}", authMW(http.HandlerFunc(stocktakesHandler.Get)))
	mux.Handle("PUT /api/stocktakes/{id}", authMW(requireModerator(http.HandlerFunc(stocktakesHandler.Update))))
	mux.Handle("DELETE /api/stocktakes/{id}", authMW(requireModerator(http.HandlerFunc(stocktakesHandler.Delete))))
	mux.Handle("PUT /api/stocktakes/{id}/status", authMW(requireModerator(http.HandlerFunc(stocktakesHandler.Transition))))
	mux.Handle("PUT /api/stocktakes/{id}/accounts", authMW(requireModerator(http.HandlerFunc(stocktakesHandler.SetAccounts))))
	mux.Handle("GET /api/stocktakes/{id}/checks", authMW(http.HandlerFunc(stocktakesHandler.ListChecks)))
	mux.Handle("POST /api/stocktakes/{id}/checks", authMW(http.HandlerFunc(stocktakesHandler.Check)))
	mux.Handle("GET /api/stocktakes/{id}/statistics", authMW(http.HandlerFunc(stocktakesHandler.Statistics)))
	mux.Handle("GET /api/me/stocktake-items", authMW(http.HandlerFunc(stocktakesHandler.MyItems)))

	return mux
}

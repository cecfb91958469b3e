package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"propvest/internal/middleware"
	"propvest/pkg/logger"
)

type Handlers struct {
	Auth         *AuthHandler
	Wallet       *WalletHandler
	Transactions *TransactionHandler
	Investments  *InvestmentHandler
	Profits      *ProfitHandler
	Properties   *PropertyHandler
	Users        *UsersHandler
	Settings     *SettingsHandler
	Security     *SecurityHandler
	Feed         *FeedHandler
	System       *SystemHandler
}

// Chain holds the configured middleware the router wires in.
type Chain struct {
	Auth         *middleware.AuthMiddleware
	Audit        *middleware.AuditMiddleware
	Idempotency  *middleware.IdempotencyMiddleware
	GlobalLimit  *middleware.RateLimiter
	UserLimit    *middleware.RateLimiter
	CORSOrigins  []string
	MaxBodyBytes int64
	Logger       logger.Logger
}

const idPattern = "{id:[0-9]+}"

// NewRouter builds the public, customer and admin route trees. CORS wraps
// the router itself so preflight requests are answered before routing.
func NewRouter(h Handlers, c Chain) http.Handler {
	r := mux.NewRouter()

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recovery(c.Logger))
	r.Use(middleware.CorrelationID)
	r.Use(middleware.Metrics)
	r.Use(middleware.NewLoggingMiddleware(c.Logger).Log)
	r.Use(middleware.BodyLimit(c.MaxBodyBytes))
	r.Use(c.GlobalLimit.Limit)

	r.HandleFunc("/health", h.System.Health).Methods(http.MethodGet)
	r.HandleFunc("/ready", h.System.Ready).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/api/auth/login", h.Auth.Login).Methods(http.MethodPost)

	idempotent := func(fn http.HandlerFunc) http.Handler {
		return c.Idempotency.Require(fn)
	}

	// Customer routes
	api := r.PathPrefix("/api").Subrouter()
	api.Use(c.Auth.Authenticate)
	api.Use(c.UserLimit.Limit)

	api.HandleFunc("/auth/logout", h.Auth.Logout).Methods(http.MethodPost)
	api.HandleFunc("/auth/totp/enroll", h.Auth.EnrollTOTP).Methods(http.MethodPost)
	api.HandleFunc("/auth/totp/confirm", h.Auth.ConfirmTOTP).Methods(http.MethodPost)
	api.HandleFunc("/auth/totp/disable", h.Auth.DisableTOTP).Methods(http.MethodPost)

	api.HandleFunc("/wallet/summary", h.Wallet.Summary).Methods(http.MethodGet)
	api.Handle("/wallet/deposit", idempotent(h.Wallet.Deposit)).Methods(http.MethodPost)
	api.Handle("/wallet/withdraw", idempotent(h.Wallet.Withdraw)).Methods(http.MethodPost)
	api.HandleFunc("/wallet/transactions", h.Wallet.Transactions).Methods(http.MethodGet)
	api.HandleFunc("/wallet/transactions/"+idPattern+"/cancel", h.Wallet.CancelTransaction).Methods(http.MethodPost)

	api.Handle("/investments", idempotent(h.Investments.Create)).Methods(http.MethodPost)
	api.HandleFunc("/investments", h.Investments.Mine).Methods(http.MethodGet)

	// Admin routes
	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(c.Auth.Authenticate)
	admin.Use(middleware.RequireStaff)
	admin.Use(c.UserLimit.Limit)
	admin.Use(c.Audit.Audit)

	admin.HandleFunc("/ws", h.Feed.Serve).Methods(http.MethodGet)

	admin.HandleFunc("/profits", h.Profits.List).Methods(http.MethodGet)
	admin.HandleFunc("/profits/summary", h.Profits.Summary).Methods(http.MethodGet)
	admin.HandleFunc("/profits/calculate", h.Profits.Calculate).Methods(http.MethodPost)
	admin.HandleFunc("/profits/distribute-bulk", h.Profits.DistributeBulk).Methods(http.MethodPost)
	admin.HandleFunc("/profits/"+idPattern, h.Profits.Get).Methods(http.MethodGet)
	admin.HandleFunc("/profits/"+idPattern+"/distribute", h.Profits.Distribute).Methods(http.MethodPost)
	admin.HandleFunc("/profits/"+idPattern+"/cancel", h.Profits.Cancel).Methods(http.MethodPost)
	admin.HandleFunc("/profits/"+idPattern, h.Profits.Delete).Methods(http.MethodDelete)

	admin.HandleFunc("/transactions", h.Transactions.List).Methods(http.MethodGet)
	admin.HandleFunc("/transactions/store", h.Transactions.Store).Methods(http.MethodPost)
	admin.HandleFunc("/transactions/"+idPattern, h.Transactions.Get).Methods(http.MethodGet)
	admin.HandleFunc("/transactions/"+idPattern+"/update", h.Transactions.Update).Methods(http.MethodPut)
	admin.HandleFunc("/transactions/"+idPattern, h.Transactions.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/transactions/"+idPattern+"/approve", h.Transactions.Approve).Methods(http.MethodPost)
	admin.HandleFunc("/transactions/"+idPattern+"/reject", h.Transactions.Reject).Methods(http.MethodPost)

	admin.HandleFunc("/properties", h.Properties.List).Methods(http.MethodGet)
	admin.HandleFunc("/properties/store", h.Properties.Store).Methods(http.MethodPost)
	admin.HandleFunc("/properties/"+idPattern, h.Properties.Get).Methods(http.MethodGet)
	admin.HandleFunc("/properties/"+idPattern+"/update", h.Properties.Update).Methods(http.MethodPut)
	admin.HandleFunc("/properties/"+idPattern, h.Properties.Delete).Methods(http.MethodDelete)
	admin.HandleFunc("/properties/"+idPattern+"/plots", h.Properties.Plots).Methods(http.MethodGet)

	admin.HandleFunc("/plots/store", h.Properties.StorePlot).Methods(http.MethodPost)
	admin.HandleFunc("/plots/"+idPattern+"/update", h.Properties.UpdatePlot).Methods(http.MethodPut)
	admin.HandleFunc("/plots/"+idPattern, h.Properties.DeletePlot).Methods(http.MethodDelete)

	admin.HandleFunc("/sales", h.Properties.Sales).Methods(http.MethodGet)
	admin.HandleFunc("/sales/store", h.Properties.StoreSale).Methods(http.MethodPost)
	admin.HandleFunc("/sales/"+idPattern, h.Properties.GetSale).Methods(http.MethodGet)

	admin.HandleFunc("/investments", h.Investments.List).Methods(http.MethodGet)
	admin.HandleFunc("/investments/"+idPattern, h.Investments.Get).Methods(http.MethodGet)
	admin.HandleFunc("/investments/"+idPattern+"/cancel", h.Investments.Cancel).Methods(http.MethodPost)

	admin.HandleFunc("/users", h.Users.List).Methods(http.MethodGet)
	admin.HandleFunc("/users/store", h.Users.Store).Methods(http.MethodPost)
	admin.HandleFunc("/users/"+idPattern, h.Users.Get).Methods(http.MethodGet)
	admin.HandleFunc("/users/"+idPattern+"/update", h.Users.Update).Methods(http.MethodPut)
	admin.HandleFunc("/users/"+idPattern, h.Users.Delete).Methods(http.MethodDelete)

	admin.HandleFunc("/teams", h.Users.ListTeams).Methods(http.MethodGet)
	admin.HandleFunc("/teams/store", h.Users.StoreTeam).Methods(http.MethodPost)
	admin.HandleFunc("/teams/"+idPattern, h.Users.GetTeam).Methods(http.MethodGet)
	admin.HandleFunc("/teams/"+idPattern+"/update", h.Users.UpdateTeam).Methods(http.MethodPut)
	admin.HandleFunc("/teams/"+idPattern, h.Users.DeleteTeam).Methods(http.MethodDelete)
	admin.HandleFunc("/teams/"+idPattern+"/members", h.Users.AssignMembers).Methods(http.MethodPut)

	admin.HandleFunc("/wallets", h.Wallet.ListWallets).Methods(http.MethodGet)
	admin.HandleFunc("/wallets/store", h.Wallet.StoreWallet).Methods(http.MethodPost)
	admin.HandleFunc("/wallets/"+idPattern, h.Wallet.GetWallet).Methods(http.MethodGet)
	admin.HandleFunc("/wallets/"+idPattern+"/update", h.Wallet.UpdateWallet).Methods(http.MethodPut)
	admin.HandleFunc("/wallets/"+idPattern+"/freeze", h.Wallet.FreezeWallet).Methods(http.MethodPost)
	admin.HandleFunc("/wallets/"+idPattern+"/unfreeze", h.Wallet.UnfreezeWallet).Methods(http.MethodPost)
	admin.HandleFunc("/wallets/"+idPattern, h.Wallet.DeleteWallet).Methods(http.MethodDelete)

	admin.HandleFunc("/settings", h.Settings.Get).Methods(http.MethodGet)
	admin.HandleFunc("/settings", h.Settings.Update).Methods(http.MethodPut)
	admin.HandleFunc("/security-logs", h.Security.Logs).Methods(http.MethodGet)

	return middleware.CORS(c.CORSOrigins)(r)
}

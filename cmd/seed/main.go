// Seeds a staff admin, a demo customer with a wallet and the default payment
// methods so a fresh database can be used for login straight away.
//
//	SEED_ADMIN_EMAIL=admin@propvest.local SEED_ADMIN_PASSWORD=ChangeMe123
package main

import (
	"context"
	"fmt"
	"os"

	"propvest/internal/repository/postgres"
	"propvest/internal/security"
	"propvest/internal/user"
	"propvest/pkg/config"
	"propvest/pkg/domain"
	"propvest/pkg/errors"
	"propvest/pkg/logger"
)

func main() {
	log := logger.New("seed")

	cfg := config.Load()
	if err := cfg.ValidateCore(); err != nil {
		log.Fatal("Invalid configuration", map[string]interface{}{"error": err.Error()})
	}

	db, err := postgres.Open(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", map[string]interface{}{"error": err.Error()})
	}
	defer db.Close()

	crypto, err := security.NewCryptoService(cfg.JWT.EncryptionKey)
	if err != nil {
		log.Fatal("Invalid encryption key", map[string]interface{}{"error": err.Error()})
	}

	userRepo := postgres.NewUserRepository(db, crypto)
	users := user.NewService(userRepo, postgres.NewTeamRepository(db), log)
	methods := postgres.NewPaymentMethodRepository(db)
	ctx := context.Background()

	ensureUser(ctx, userRepo, users, log, &user.CreateRequest{
		Name:     getenv("SEED_ADMIN_NAME", "Propvest Admin"),
		Email:    getenv("SEED_ADMIN_EMAIL", "admin@propvest.local"),
		Password: getenv("SEED_ADMIN_PASSWORD", "ChangeMe123"),
		Role:     domain.RoleAdmin,
	})
	ensureUser(ctx, userRepo, users, log, &user.CreateRequest{
		Name:     getenv("SEED_CUSTOMER_NAME", "Asha Rao"),
		Email:    getenv("SEED_CUSTOMER_EMAIL", "asha@example.com"),
		Password: getenv("SEED_CUSTOMER_PASSWORD", "Password123"),
		Role:     domain.RoleCustomer,
	})

	ensureMethods(ctx, methods, log)
	fmt.Println("OK: users, wallet and payment methods seeded")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func ensureUser(ctx context.Context, repo *postgres.UserRepository, users *user.Service, log logger.Logger, req *user.CreateRequest) {
	if _, err := repo.FindByEmail(ctx, req.Email); err == nil {
		log.Info("User already exists", map[string]interface{}{"email": req.Email})
		return
	} else if !errors.Is(err, errors.ErrUserNotFound) {
		log.Fatal("User lookup failed", map[string]interface{}{"email": req.Email, "error": err.Error()})
	}

	u, err := users.Create(ctx, req)
	if err != nil {
		log.Fatal("User create failed", map[string]interface{}{"email": req.Email, "error": err.Error()})
	}
	log.Info("User created", map[string]interface{}{"email": u.Email, "role": u.Role, "user_id": u.ID})
}

func ensureMethods(ctx context.Context, repo *postgres.PaymentMethodRepository, log logger.Logger) {
	existing, err := repo.List(ctx, false)
	if err != nil {
		log.Fatal("Payment method lookup failed", map[string]interface{}{"error": err.Error()})
	}
	if len(existing) > 0 {
		log.Info("Payment methods already seeded", map[string]interface{}{"count": len(existing)})
		return
	}

	defaults := []*domain.PaymentMethod{
		{Name: "UPI", Mode: domain.PaymentModeUPI, IsActive: true, Details: domain.Metadata{"vpa": "propvest@okaxis"}},
		{Name: "Bank transfer", Mode: domain.PaymentModeBankTransfer, IsActive: true, Details: domain.Metadata{"ifsc": "HDFC0000001"}},
		{Name: "Cheque", Mode: domain.PaymentModeCheque, IsActive: true},
	}
	for _, m := range defaults {
		if err := repo.Create(ctx, m); err != nil {
			log.Fatal("Payment method create failed", map[string]interface{}{"name": m.Name, "error": err.Error()})
		}
	}
	log.Info("Payment methods created", map[string]interface{}{"count": len(defaults)})
}

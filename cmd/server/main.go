// Command server exposes the lending core over a small JSON HTTP API. The
// caller account is taken from the X-Account header; this is a demo surface,
// not an authentication scheme.
package main

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/credlink/lending-core/internal/auth"
	"github.com/credlink/lending-core/internal/clock"
	"github.com/credlink/lending-core/internal/config"
	"github.com/credlink/lending-core/internal/errs"
	"github.com/credlink/lending-core/internal/events"
	"github.com/credlink/lending-core/internal/events/kafka"
	"github.com/credlink/lending-core/internal/ledger"
	"github.com/credlink/lending-core/internal/models"
	"github.com/credlink/lending-core/internal/oracle"
	"github.com/credlink/lending-core/internal/pool"
	"github.com/credlink/lending-core/internal/risk"
	"github.com/credlink/lending-core/internal/settlement"
	"github.com/credlink/lending-core/internal/storage"
	memorystore "github.com/credlink/lending-core/internal/storage/memory"
	pgstore "github.com/credlink/lending-core/internal/storage/postgres"
	"github.com/credlink/lending-core/internal/vault"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	log := newLogger(cfg.Logging)
	defer log.Sync()

	pub := newPublisher(cfg.Events, log)
	store := newStore(cfg.Storage, log)
	clk := clock.System{}

	ledgerCap := auth.NewCapability()
	adminCap := auth.NewCapability()

	asset := settlement.NewMemoryAsset()
	prices := oracle.NewStatic()

	clVault := vault.NewVault(ledgerCap, adminCap, cfg.Protocol.LiquidationDelay, prices, clk, pub, log)
	liqPool := pool.NewPool(pool.DefaultConfig(), ledgerCap,
		settlement.NewTreasury(asset, "pool-treasury"), clk, pub, log)
	riskEngine := risk.NewEngine(risk.DefaultConfig(), ledgerCap, clk, pub, log)

	ledgerCfg := ledger.DefaultConfig()
	if cfg.Protocol.GracePeriod > 0 {
		ledgerCfg.GracePeriod = cfg.Protocol.GracePeriod
	}
	if cfg.Protocol.DefaultThreshold > 0 {
		ledgerCfg.DefaultThreshold = cfg.Protocol.DefaultThreshold
	}
	core := ledger.NewLedger(ledgerCfg, store, riskEngine, clVault, liqPool,
		ledgerCap, adminCap, clk, pub, log)

	srv := &server{
		log:      log,
		core:     core,
		pool:     liqPool,
		vault:    clVault,
		risk:     riskEngine,
		asset:    asset,
		prices:   prices,
		adminCap: adminCap,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.HandleFunc("POST /admin/merchants", srv.registerMerchant)
	mux.HandleFunc("POST /admin/tokens", srv.configureToken)
	mux.HandleFunc("POST /admin/prices", srv.setPrice)
	mux.HandleFunc("POST /admin/mint", srv.mint)
	mux.HandleFunc("POST /loans", srv.createLoan)
	mux.HandleFunc("POST /loans/fund", srv.fundLoan)
	mux.HandleFunc("POST /loans/liquidate", srv.liquidateLoan)
	mux.HandleFunc("GET /loans", srv.getLoan)
	mux.HandleFunc("POST /payments/pay", srv.makePayment)
	mux.HandleFunc("POST /payments/auto", srv.autoPayment)
	mux.HandleFunc("POST /pool/deposit", srv.deposit)
	mux.HandleFunc("POST /pool/withdraw", srv.withdraw)
	mux.HandleFunc("POST /pool/claim", srv.claimYield)
	mux.HandleFunc("GET /pool/state", srv.poolState)
	mux.HandleFunc("POST /defaults/sweep", srv.sweepDefaults)
	mux.HandleFunc("GET /credit/profile", srv.creditProfile)

	log.Info("starting server", zap.String("addr", cfg.HTTPAddr))
	if err := http.ListenAndServe(cfg.HTTPAddr, mux); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(cfg config.LoggingConfig) *zap.Logger {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if level, err := zapcore.ParseLevel(cfg.Level); err == nil {
		zc.Level = zap.NewAtomicLevelAt(level)
	}
	log, err := zc.Build()
	if err != nil {
		panic(err)
	}
	return log
}

func newPublisher(cfg config.EventsConfig, log *zap.Logger) events.Publisher {
	if cfg.Sink == "kafka" && len(cfg.KafkaBrokers) > 0 {
		return kafka.NewPublisher(cfg.KafkaBrokers)
	}
	return events.NewLogPublisher(log)
}

func newStore(cfg config.StorageConfig, log *zap.Logger) storage.LoanStore {
	if cfg.Backend == "postgres" {
		db, err := sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			log.Fatal("opening postgres", zap.Error(err))
		}
		if err := db.Ping(); err != nil {
			log.Fatal("pinging postgres", zap.Error(err))
		}
		return pgstore.NewLoanStore(db)
	}
	return memorystore.NewLoanStore()
}

type server struct {
	log      *zap.Logger
	core     *ledger.Ledger
	pool     *pool.Pool
	vault    *vault.Vault
	risk     *risk.Engine
	asset    *settlement.MemoryAsset
	prices   *oracle.Static
	adminCap auth.Capability
}

func (s *server) registerMerchant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name            string `json:"name"`
		Wallet          string `json:"wallet"`
		SettlementDelay string `json:"settlement_delay,omitempty"`
	}
	if !decode(w, r, &req) {
		return
	}
	delay, _ := time.ParseDuration(req.SettlementDelay)
	merchant, err := s.core.RegisterMerchant(r.Context(), s.adminCap, req.Name, models.Address(req.Wallet), delay)
	s.respond(w, merchant, err)
}

func (s *server) configureToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token                   string `json:"token"`
		Decimals                int32  `json:"decimals"`
		LiquidationThresholdBps int64  `json:"liquidation_threshold_bps"`
		LiquidationBonusBps     int64  `json:"liquidation_bonus_bps"`
		MaxLoanToValueBps       int64  `json:"max_loan_to_value_bps"`
		PriceSource             string `json:"price_source"`
	}
	if !decode(w, r, &req) {
		return
	}
	err := s.vault.ConfigureToken(s.adminCap, models.TokenID(req.Token), vault.TokenConfig{
		Supported:               true,
		Decimals:                req.Decimals,
		LiquidationThresholdBps: req.LiquidationThresholdBps,
		LiquidationBonusBps:     req.LiquidationBonusBps,
		MaxLoanToValueBps:       req.MaxLoanToValueBps,
		PriceSource:             req.PriceSource,
	})
	s.respond(w, map[string]string{"token": req.Token}, err)
}

func (s *server) setPrice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string          `json:"token"`
		Price decimal.Decimal `json:"price"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.prices.SetPrice(models.TokenID(req.Token), req.Price)
	writeJSON(w, http.StatusOK, map[string]string{"token": req.Token})
}

func (s *server) mint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account string          `json:"account"`
		Amount  decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	s.asset.Mint(models.Address(req.Account), req.Amount)
	writeJSON(w, http.StatusOK, map[string]string{"account": req.Account})
}

func (s *server) createLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Merchant         string          `json:"merchant"`
		Principal        decimal.Decimal `json:"principal"`
		CollateralAmount decimal.Decimal `json:"collateral_amount"`
		CollateralToken  string          `json:"collateral_token"`
		Template         string          `json:"template"`
	}
	if !decode(w, r, &req) {
		return
	}
	loan, err := s.core.CreateLoan(r.Context(), caller(r), models.Address(req.Merchant),
		req.Principal, req.CollateralAmount, models.TokenID(req.CollateralToken), req.Template)
	s.respond(w, loan, err)
}

func (s *server) fundLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID string `json:"loan_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	loan, err := s.core.FundLoan(r.Context(), models.LoanID(req.LoanID))
	s.respond(w, loan, err)
}

func (s *server) liquidateLoan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		LoanID string `json:"loan_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	recovered, err := s.core.LiquidateLoan(r.Context(), models.LoanID(req.LoanID))
	s.respond(w, map[string]decimal.Decimal{"recovered": recovered}, err)
}

func (s *server) getLoan(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("loan_id")
	if id == "" {
		http.Error(w, "loan_id is a mandatory field", http.StatusBadRequest)
		return
	}
	loan, err := s.core.GetLoan(r.Context(), models.LoanID(id))
	if err != nil {
		s.respond(w, nil, err)
		return
	}
	schedule, err := s.core.GetSchedule(r.Context(), loan.ID)
	s.respond(w, map[string]any{"loan": loan, "schedule": schedule}, err)
}

func (s *server) makePayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	payment, err := s.core.MakePayment(r.Context(), caller(r), models.PaymentID(req.PaymentID))
	s.respond(w, payment, err)
}

func (s *server) autoPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"payment_id"`
	}
	if !decode(w, r, &req) {
		return
	}
	payment, err := s.core.ProcessAutoPayment(r.Context(), models.PaymentID(req.PaymentID))
	s.respond(w, payment, err)
}

func (s *server) deposit(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
		Tier   string          `json:"tier"`
	}
	if !decode(w, r, &req) {
		return
	}
	err := s.pool.Deposit(r.Context(), caller(r), req.Amount, models.Tier(req.Tier))
	s.respond(w, map[string]string{"status": "deposited"}, err)
}

func (s *server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	err := s.pool.Withdraw(r.Context(), caller(r), req.Amount)
	s.respond(w, map[string]string{"status": "withdrawn"}, err)
}

func (s *server) claimYield(w http.ResponseWriter, r *http.Request) {
	claimed, err := s.pool.ClaimYield(r.Context(), caller(r))
	s.respond(w, map[string]decimal.Decimal{"claimed": claimed}, err)
}

func (s *server) poolState(w http.ResponseWriter, r *http.Request) {
	state := s.pool.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"state":           state,
		"average_apy_bps": s.pool.WeightedAverageAPYBps(),
		"available":       s.pool.Available(),
	})
}

func (s *server) sweepDefaults(w http.ResponseWriter, r *http.Request) {
	defaulted, err := s.core.CheckForDefaults(r.Context(), nil)
	s.respond(w, map[string]any{"defaulted": defaulted}, err)
}

func (s *server) creditProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.risk.Profile(caller(r)))
}

func caller(r *http.Request) models.Address {
	return models.Address(r.Header.Get("X-Account"))
}

func decode(w http.ResponseWriter, r *http.Request, into any) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *server) respond(w http.ResponseWriter, body any, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, body)
		return
	}
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, errs.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrPolicy):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrAuthorization):
		status = http.StatusForbidden
	case errors.Is(err, errs.ErrExternal):
		status = http.StatusBadGateway
	}
	writeJSON(w, status, map[string]string{
		"error": err.Error(),
		"code":  errs.CodeOf(err),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

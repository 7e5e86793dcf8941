package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/smartbank/ledger-engine/internal/auth"
	"github.com/smartbank/ledger-engine/internal/config"
	"github.com/smartbank/ledger-engine/internal/events/kafka"
	"github.com/smartbank/ledger-engine/internal/interfaces"
	"github.com/smartbank/ledger-engine/internal/ledger"
	"github.com/smartbank/ledger-engine/internal/models"
	"github.com/smartbank/ledger-engine/internal/storage/memory"
	"github.com/smartbank/ledger-engine/internal/storage/postgres"
)

func main() {
	cfg := config.Load()

	var accounts interfaces.AccountStore
	var journal interfaces.LedgerLog
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("open database: %v", err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("ping database: %v", err)
		}
		store := postgres.NewStore(db)
		if err := store.Migrate(context.Background()); err != nil {
			log.Fatalf("migrate database: %v", err)
		}
		accounts, journal = store, store
		log.Println("Using postgres store")
	} else {
		store := memory.NewStore()
		accounts, journal = store, store
		log.Println("Using in-memory store")
	}

	var publisher interfaces.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers)
		defer p.Close()
		publisher = p
		log.Printf("Publishing events to %v", cfg.KafkaBrokers)
	}

	engine := ledger.NewLedger(accounts, journal, publisher)

	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	http.HandleFunc("/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			FullName       string          `json:"full_name"`
			Email          string          `json:"email"`
			Phone          string          `json:"phone"`
			Password       string          `json:"password"`
			InitialDeposit decimal.Decimal `json:"initial_deposit"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			writeError(w, err)
			return
		}

		account, err := engine.OpenAccount(r.Context(), ledger.Profile{
			FullName:     req.FullName,
			Email:        req.Email,
			Phone:        req.Phone,
			PasswordHash: hash,
		}, req.InitialDeposit)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, account)
	})

	http.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			AccountNumber string `json:"account_number"`
			Password      string `json:"password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		account, err := engine.AccountByNumber(r.Context(), req.AccountNumber)
		if err != nil || !auth.VerifyPassword(account.PasswordHash, req.Password) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		engine.RecordSessionEvent(r.Context(), account.ID, models.KindLogin, "User logged in")
		writeJSON(w, http.StatusOK, auth.NewSession(account))
	})

	http.HandleFunc("/logout", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			AccountID string `json:"account_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		engine.RecordSessionEvent(r.Context(), req.AccountID, models.KindLogout, "User logged out")
		w.WriteHeader(http.StatusNoContent)
	})

	http.HandleFunc("/deposits", func(w http.ResponseWriter, r *http.Request) {
		handleMovement(w, r, engine.Deposit)
	})

	http.HandleFunc("/withdrawals", func(w http.ResponseWriter, r *http.Request) {
		handleMovement(w, r, engine.Withdraw)
	})

	http.HandleFunc("/transfers", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			FromAccountID   string          `json:"from_account_id"`
			ToAccountNumber string          `json:"to_account_number"`
			Amount          decimal.Decimal `json:"amount"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		balance, err := engine.Transfer(r.Context(), req.FromAccountID, req.ToAccountNumber, req.Amount)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, balanceResponse{AccountID: req.FromAccountID, Balance: balance})
	})

	http.HandleFunc("/password", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var req struct {
			AccountID       string `json:"account_id"`
			CurrentPassword string `json:"current_password"`
			NewPassword     string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		account, err := engine.Account(r.Context(), req.AccountID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !auth.VerifyPassword(account.PasswordHash, req.CurrentPassword) {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}

		hash, err := auth.HashPassword(req.NewPassword)
		if err != nil {
			writeError(w, err)
			return
		}
		if err := engine.ChangePassword(r.Context(), req.AccountID, hash); err != nil {
			writeError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	})

	http.HandleFunc("/admin/accounts", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			http.Error(w, "account_id is a mandatory field", http.StatusBadRequest)
			return
		}

		caller, err := engine.Account(r.Context(), accountID)
		if err != nil {
			writeError(w, err)
			return
		}
		if !auth.NewSession(caller).IsAdministrator() {
			http.Error(w, "administrator role required", http.StatusForbidden)
			return
		}

		accounts, err := engine.AllAccounts(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, accounts)
	})

	http.HandleFunc("/accounts/balance", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			http.Error(w, "account_id is a mandatory field", http.StatusBadRequest)
			return
		}

		account, err := engine.Account(r.Context(), accountID)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, balanceResponse{AccountID: account.ID, Balance: account.Balance})
	})

	http.HandleFunc("/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		accountID := r.URL.Query().Get("account_id")
		if accountID == "" {
			http.Error(w, "account_id is a mandatory field", http.StatusBadRequest)
			return
		}
		limit, err := parseLimit(r.URL.Query().Get("limit"))
		if err != nil {
			http.Error(w, "limit must be an integer", http.StatusBadRequest)
			return
		}

		entries, err := engine.RecentActivity(r.Context(), accountID, limit)
		if err != nil {
			writeError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, entries)
	})

	log.Println("Starting server on " + cfg.HTTPAddr)
	log.Fatal(http.ListenAndServe(cfg.HTTPAddr, nil))
}

type balanceResponse struct {
	AccountID string          `json:"account_id"`
	Balance   decimal.Decimal `json:"balance"`
}

// handleMovement serves the deposit and withdrawal endpoints, which share a
// request and response shape.
func handleMovement(w http.ResponseWriter, r *http.Request, op func(context.Context, string, decimal.Decimal) (decimal.Decimal, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AccountID string          `json:"account_id"`
		Amount    decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	balance, err := op(r.Context(), req.AccountID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, balanceResponse{AccountID: req.AccountID, Balance: balance})
}

// parseLimit reads the optional limit query parameter. An absent value
// means "use the default page size"; a malformed one is the caller's error.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	http.Error(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrAccountNotFound), errors.Is(err, models.ErrRecipientNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAccountNumberTaken):
		return http.StatusConflict
	case errors.Is(err, models.ErrStorageUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrInvalidAmount),
		errors.Is(err, models.ErrInsufficientFunds), errors.Is(err, models.ErrBelowMinimumBalance),
		errors.Is(err, models.ErrSelfTransfer):
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"crofflepos/internal/domain"
)

func (a *API) registerSalesRoutes(r chi.Router) {
	r.Post("/shifts/open", a.handleShiftOpen)
	r.Post("/shifts/close", a.handleShiftClose)
	r.Get("/shifts/active", a.handleShiftActive)

	r.Post("/checkout", a.handleCheckout)
	r.Get("/checkout/idempotency/{key}", a.handleCheckoutLookup)
	r.Post("/sync/offline-transactions", a.handleOfflineSync)

	r.Get("/transactions", a.handleTransactions)
	r.Get("/transactions/{id}", a.handleTransaction)
	r.Post("/transactions/{id}/void", a.handleVoid)
	r.Post("/refunds", a.handleRefund)

	r.Post("/hardware/receipt/escpos", a.handleHardwareReceipt)
	r.Post("/hardware/cash-drawer/open", a.handleCashDrawerOpen)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if a.loginLimiter.OnLimit(w, r, clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}
	var req domain.LoginRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, errInvalidCredentials) || errors.Is(err, errInactiveAccount) {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftOpenRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.OpenShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleShiftClose(w http.ResponseWriter, r *http.Request) {
	var req domain.ShiftCloseRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.CloseShift(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleShiftActive(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	resp, err := a.service.GetActiveShift(r.Context(), q.Get("store_id"), q.Get("terminal_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	if key := strings.TrimSpace(r.Header.Get("Idempotency-Key")); key != "" && req.IdempotencyKey == "" {
		req.IdempotencyKey = key
	}
	resp, err := a.service.Checkout(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	status := http.StatusCreated
	if resp.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, resp)
}

func (a *API) handleCheckoutLookup(w http.ResponseWriter, r *http.Request) {
	resp, err := a.service.LookupCheckoutByIdempotency(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleOfflineSync(w http.ResponseWriter, r *http.Request) {
	var req domain.OfflineSyncRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.SyncOffline(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		StoreID:         q.Get("store_id"),
		TerminalID:      q.Get("terminal_id"),
		ShiftID:         q.Get("shift_id"),
		Status:          q.Get("status"),
		DeductionStatus: q.Get("deduction_status"),
		Limit:           parsePositiveLimit(q.Get("limit"), 100, 500),
	}
	var err error
	if filter.From, err = parseTimeParam(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if filter.To, err = parseTimeParam(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	txs, err := a.service.ListTransactions(r.Context(), filter)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func (a *API) handleTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := a.service.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transaction": tx})
}

func (a *API) handleVoid(w http.ResponseWriter, r *http.Request) {
	var req domain.VoidTransactionRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	req.TransactionID = chi.URLParam(r, "id")
	if req.ManagerPIN != "" && a.pinLimiter.OnLimit(w, r, clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return
	}
	resp, err := a.service.VoidTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleRefund(w http.ResponseWriter, r *http.Request) {
	var req domain.RefundRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	if req.ManagerPIN != "" && a.pinLimiter.OnLimit(w, r, clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many PIN attempts"))
		return
	}
	resp, err := a.service.Refund(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleHardwareReceipt(w http.ResponseWriter, r *http.Request) {
	var req domain.HardwareReceiptRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.BuildHardwareReceipt(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCashDrawerOpen(w http.ResponseWriter, r *http.Request) {
	var req domain.CashDrawerOpenRequest
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	resp, err := a.service.OpenCashDrawer(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseTimeParam accepts RFC3339 timestamps or YYYY-MM-DD dates (UTC midnight).
func parseTimeParam(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, errors.New("time must be RFC3339 or YYYY-MM-DD")
	}
	return t, nil
}

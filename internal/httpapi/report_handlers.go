package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"crofflepos/internal/bir"
	"crofflepos/internal/domain"
	"crofflepos/internal/service"
)

func (a *API) registerReportRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/sales", a.handleSalesReport)
		r.Get("/inventory", a.handleInventoryReport)
		r.Get("/profit-loss", a.handleProfitLoss)
		r.Get("/x-reading", a.handleXReading)
		r.Get("/z-readings", a.handleListZReadings)
		r.Post("/z-readings", a.handleCreateZReading)
		r.Get("/z-readings/{id}", a.handleGetZReading)
	})
}

func (a *API) handleSalesReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := a.service.SalesReport(r.Context(), q.Get("store_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleInventoryReport(w http.ResponseWriter, r *http.Request) {
	report, err := a.service.InventoryReport(r.Context(), r.URL.Query().Get("store_id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleProfitLoss(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	report, err := a.service.ProfitLoss(r.Context(), q.Get("store_id"), q.Get("from"), q.Get("to"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleXReading(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	summary, err := a.service.XReading(r.Context(), service.XReadingRequest{
		StoreID:    q.Get("store_id"),
		TerminalID: q.Get("terminal_id"),
		ShiftID:    q.Get("shift_id"),
		Date:       q.Get("date"),
	})
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeReading(w, r, summary, nil)
}

func (a *API) handleCreateZReading(w http.ResponseWriter, r *http.Request) {
	var req struct {
		StoreID    string `json:"store_id"`
		TerminalID string `json:"terminal_id"`
		Date       string `json:"date"`
	}
	if !a.decodeOrFail(w, r, &req) {
		return
	}
	z, err := a.service.CreateZReading(r.Context(), req.StoreID, req.TerminalID, req.Date)
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"z_reading": z})
}

func (a *API) handleListZReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	readings, err := a.service.ListZReadings(r.Context(), q.Get("store_id"), parsePositiveLimit(q.Get("limit"), 31, 366))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"z_readings": readings})
}

func (a *API) handleGetZReading(w http.ResponseWriter, r *http.Request) {
	z, err := a.service.GetZReading(r.Context(), r.URL.Query().Get("store_id"), chi.URLParam(r, "id"))
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}
	a.writeReading(w, r, z.Summary, &z)
}

// writeReading renders a reading as JSON, CSV or PDF depending on ?format=.
func (a *API) writeReading(w http.ResponseWriter, r *http.Request, summary domain.ReadingSummary, z *domain.ZReading) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	name := fmt.Sprintf("%s-reading-%s-%s", strings.ToLower(summary.Kind), summary.StoreID, summary.To.Format("20060102"))

	var (
		buf         bytes.Buffer
		contentType string
		err         error
	)
	switch format {
	case "", "json":
		if z != nil {
			writeJSON(w, http.StatusOK, map[string]any{"z_reading": z})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reading": summary})
		return
	case "csv":
		contentType = "text/csv; charset=utf-8"
		name += ".csv"
		err = bir.WriteCSV(&buf, summary, z)
	case "pdf":
		contentType = "application/pdf"
		name += ".pdf"
		err = bir.WritePDF(&buf, summary, z)
	default:
		writeError(w, http.StatusBadRequest, fmt.Errorf("unsupported format %q", format))
		return
	}
	if err != nil {
		a.writeServiceError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"smartpharma/internal/domain"
	"smartpharma/internal/obs"
	"smartpharma/internal/service"
	"smartpharma/internal/store"
)

type API struct {
	service       *service.Service
	allowedOrigin string
}

func New(svc *service.Service, allowedOrigin string) *API {
	if allowedOrigin == "" {
		allowedOrigin = "*"
	}
	return &API{
		service:       svc,
		allowedOrigin: allowedOrigin,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)

	mux.HandleFunc("/inventory", a.handleInventory)
	mux.HandleFunc("/inventory/", a.handleInventoryActions)
	mux.HandleFunc("/billing", a.handleBilling)
	mux.HandleFunc("/sale", a.handleSale)
	mux.HandleFunc("/sales", a.handleSales)
	mux.HandleFunc("/recommendations", a.handleRecommendations)
	mux.HandleFunc("/dashboard", a.handleDashboard)
	mux.HandleFunc("/reports/daily", a.handleDailyReport)
	mux.HandleFunc("/suppliers", a.handleSuppliers)

	return obs.WithRequestID(obs.WithLogging(a.withMiddleware(mux)))
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleInventory(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		medicines, err := a.service.ListMedicines(r.Context(), r.URL.Query().Get("q"))
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, medicineListResponse(medicines))
	case http.MethodPost:
		var req domain.CreateMedicineRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		med, err := a.service.CreateMedicine(r.Context(), req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{
			"medicine": domain.MedicineViewFrom(*med, time.Now().UTC()),
		})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleInventoryActions(w http.ResponseWriter, r *http.Request) {
	prefix := "/inventory/"
	if !strings.HasPrefix(r.URL.Path, prefix) {
		writeError(w, http.StatusBadRequest, errors.New("invalid inventory path"))
		return
	}

	tail := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"))
	if tail == "" {
		writeError(w, http.StatusBadRequest, errors.New("medicine id required"))
		return
	}

	if strings.HasSuffix(tail, "/delete") {
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		id, err := parseMedicineID(strings.TrimSuffix(tail, "/delete"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		if err := a.service.DeleteMedicine(r.Context(), id); err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": true, "id": id})
		return
	}

	id, err := parseMedicineID(tail)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		med, err := a.service.GetMedicine(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"medicine": domain.MedicineViewFrom(*med, time.Now().UTC()),
		})
	case http.MethodPost:
		var req domain.UpdateMedicineRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		med, err := a.service.UpdateMedicine(r.Context(), id, req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"medicine": domain.MedicineViewFrom(*med, time.Now().UTC()),
		})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleBilling(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	medicines, err := a.service.BillingCatalog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, medicineListResponse(medicines))
}

func (a *API) handleSale(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req domain.SaleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	inv, err := a.service.ProcessSale(r.Context(), req)
	if err != nil {
		var stockErr *store.StockError
		switch {
		case errors.As(err, &stockErr):
			writeStockError(w, stockErr)
		case errors.Is(err, store.ErrInsufficientStock):
			writeError(w, http.StatusConflict, err)
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, err)
		case errors.Is(err, store.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err)
		default:
			writeError(w, http.StatusUnprocessableEntity, err)
		}
		return
	}

	resp := domain.InvoiceResponseFrom(*inv)
	if strings.EqualFold(strings.TrimSpace(r.URL.Query().Get("format")), "print") {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(invoiceToPrintableHTML(resp)))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSales(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	sales, err := a.service.ListSales(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	limit := parsePositiveLimit(r.URL.Query().Get("limit"), 0, 500)
	if limit > 0 && len(sales) > limit {
		sales = sales[:limit]
	}

	views := make([]domain.SaleView, 0, len(sales))
	for _, sale := range sales {
		views = append(views, domain.SaleViewFrom(sale))
	}
	writeJSON(w, http.StatusOK, domain.SaleListResponse{Sales: views, Count: len(views)})
}

func (a *API) handleRecommendations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.service.Recommendations(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	dash, err := a.service.Dashboard(r.Context(), time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, dash)
}

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	date, err := parseDateParam(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := a.service.DailyReport(r.Context(), date)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	switch format {
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=\"daily-report-%s.csv\"", report.Date))
		_, _ = w.Write([]byte(dailyReportToCSV(*report)))
	default:
		writeJSON(w, http.StatusOK, report)
	}
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, domain.SupplierListResponse{Suppliers: suppliers, Count: len(suppliers)})
	case http.MethodPost:
		var req domain.CreateSupplierRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		sup, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": sup})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func medicineListResponse(medicines []domain.Medicine) domain.MedicineListResponse {
	today := time.Now().UTC()
	views := make([]domain.MedicineView, 0, len(medicines))
	for _, med := range medicines {
		views = append(views, domain.MedicineViewFrom(med, today))
	}
	return domain.MedicineListResponse{Medicines: views, Count: len(views)}
}

func parseMedicineID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid medicine id")
	}
	return id, nil
}

// parseDateParam reads an optional YYYY-MM-DD query value, defaulting to
// today in UTC.
func parseDateParam(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Now().UTC(), nil
	}
	parsed, err := time.ParseInLocation(domain.DateLayout, trimmed, time.UTC)
	if err != nil {
		return time.Time{}, errors.New("date must look like 2026-12-31")
	}
	return parsed, nil
}

func dailyReportToCSV(report domain.DailyReport) string {
	lines := []string{
		"section,key,value",
		fmt.Sprintf("summary,date,%s", report.Date),
		fmt.Sprintf("summary,sale_count,%d", report.SaleCount),
		fmt.Sprintf("summary,units_sold,%d", report.UnitsSold),
		fmt.Sprintf("summary,gross_revenue,%.2f", report.GrossRevenue),
	}
	for _, entry := range report.Lines {
		lines = append(lines, fmt.Sprintf("medicine,%s,%d", csvField(entry.MedicineName+"_units"), entry.Quantity))
		lines = append(lines, fmt.Sprintf("medicine,%s,%.2f", csvField(entry.MedicineName+"_revenue"), entry.Revenue))
	}
	return strings.Join(lines, "\n") + "\n"
}

// csvField quotes a value when it would otherwise break the row. Medicine
// names are free text, unlike the fixed keys around them.
func csvField(value string) string {
	if strings.ContainsAny(value, ",\"\n") {
		return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
	}
	return value
}

// invoiceHTMLTmpl renders the printable counter invoice. html/template
// escapes the medicine names, which are user-entered.
var invoiceHTMLTmpl = template.Must(template.New("invoice").Parse(`<!doctype html>
<html>
<head>
  <meta charset="utf-8" />
  <title>Invoice {{.InvoiceNumber}}</title>
  <style>
    body { font-family: sans-serif; margin: 24px; }
    table { width: 100%; border-collapse: collapse; margin-top: 8px; }
    th, td { border: 1px solid #ddd; padding: 6px; font-size: 13px; }
    h2 { margin-bottom: 4px; }
    .total { text-align: right; font-weight: bold; }
  </style>
</head>
<body>
  <h2>SmartPharma Invoice {{.InvoiceNumber}}</h2>
  <p>Issued: {{.IssuedAt.Format "2006-01-02 15:04:05"}} UTC</p>

  <table>
    <thead><tr><th>Medicine</th><th>Qty</th><th>Amount</th></tr></thead>
    <tbody>{{range .Items}}<tr><td>{{.MedicineName}}</td><td style="text-align:right;">{{.Quantity}}</td><td style="text-align:right;">{{printf "%.2f" .TotalAmount}}</td></tr>{{end}}</tbody>
  </table>

  <p class="total">Grand Total: {{printf "%.2f" .GrandTotal}}</p>
  <p>Thank you, get well soon!</p>
</body>
</html>
`))

func invoiceToPrintableHTML(inv domain.InvoiceResponse) string {
	var buf bytes.Buffer
	if err := invoiceHTMLTmpl.Execute(&buf, inv); err != nil {
		return "<!doctype html><html><body><p>Invoice rendering error.</p></body></html>"
	}
	return buf.String()
}

func writeDomainError(w http.ResponseWriter, err error) {
	var stockErr *store.StockError
	switch {
	case errors.As(err, &stockErr):
		writeStockError(w, stockErr)
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusUnprocessableEntity, err)
	}
}

// writeStockError returns 409 with enough detail for the counter to fix
// the cart: which medicine fell short and how many units remain.
func writeStockError(w http.ResponseWriter, stockErr *store.StockError) {
	writeJSON(w, http.StatusConflict, map[string]any{
		"error":       stockErr.Error(),
		"medicine_id": stockErr.MedicineID,
		"name":        stockErr.Name,
		"requested":   stockErr.Requested,
		"available":   stockErr.Available,
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx details stay in the log; clients get a generic message so SQL
	// errors and file paths never leak out.
	msg := err.Error()
	if status >= 500 {
		obs.Logger.Error("internal error", "status", status, "err", err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

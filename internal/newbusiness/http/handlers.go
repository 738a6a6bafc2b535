// Package newbizhttp exposes the new-business dashboard endpoints.
package newbizhttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	"github.com/vantage-erp/vantage/internal/newbusiness"
	"github.com/vantage-erp/vantage/internal/newbusiness/export"
	"github.com/vantage-erp/vantage/internal/platform/httpx"
)

const requestTimeout = 10 * time.Second

// NewBusinessService defines the dashboard data contract used by the handler.
type NewBusinessService interface {
	NewCustomers(ctx context.Context, f newbusiness.Filter) ([]newbusiness.CustomerCredit, error)
	NewProducts(ctx context.Context, f newbusiness.Filter) ([]newbusiness.ProductCredit, error)
	NewCombos(ctx context.Context, f newbusiness.Filter) ([]newbusiness.ComboCredit, error)
	Revenue(ctx context.Context, f newbusiness.Filter) ([]newbusiness.RevenueSummary, error)
	RevenueDetail(ctx context.Context, f newbusiness.Filter) ([]newbusiness.RevenueLine, error)
	Summary(ctx context.Context, f newbusiness.Filter) (newbusiness.Summary, error)
}

// Handler coordinates HTTP requests for the new-business dashboard.
type Handler struct {
	logger   *slog.Logger
	service  NewBusinessService
	validate *validator.Validate
	csvPool  sync.Pool
	now      func() time.Time
}

// NewHandler constructs the new-business HTTP handler.
func NewHandler(logger *slog.Logger, service NewBusinessService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(),
		now:      time.Now,
	}
	h.csvPool.New = func() interface{} { return new(bytes.Buffer) }
	return h
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

// filterQuery is the raw query-string shape before parsing.
type filterQuery struct {
	Start         string `validate:"required,datetime=2006-01-02"`
	End           string `validate:"required,datetime=2006-01-02"`
	LookbackYears int    `validate:"min=0,max=10"`
}

// dashboardResponse bundles everything one page render needs.
type dashboardResponse struct {
	Window    newbusiness.Window           `json:"window"`
	Summary   newbusiness.Summary          `json:"summary"`
	Customers []newbusiness.CustomerCredit `json:"customers"`
	Products  []newbusiness.ProductCredit  `json:"products"`
	Combos    []newbusiness.ComboCredit    `json:"combos"`
	Revenue   []newbusiness.RevenueSummary `json:"revenue"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilters(r)
	if err != nil {
		h.respondFilterError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.loadDashboardData(ctx, filter)
	if err != nil {
		h.respondServiceError(w, "load dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	h.respondTable(w, r, func(ctx context.Context, f newbusiness.Filter) (interface{}, error) {
		return h.service.Summary(ctx, f)
	})
}

func (h *Handler) handleCustomers(w http.ResponseWriter, r *http.Request) {
	h.respondTable(w, r, func(ctx context.Context, f newbusiness.Filter) (interface{}, error) {
		return h.service.NewCustomers(ctx, f)
	})
}

func (h *Handler) handleProducts(w http.ResponseWriter, r *http.Request) {
	h.respondTable(w, r, func(ctx context.Context, f newbusiness.Filter) (interface{}, error) {
		return h.service.NewProducts(ctx, f)
	})
}

func (h *Handler) handleCombos(w http.ResponseWriter, r *http.Request) {
	h.respondTable(w, r, func(ctx context.Context, f newbusiness.Filter) (interface{}, error) {
		return h.service.NewCombos(ctx, f)
	})
}

func (h *Handler) handleRevenue(w http.ResponseWriter, r *http.Request) {
	h.respondTable(w, r, func(ctx context.Context, f newbusiness.Filter) (interface{}, error) {
		return h.service.Revenue(ctx, f)
	})
}

func (h *Handler) handleRevenueDetail(w http.ResponseWriter, r *http.Request) {
	h.respondTable(w, r, func(ctx context.Context, f newbusiness.Filter) (interface{}, error) {
		return h.service.RevenueDetail(ctx, f)
	})
}

func (h *Handler) respondTable(w http.ResponseWriter, r *http.Request, load func(context.Context, newbusiness.Filter) (interface{}, error)) {
	filter, err := h.parseFilters(r)
	if err != nil {
		h.respondFilterError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := load(ctx, filter)
	if err != nil {
		h.respondServiceError(w, "load table", err)
		return
	}
	httpx.JSON(w, http.StatusOK, data)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilters(r)
	if err != nil {
		h.respondFilterError(w, err)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	data, err := h.loadDashboardData(ctx, filter)
	if err != nil {
		h.respondServiceError(w, "load dashboard", err)
		return
	}

	buf := h.csvPool.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		buf.Reset()
		h.csvPool.Put(buf)
	}()

	if err := export.WriteSummaryCSV(buf, data.Summary, data.Window); err != nil {
		h.respondServiceError(w, "write summary csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteNewCustomersCSV(buf, data.Customers); err != nil {
		h.respondServiceError(w, "write customers csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteNewProductsCSV(buf, data.Products); err != nil {
		h.respondServiceError(w, "write products csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteNewCombosCSV(buf, data.Combos); err != nil {
		h.respondServiceError(w, "write combos csv", err)
		return
	}
	buf.WriteString("\n")
	if err := export.WriteRevenueCSV(buf, data.Revenue); err != nil {
		h.respondServiceError(w, "write revenue csv", err)
		return
	}

	filename := fmt.Sprintf("new-business-%s.csv", filter.Window.End.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("stream csv", slog.Any("error", err))
	}
}

func (h *Handler) loadDashboardData(ctx context.Context, filter newbusiness.Filter) (dashboardResponse, error) {
	data := dashboardResponse{Window: filter.Window}
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, err := h.service.Summary(ctx, filter)
		if err != nil {
			return err
		}
		data.Summary = summary
		return nil
	})
	g.Go(func() error {
		rows, err := h.service.NewCustomers(ctx, filter)
		if err != nil {
			return err
		}
		data.Customers = rows
		return nil
	})
	g.Go(func() error {
		rows, err := h.service.NewProducts(ctx, filter)
		if err != nil {
			return err
		}
		data.Products = rows
		return nil
	})
	g.Go(func() error {
		rows, err := h.service.NewCombos(ctx, filter)
		if err != nil {
			return err
		}
		data.Combos = rows
		return nil
	})
	g.Go(func() error {
		rows, err := h.service.Revenue(ctx, filter)
		if err != nil {
			return err
		}
		data.Revenue = rows
		return nil
	})

	if err := g.Wait(); err != nil {
		return dashboardResponse{}, err
	}
	return data, nil
}

func (h *Handler) parseFilters(r *http.Request) (newbusiness.Filter, error) {
	q := r.URL.Query()
	now := h.now().UTC()

	raw := filterQuery{
		Start: strings.TrimSpace(q.Get("start")),
		End:   strings.TrimSpace(q.Get("end")),
	}
	if raw.Start == "" {
		raw.Start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
	}
	if raw.End == "" {
		raw.End = now.Format("2006-01-02")
	}
	if lookback := strings.TrimSpace(q.Get("lookback_years")); lookback != "" {
		value, err := strconv.Atoi(lookback)
		if err != nil {
			return newbusiness.Filter{}, fmt.Errorf("lookback_years invalid: %w", err)
		}
		raw.LookbackYears = value
	}
	if err := h.validate.Struct(raw); err != nil {
		return newbusiness.Filter{}, err
	}

	start, err := time.Parse("2006-01-02", raw.Start)
	if err != nil {
		return newbusiness.Filter{}, err
	}
	end, err := time.Parse("2006-01-02", raw.End)
	if err != nil {
		return newbusiness.Filter{}, err
	}
	if start.After(end) {
		return newbusiness.Filter{}, newbusiness.ErrInvalidWindow
	}

	filter := newbusiness.Filter{
		Window:        newbusiness.Window{Start: start, End: end},
		LookbackYears: raw.LookbackYears,
	}
	if raw := strings.TrimSpace(q.Get("exclude_internal")); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return newbusiness.Filter{}, fmt.Errorf("exclude_internal invalid: %w", err)
		}
		filter.ExcludeInternal = &value
	}
	if reps := strings.TrimSpace(q.Get("salesperson_ids")); reps != "" {
		for _, token := range strings.Split(reps, ",") {
			token = strings.TrimSpace(token)
			if token == "" {
				continue
			}
			id, err := strconv.ParseInt(token, 10, 64)
			if err != nil {
				return newbusiness.Filter{}, fmt.Errorf("salesperson_ids invalid: %w", err)
			}
			filter.SalespersonIDs = append(filter.SalespersonIDs, id)
		}
	}
	return filter, nil
}

func (h *Handler) respondFilterError(w http.ResponseWriter, err error) {
	httpx.Problem(w, http.StatusBadRequest, "Invalid Filters", err.Error())
}

func (h *Handler) respondServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, newbusiness.ErrInvalidWindow):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Window", err.Error())
	case errors.Is(err, newbusiness.ErrDataContract):
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Data Contract Violation", "warehouse view does not match the expected schema")
	case errors.Is(err, context.DeadlineExceeded):
		h.logger.Warn(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusGatewayTimeout, "Timeout", "query did not complete in time")
	default:
		h.logger.Error(op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

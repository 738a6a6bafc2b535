package newbusiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrInvalidWindow rejects reporting windows whose start falls after the end.
var ErrInvalidWindow = errors.New("newbusiness: window start after end")

const (
	// DefaultLookbackYears is the history depth indexed when the caller does
	// not specify one.
	DefaultLookbackYears = 5

	defaultSessionTTL = 15 * time.Minute
	dateLayout        = "2006-01-02"
)

// TransactionSource supplies the lookback transaction log. Implemented by
// Repository; stubbed in tests.
type TransactionSource interface {
	LoadTransactions(ctx context.Context, params LoadParams) ([]Transaction, error)
}

// Filter scopes one new-business query.
type Filter struct {
	Window         Window
	SalespersonIDs []int64
	// LookbackYears selects the indexed history depth; zero means the
	// service default.
	LookbackYears int
	// ExcludeInternal overrides the service default when non-nil.
	ExcludeInternal *bool
}

func (f Filter) excludeInternal() bool {
	if f.ExcludeInternal == nil {
		return true
	}
	return *f.ExcludeInternal
}

// Defaults carries service-level fallbacks for optional filter fields.
type Defaults struct {
	LookbackYears   int
	ExcludeInternal bool
	SessionTTL      time.Duration
}

// Service coordinates calculator sessions with the cache layer. A session is
// one loaded transaction log plus its first-occurrence indexes, keyed by
// (as-of date, lookback, internal-exclusion); it is built once, held for the
// session TTL and shared read-only by every query and dashboard render in
// that span.
type Service struct {
	source   TransactionSource
	cache    *Cache
	logger   *slog.Logger
	defaults Defaults
	now      func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*session
	group    singleflight.Group
}

type sessionKey struct {
	asOf            string
	lookbackYears   int
	excludeInternal bool
}

func (k sessionKey) String() string {
	return fmt.Sprintf("%s:%d:%t", k.asOf, k.lookbackYears, k.excludeInternal)
}

type session struct {
	calc    *Calculator
	builtAt time.Time
}

// NewService wires a TransactionSource with a Cache helper.
func NewService(source TransactionSource, cache *Cache, logger *slog.Logger, defaults Defaults) *Service {
	if defaults.LookbackYears <= 0 {
		defaults.LookbackYears = DefaultLookbackYears
	}
	if defaults.SessionTTL <= 0 {
		defaults.SessionTTL = defaultSessionTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:   source,
		cache:    cache,
		logger:   logger,
		defaults: defaults,
		now:      time.Now,
		sessions: make(map[sessionKey]*session),
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// NewCustomers resolves the new-customer table for the window.
func (s *Service) NewCustomers(ctx context.Context, f Filter) ([]CustomerCredit, error) {
	f, err := s.normalize(f)
	if err != nil {
		return nil, err
	}
	var rows []CustomerCredit
	if err := s.fetch(ctx, "customers", f, &rows, func(calc *Calculator) interface{} {
		return calc.NewCustomers(f.Window, f.SalespersonIDs)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// NewProducts resolves the new-product table for the window.
func (s *Service) NewProducts(ctx context.Context, f Filter) ([]ProductCredit, error) {
	f, err := s.normalize(f)
	if err != nil {
		return nil, err
	}
	var rows []ProductCredit
	if err := s.fetch(ctx, "products", f, &rows, func(calc *Calculator) interface{} {
		return calc.NewProducts(f.Window, f.SalespersonIDs)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// NewCombos resolves the first-day detail of newly won customer-product
// pairs.
func (s *Service) NewCombos(ctx context.Context, f Filter) ([]ComboCredit, error) {
	f, err := s.normalize(f)
	if err != nil {
		return nil, err
	}
	var rows []ComboCredit
	if err := s.fetch(ctx, "combos", f, &rows, func(calc *Calculator) interface{} {
		return calc.NewCombos(f.Window, f.SalespersonIDs)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// Revenue resolves the per-salesperson new-business revenue aggregate.
func (s *Service) Revenue(ctx context.Context, f Filter) ([]RevenueSummary, error) {
	f, err := s.normalize(f)
	if err != nil {
		return nil, err
	}
	var rows []RevenueSummary
	if err := s.fetch(ctx, "revenue", f, &rows, func(calc *Calculator) interface{} {
		return calc.RevenueBySalesperson(f.Window, f.SalespersonIDs)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// RevenueDetail resolves the per-combo line items behind Revenue.
func (s *Service) RevenueDetail(ctx context.Context, f Filter) ([]RevenueLine, error) {
	f, err := s.normalize(f)
	if err != nil {
		return nil, err
	}
	var rows []RevenueLine
	if err := s.fetch(ctx, "revenue_detail", f, &rows, func(calc *Calculator) interface{} {
		return calc.RevenueDetail(f.Window, f.SalespersonIDs)
	}); err != nil {
		return nil, err
	}
	return rows, nil
}

// Summary resolves the metric-card reduction for the window.
func (s *Service) Summary(ctx context.Context, f Filter) (Summary, error) {
	f, err := s.normalize(f)
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	if err := s.fetch(ctx, "summary", f, &summary, func(calc *Calculator) interface{} {
		return calc.Summarize(f.Window, f.SalespersonIDs)
	}); err != nil {
		return Summary{}, err
	}
	return summary, nil
}

// Invalidate bumps the shared cache version and drops in-process sessions.
func (s *Service) Invalidate(ctx context.Context) error {
	s.mu.Lock()
	s.sessions = make(map[sessionKey]*session)
	s.mu.Unlock()
	return s.cache.Bump(ctx)
}

func (s *Service) normalize(f Filter) (Filter, error) {
	if f.Window.Start.After(f.Window.End) {
		return Filter{}, ErrInvalidWindow
	}
	if f.LookbackYears <= 0 {
		f.LookbackYears = s.defaults.LookbackYears
	}
	if f.ExcludeInternal == nil {
		excl := s.defaults.ExcludeInternal
		f.ExcludeInternal = &excl
	}
	f.Window.Start = normalizeDate(f.Window.Start)
	f.Window.End = normalizeDate(f.Window.End)
	f.SalespersonIDs = sortedIDs(f.SalespersonIDs)
	return f, nil
}

// fetch runs a query through the cache-aside path. The calculator session is
// only built when the cache misses, so warm dashboards never touch the
// warehouse.
func (s *Service) fetch(ctx context.Context, kind string, f Filter, dest interface{}, compute func(*Calculator) interface{}) error {
	loader := func(ctx context.Context) (interface{}, error) {
		calc, err := s.calculator(ctx, f)
		if err != nil {
			return nil, err
		}
		return compute(calc), nil
	}
	key, err := s.cache.BuildKey(ctx, cacheKey(kind, f))
	if err != nil {
		return err
	}
	return s.cache.FetchJSON(ctx, key, dest, loader)
}

// calculator returns the session calculator for the filter scope, building
// it at most once across concurrent callers.
func (s *Service) calculator(ctx context.Context, f Filter) (*Calculator, error) {
	key := sessionKey{
		asOf:            f.Window.End.Format(dateLayout),
		lookbackYears:   f.LookbackYears,
		excludeInternal: f.excludeInternal(),
	}
	s.mu.Lock()
	if sess, ok := s.sessions[key]; ok && s.now().Sub(sess.builtAt) < s.defaults.SessionTTL {
		s.mu.Unlock()
		return sess.calc, nil
	}
	s.mu.Unlock()

	resultChan := s.group.DoChan(key.String(), func() (interface{}, error) {
		return s.buildSession(ctx, key, f)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-resultChan:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Calculator), nil
	}
}

func (s *Service) buildSession(ctx context.Context, key sessionKey, f Filter) (*Calculator, error) {
	start := s.now()
	raw, err := s.source.LoadTransactions(ctx, LoadParams{
		AsOf:          f.Window.End,
		LookbackYears: f.LookbackYears,
	})
	if err != nil {
		return nil, err
	}
	calc := NewCalculator(raw, Options{
		ExcludeInternal: f.excludeInternal(),
		LookbackYears:   f.LookbackYears,
	})
	if calc.DroppedRows() > 0 {
		s.logger.Warn("dropped transactions with unusable invoice dates",
			slog.Int("dropped", calc.DroppedRows()),
			slog.String("as_of", key.asOf))
	}
	s.logger.Info("built new-business session",
		slog.String("as_of", key.asOf),
		slog.Int("lookback_years", key.lookbackYears),
		slog.Bool("exclude_internal", key.excludeInternal),
		slog.Int("rows", calc.Rows()),
		slog.Duration("took", s.now().Sub(start)))

	s.mu.Lock()
	s.sessions[key] = &session{calc: calc, builtAt: s.now()}
	s.mu.Unlock()
	return calc, nil
}

// sortedIDs copies and sorts the filter set so equivalent filters share a
// cache key.
func sortedIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	out := make([]int64, len(ids))
	copy(out, ids)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

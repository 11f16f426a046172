// Package budget implements pre-call budget checks and usage analytics
// (C10): per-request, per-session, and per-day dimensions, with daily
// rollover driven by an injected clock rather than time.Now, grounded in
// the Design Notes' "no hidden singletons" rule and the breaker/retry
// packages' Clock-injection pattern.
package budget

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/shopspring/decimal"

	"github.com/flowcore/flowcore/internal/clock"
	"github.com/flowcore/flowcore/internal/errs"
)

// Limits configures the budget dimensions a Manager enforces. A zero
// field means that dimension is unbounded.
type Limits struct {
	PerRequestTokens int
	PerRequestCost   decimal.Decimal
	PerSessionTokens int
	PerSessionCost   decimal.Decimal
	PerDayTokens     int
	PerDayCost       decimal.Decimal
}

// sessionUsage tracks rolling totals since a session's first call.
type sessionUsage struct {
	tokens int
	cost   decimal.Decimal
}

// dailyUsage tracks totals for one wall-clock day.
type dailyUsage struct {
	day    string
	tokens int
	cost   decimal.Decimal
}

// Manager enforces Limits and maintains per-(provider, model) call
// counters for analytics.
type Manager struct {
	limits   Limits
	clock    clock.Clock
	location *time.Location

	mu       sync.Mutex
	sessions map[string]*sessionUsage
	daily    *dailyUsage

	rollups *xsync.MapOf[string, *Rollup]
}

// Rollup is an analytics snapshot for one (provider, model) pair,
// accumulated with atomic adds so concurrent post-call paths never block
// each other, per spec.md §5's "counters use per-key locks or atomic
// adds".
type Rollup struct {
	Calls        int64
	InputTokens  int64
	OutputTokens int64
	CostMicros   int64 // cost scaled by 1e6, since sync/atomic adds are integer-only
}

// NewManager constructs a Manager. location defaults to UTC.
func NewManager(limits Limits, c clock.Clock, location *time.Location) *Manager {
	if c == nil {
		c = clock.System{}
	}
	if location == nil {
		location = time.UTC
	}
	return &Manager{
		limits:   limits,
		clock:    c,
		location: location,
		sessions: map[string]*sessionUsage{},
		rollups:  xsync.NewMapOf[string, *Rollup](),
	}
}

// Check implements §4.10's check(provider, model, est_in, est_out) -> Ok |
// TokenBudgetExceeded. sessionID may be empty to skip the session
// dimension.
func (m *Manager) Check(sessionID string, estInTok, estOutTok int, estCost decimal.Decimal) error {
	estTokens := estInTok + estOutTok

	if limit := m.limits.PerRequestTokens; limit > 0 && estTokens > limit {
		return errs.TokenBudgetExceeded("per_request_tokens", float64(limit), float64(estTokens))
	}
	if limit := m.limits.PerRequestCost; !limit.IsZero() && estCost.GreaterThan(limit) {
		return errs.TokenBudgetExceeded("per_request_cost", toFloat(limit), toFloat(estCost))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if sessionID != "" {
		s := m.sessionLocked(sessionID)
		if limit := m.limits.PerSessionTokens; limit > 0 && s.tokens+estTokens > limit {
			return errs.TokenBudgetExceeded("per_session_tokens", float64(limit), float64(s.tokens+estTokens))
		}
		if limit := m.limits.PerSessionCost; !limit.IsZero() && s.cost.Add(estCost).GreaterThan(limit) {
			return errs.TokenBudgetExceeded("per_session_cost", toFloat(limit), toFloat(s.cost.Add(estCost)))
		}
	}

	d := m.dailyLocked()
	if limit := m.limits.PerDayTokens; limit > 0 && d.tokens+estTokens > limit {
		return errs.TokenBudgetExceeded("per_day_tokens", float64(limit), float64(d.tokens+estTokens))
	}
	if limit := m.limits.PerDayCost; !limit.IsZero() && d.cost.Add(estCost).GreaterThan(limit) {
		return errs.TokenBudgetExceeded("per_day_cost", toFloat(limit), toFloat(d.cost.Add(estCost)))
	}
	return nil
}

// Record adds actual usage to the session and daily windows and to the
// (provider, model) analytics rollup. Call after a successful invocation.
func (m *Manager) Record(sessionID, provider, model string, inTok, outTok int, cost decimal.Decimal) {
	tokens := inTok + outTok

	m.mu.Lock()
	if sessionID != "" {
		s := m.sessionLocked(sessionID)
		s.tokens += tokens
		s.cost = s.cost.Add(cost)
	}
	d := m.dailyLocked()
	d.tokens += tokens
	d.cost = d.cost.Add(cost)
	m.mu.Unlock()

	key := strings.ToLower(provider) + "/" + strings.ToLower(model)
	r, _ := m.rollups.LoadOrCompute(key, func() *Rollup { return &Rollup{} })
	atomicAddRollup(r, int64(inTok), int64(outTok), cost)
}

// Rollup returns a point-in-time snapshot for (provider, model).
func (m *Manager) Rollup(provider, model string) Rollup {
	key := strings.ToLower(provider) + "/" + strings.ToLower(model)
	if r, ok := m.rollups.Load(key); ok {
		return Rollup{
			Calls:        atomic.LoadInt64(&r.Calls),
			InputTokens:  atomic.LoadInt64(&r.InputTokens),
			OutputTokens: atomic.LoadInt64(&r.OutputTokens),
			CostMicros:   atomic.LoadInt64(&r.CostMicros),
		}
	}
	return Rollup{}
}

// ResetSession clears one session's rolling totals.
func (m *Manager) ResetSession(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

// ResetDay forces the daily window to roll over on the next check, for
// tests that want to force a reset without advancing the clock across
// midnight.
func (m *Manager) ResetDay() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.daily = nil
}

func (m *Manager) sessionLocked(sessionID string) *sessionUsage {
	s, ok := m.sessions[sessionID]
	if !ok {
		s = &sessionUsage{cost: decimal.Zero}
		m.sessions[sessionID] = s
	}
	return s
}

// dailyLocked returns the usage bucket for today in m.location, rolling
// over to a fresh zero bucket when the wall-clock day has changed.
func (m *Manager) dailyLocked() *dailyUsage {
	today := m.clock.Now().In(m.location).Format("2006-01-02")
	if m.daily == nil || m.daily.day != today {
		m.daily = &dailyUsage{day: today, cost: decimal.Zero}
	}
	return m.daily
}

func toFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

// atomicAddRollup updates r's counters with atomic adds so concurrent
// Record calls for the same (provider, model) never need a mutex. Cost is
// tracked in micros (cost * 1e6, rounded) to keep the field integer-atomic.
func atomicAddRollup(r *Rollup, inTok, outTok int64, cost decimal.Decimal) {
	atomic.AddInt64(&r.Calls, 1)
	atomic.AddInt64(&r.InputTokens, inTok)
	atomic.AddInt64(&r.OutputTokens, outTok)
	micros := cost.Mul(decimal.NewFromInt(1_000_000)).Round(0).IntPart()
	atomic.AddInt64(&r.CostMicros, micros)
}

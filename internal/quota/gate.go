// Package quota tracks the local approximation of YouTube Data API
// daily quota usage. The gate is advisory: it never calls the API and
// never learns the true server-side counter, so callers must record
// every capacity-consuming call they make, including failed ones the
// platform still billed.
package quota

import (
	"fmt"
	"time"
)

// YouTube Data API v3 unit costs.
const (
	CostVideoInsert = 1600
	CostVideoList   = 1
	CostVideoUpdate = 50
	CostChannelList = 1
)

// DefaultDailyLimit is the default per-project daily quota.
const DefaultDailyLimit = 10000

// The platform resets quota at midnight Pacific time. A fixed offset is
// used instead of the IANA zone so the binary needs no tzdata; being an
// hour off around DST transitions only shifts the reset moment, never
// the monotonicity of the counter.
var resetZone = time.FixedZone("PT", -8*60*60)

const civilDateLayout = "2006-01-02"

// State is the persisted ledger record.
type State struct {
	UsedUnits int    `json:"used_units"`
	ResetDate string `json:"reset_date"`
}

// Ledger persists the consumption counter. A zero State means nothing
// has been consumed yet.
type Ledger interface {
	Load() (State, error)
	Save(State) error
}

// Gate answers admission checks against the remaining daily capacity.
type Gate struct {
	dailyLimit int
	ledger     Ledger
	now        func() time.Time
}

type Option func(*Gate)

// WithDailyLimit overrides the default daily capacity.
func WithDailyLimit(limit int) Option {
	return func(g *Gate) {
		g.dailyLimit = limit
	}
}

// WithClock overrides the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

func NewGate(ledger Ledger, opts ...Option) *Gate {
	g := &Gate{
		dailyLimit: DefaultDailyLimit,
		ledger:     ledger,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gate) DailyLimit() int {
	return g.dailyLimit
}

// current loads the ledger and rolls the counter over to zero when the
// stored date is strictly before today in the reset zone. The rollover
// is persisted immediately so a later Record starts from zero.
func (g *Gate) current() (State, error) {
	st, err := g.ledger.Load()
	if err != nil {
		return State{}, fmt.Errorf("load quota ledger: %w", err)
	}

	today := g.now().In(resetZone).Format(civilDateLayout)
	if st.ResetDate == today {
		return st, nil
	}

	st = State{UsedUnits: 0, ResetDate: today}
	if err := g.ledger.Save(st); err != nil {
		return State{}, fmt.Errorf("save quota ledger: %w", err)
	}
	return st, nil
}

// Remaining returns the capacity units still available today.
func (g *Gate) Remaining() (int, error) {
	st, err := g.current()
	if err != nil {
		return 0, err
	}
	remaining := g.dailyLimit - st.UsedUnits
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

// RemainingUploads is the number of video.insert calls that still fit.
func (g *Gate) RemainingUploads() (int, error) {
	remaining, err := g.Remaining()
	if err != nil {
		return 0, err
	}
	return remaining / CostVideoInsert, nil
}

// CanAdmit reports whether an operation of the given cost fits in the
// remaining capacity. It never blocks or waits.
func (g *Gate) CanAdmit(cost int) (bool, error) {
	remaining, err := g.Remaining()
	if err != nil {
		return false, err
	}
	return cost <= remaining, nil
}

// Record adds cost to the counter and persists immediately.
func (g *Gate) Record(cost int) error {
	st, err := g.current()
	if err != nil {
		return err
	}
	st.UsedUnits += cost
	if err := g.ledger.Save(st); err != nil {
		return fmt.Errorf("save quota ledger: %w", err)
	}
	return nil
}

// Reset zeroes the counter for the current period.
func (g *Gate) Reset() error {
	st := State{
		UsedUnits: 0,
		ResetDate: g.now().In(resetZone).Format(civilDateLayout),
	}
	if err := g.ledger.Save(st); err != nil {
		return fmt.Errorf("save quota ledger: %w", err)
	}
	return nil
}

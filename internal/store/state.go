package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"spot-trading-bot/internal/types"
)

const (
	stateFile     = "trading_state.json"
	positionsFile = "positions.json"
	dateLayout    = "2006-01-02"
)

// Store is the durable record of daily counters, trade history, and open
// position state. Every mutation is read-modify-persist, rewriting the full
// document. Owned explicitly and passed by reference so tests can inject
// isolated instances.
type Store struct {
	mu           sync.Mutex
	dir          string
	historyLimit int
	now          func() time.Time

	state     *types.TradingState
	positions []*types.Position
}

// Open loads the state documents from dir, or starts from defaults when they
// do not exist yet.
func Open(dir string, historyLimit int) (*Store, error) {
	if historyLimit <= 0 {
		historyLimit = 200
	}
	s := &Store{
		dir:          dir,
		historyLimit: historyLimit,
		now:          time.Now,
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load() error {
	st, err := readJSON[types.TradingState](filepath.Join(s.dir, stateFile))
	switch {
	case err == nil:
		s.state = st
	case errors.Is(err, os.ErrNotExist):
		s.state = &types.TradingState{
			Date:     s.now().Format(dateLayout),
			Exposure: map[string]float64{},
		}
	default:
		return fmt.Errorf("load trading state: %w", err)
	}
	if s.state.Exposure == nil {
		s.state.Exposure = map[string]float64{}
	}

	ps, err := readJSON[[]*types.Position](filepath.Join(s.dir, positionsFile))
	switch {
	case err == nil:
		s.positions = *ps
	case errors.Is(err, os.ErrNotExist):
		s.positions = nil
	default:
		return fmt.Errorf("load positions: %w", err)
	}
	return nil
}

func readJSON[T any](path string) (*T, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return &v, nil
}

func writeJSON(path string, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

// rolloverLocked resets the daily counters when the stored date is not the
// current day. Called on every access so idle gaps and restarts are handled
// without a background timer.
func (s *Store) rolloverLocked() {
	today := s.now().Format(dateLayout)
	if s.state.Date == today {
		return
	}
	s.state.Date = today
	s.state.TradesToday = 0
	s.state.DailyPnL = 0
}

func (s *Store) persistStateLocked() error {
	return writeJSON(filepath.Join(s.dir, stateFile), s.state)
}

func (s *Store) persistPositionsLocked() error {
	return writeJSON(filepath.Join(s.dir, positionsFile), s.positions)
}

// Snapshot returns a copy of the trading state with daily rollover applied.
func (s *Store) Snapshot() types.TradingState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()

	cp := *s.state
	cp.Exposure = make(map[string]float64, len(s.state.Exposure))
	for k, v := range s.state.Exposure {
		cp.Exposure[k] = v
	}
	cp.History = append([]types.TradeRecord(nil), s.state.History...)
	return cp
}

// RecordTrade appends one attempt to the bounded trade history. The daily
// counter increments only for counted attempts (successful real placements).
func (s *Store) RecordTrade(rec types.TradeRecord, counted bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()

	s.state.History = append(s.state.History, rec)
	if overflow := len(s.state.History) - s.historyLimit; overflow > 0 {
		s.state.History = s.state.History[overflow:]
	}
	if counted {
		s.state.TradesToday++
		s.state.LastTradeAt = rec.Time
	}
	return s.persistStateLocked()
}

// RecordRealizedPnL adds a realized profit or loss to the daily total. A loss
// stamps LastLossAt, which starts the post-loss cooldown.
func (s *Store) RecordRealizedPnL(symbol string, pnl float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()

	s.state.DailyPnL += pnl
	if pnl < 0 {
		s.state.LastLossAt = at
	}
	return s.persistStateLocked()
}

// AddExposure adjusts the per-symbol net notional. Exposure never goes
// negative; a sell larger than the tracked entry clamps to zero.
func (s *Store) AddExposure(symbol string, delta float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rolloverLocked()

	v := s.state.Exposure[symbol] + delta
	if v <= 0 {
		delete(s.state.Exposure, symbol)
	} else {
		s.state.Exposure[symbol] = v
	}
	return s.persistStateLocked()
}

// AddPosition registers a newly created position and persists the book.
func (s *Store) AddPosition(p *types.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions = append(s.positions, p)
	return s.persistPositionsLocked()
}

// OpenPositions returns the positions still being monitored.
func (s *Store) OpenPositions() []*types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	var open []*types.Position
	for _, p := range s.positions {
		if p.Status == types.PositionOpen {
			open = append(open, p)
		}
	}
	return open
}

// Positions returns the full position book, closed ones included.
func (s *Store) Positions() []*types.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Position(nil), s.positions...)
}

// SavePositions rewrites the position document after in-place mutation.
func (s *Store) SavePositions() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistPositionsLocked()
}

// Save rewrites both state documents.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistStateLocked(); err != nil {
		return err
	}
	return s.persistPositionsLocked()
}

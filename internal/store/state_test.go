package store

import (
	"testing"
	"time"

	"spot-trading-bot/internal/types"
)

func TestStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 50)
	if err != nil {
		t.Fatal(err)
	}

	at := time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)
	rec := types.TradeRecord{
		Time:     at,
		Venue:    "paper",
		Symbol:   "SOL/USDT",
		Side:     types.SideBuy,
		Type:     types.OrderMarket,
		Quantity: 0.5,
		Price:    85,
		Notional: 42.5,
		OrderID:  "PAPER-000001",
	}
	if err := s.RecordTrade(rec, true); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRealizedPnL("SOL/USDT", -3, at); err != nil {
		t.Fatal(err)
	}
	if err := s.AddExposure("SOL/USDT", 42.5); err != nil {
		t.Fatal(err)
	}
	pos := &types.Position{
		ID:           types.NewPositionID("SOL/USDT", at),
		Symbol:       "SOL/USDT",
		CreatedAt:    at,
		EntryPrice:   85,
		EntryQty:     0.5,
		RemainingQty: 0.5,
		Status:       types.PositionOpen,
		StopArmed:    true,
		StopLossPct:  6,
	}
	if err := s.AddPosition(pos); err != nil {
		t.Fatal(err)
	}

	// A second Open against the same directory sees identical state.
	r, err := Open(dir, 50)
	if err != nil {
		t.Fatal(err)
	}
	snap := r.Snapshot()
	if snap.TradesToday != 1 {
		t.Errorf("TradesToday = %d, want 1", snap.TradesToday)
	}
	if snap.DailyPnL != -3 {
		t.Errorf("DailyPnL = %v, want -3", snap.DailyPnL)
	}
	if !snap.LastLossAt.Equal(at) {
		t.Errorf("LastLossAt = %v, want %v", snap.LastLossAt, at)
	}
	if !snap.LastTradeAt.Equal(at) {
		t.Errorf("LastTradeAt = %v, want %v", snap.LastTradeAt, at)
	}
	if got := snap.Exposure["SOL/USDT"]; got != 42.5 {
		t.Errorf("Exposure = %v, want 42.5", got)
	}
	if len(snap.History) != 1 {
		t.Fatalf("history length %d, want 1", len(snap.History))
	}
	h := snap.History[0]
	if h.Symbol != rec.Symbol || h.OrderID != rec.OrderID || h.Notional != rec.Notional || !h.Time.Equal(rec.Time) {
		t.Errorf("history entry mismatch: got %+v, want %+v", h, rec)
	}

	open := r.OpenPositions()
	if len(open) != 1 {
		t.Fatalf("open positions %d, want 1", len(open))
	}
	got := open[0]
	if got.ID != pos.ID || got.EntryPrice != 85 || got.RemainingQty != 0.5 || !got.StopArmed {
		t.Errorf("reloaded position mismatch: %+v", got)
	}
}

func TestDailyRollover(t *testing.T) {
	s, err := Open(t.TempDir(), 50)
	if err != nil {
		t.Fatal(err)
	}

	day1 := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return day1 }

	if err := s.RecordTrade(types.TradeRecord{Time: day1, Symbol: "SOL/USDT"}, true); err != nil {
		t.Fatal(err)
	}
	if err := s.RecordRealizedPnL("SOL/USDT", 5, day1); err != nil {
		t.Fatal(err)
	}
	if err := s.AddExposure("SOL/USDT", 42.5); err != nil {
		t.Fatal(err)
	}

	snap := s.Snapshot()
	if snap.TradesToday != 1 || snap.DailyPnL != 5 {
		t.Fatalf("pre-rollover counters wrong: %+v", snap)
	}

	// Counters reset lazily on the first access of the new day. History
	// and exposure carry over.
	s.now = func() time.Time { return day1.Add(2 * time.Hour) }
	snap = s.Snapshot()
	if snap.Date != "2026-03-15" {
		t.Errorf("Date = %s, want 2026-03-15", snap.Date)
	}
	if snap.TradesToday != 0 {
		t.Errorf("TradesToday = %d after rollover, want 0", snap.TradesToday)
	}
	if snap.DailyPnL != 0 {
		t.Errorf("DailyPnL = %v after rollover, want 0", snap.DailyPnL)
	}
	if len(snap.History) != 1 {
		t.Errorf("history lost on rollover: %d entries", len(snap.History))
	}
	if got := snap.Exposure["SOL/USDT"]; got != 42.5 {
		t.Errorf("exposure lost on rollover: %v", got)
	}
}

func TestHistoryBound(t *testing.T) {
	s, err := Open(t.TempDir(), 5)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 8; i++ {
		rec := types.TradeRecord{
			Time:    time.Date(2026, 3, 14, 10, i, 0, 0, time.UTC),
			Symbol:  "SOL/USDT",
			OrderID: types.NewPositionID("H", time.Date(2026, 3, 14, 10, i, 0, 0, time.UTC)),
		}
		if err := s.RecordTrade(rec, false); err != nil {
			t.Fatal(err)
		}
	}

	snap := s.Snapshot()
	if len(snap.History) != 5 {
		t.Fatalf("history length %d, want 5", len(snap.History))
	}
	// Oldest entries are dropped first.
	if got := snap.History[0].Time.Minute(); got != 3 {
		t.Errorf("oldest retained entry at minute %d, want 3", got)
	}
	if snap.TradesToday != 0 {
		t.Errorf("uncounted records moved the daily counter to %d", snap.TradesToday)
	}
}

func TestExposureClampsAtZero(t *testing.T) {
	s, err := Open(t.TempDir(), 50)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.AddExposure("SOL/USDT", 42.5); err != nil {
		t.Fatal(err)
	}
	if err := s.AddExposure("SOL/USDT", -100); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if _, ok := snap.Exposure["SOL/USDT"]; ok {
		t.Fatalf("oversold exposure not clamped: %+v", snap.Exposure)
	}
}

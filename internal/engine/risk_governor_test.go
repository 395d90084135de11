package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/types"
)

func testPolicy() store.RiskPolicy {
	return store.RiskPolicy{
		MaxTradesPerDay:      5,
		CooldownMinutes:      60,
		ConfirmAboveNotional: 200,
	}
}

func newTestGovernor(t *testing.T, fv *fakeVenue, pol store.RiskPolicy) (*riskGovernor, *store.Store) {
	t.Helper()
	st, err := store.Open(t.TempDir(), 50)
	if err != nil {
		t.Fatal(err)
	}
	g := newRiskGovernor(fv, st, store.NewPolicyHandle(pol), "USDT")
	return g, st
}

func buyPlan(notional float64) types.TradePlan {
	return types.TradePlan{
		Venue:  "paper",
		Market: "spot",
		Symbol: "SOL/USDT",
		Side:   types.SideBuy,
		Type:   types.OrderMarket,
		Amount: types.Notional(notional),
	}
}

func countTrades(t *testing.T, st *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		if err := st.RecordTrade(types.TradeRecord{Time: time.Now(), Symbol: "SOL/USDT", Side: types.SideBuy}, true); err != nil {
			t.Fatal(err)
		}
	}
}

func TestEvaluateDailyLimit(t *testing.T) {
	fv := newFakeVenue()
	fv.prices["SOL/USDT"] = 85
	g, st := newTestGovernor(t, fv, testPolicy())
	countTrades(t, st, 5)

	d := g.Evaluate(context.Background(), buyPlan(50))
	if d.Verdict != types.VerdictBlocked {
		t.Fatalf("expected BLOCKED, got %s", d.Verdict)
	}
	if d.Check != checkDailyLimit {
		t.Errorf("expected check %q, got %q", checkDailyLimit, d.Check)
	}
	if !strings.Contains(d.Reason, "5/5") {
		t.Errorf("expected reason to cite 5/5, got %q", d.Reason)
	}
}

func TestEvaluateDailyLimitDominates(t *testing.T) {
	// Once the daily count is exceeded the plan is blocked regardless of
	// balance or exposure.
	fv := newFakeVenue()
	fv.balanceErr = errors.New("venue down")
	fv.tickerErr = errors.New("venue down")
	g, st := newTestGovernor(t, fv, testPolicy())
	countTrades(t, st, 5)

	d := g.Evaluate(context.Background(), buyPlan(1e9))
	if d.Verdict != types.VerdictBlocked || d.Check != checkDailyLimit {
		t.Fatalf("expected daily_limit block, got %s/%s", d.Verdict, d.Check)
	}
}

func TestEvaluateCooldown(t *testing.T) {
	fv := newFakeVenue()
	fv.prices["SOL/USDT"] = 85
	g, st := newTestGovernor(t, fv, testPolicy())

	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return now }
	if err := st.RecordRealizedPnL("SOL/USDT", -10, now.Add(-30*time.Minute)); err != nil {
		t.Fatal(err)
	}

	d := g.Evaluate(context.Background(), buyPlan(50))
	if d.Verdict != types.VerdictBlocked || d.Check != checkCooldown {
		t.Fatalf("expected cooldown block, got %s/%s", d.Verdict, d.Check)
	}
	if !strings.Contains(d.Reason, "30 minutes") {
		t.Errorf("expected minutes remaining in reason, got %q", d.Reason)
	}

	// Past the cooldown window the plan passes this check.
	g.now = func() time.Time { return now.Add(61 * time.Minute) }
	d = g.Evaluate(context.Background(), buyPlan(50))
	if d.Check == checkCooldown {
		t.Errorf("cooldown still blocking after expiry: %q", d.Reason)
	}
}

func TestEvaluateFailsClosedWithoutQuote(t *testing.T) {
	fv := newFakeVenue()
	fv.tickerErr = errors.New("quote timeout")
	g, _ := newTestGovernor(t, fv, testPolicy())

	plan := buyPlan(0)
	plan.Amount = types.Quantity(0.5)
	d := g.Evaluate(context.Background(), plan)
	if d.Verdict != types.VerdictBlocked || d.Check != checkPricing {
		t.Fatalf("expected pricing block, got %s/%s", d.Verdict, d.Check)
	}
}

func TestEvaluateInsufficientBalance(t *testing.T) {
	fv := newFakeVenue()
	fv.prices["SOL/USDT"] = 85
	fv.balance = types.Balance{Free: 100, Total: 100}
	g, _ := newTestGovernor(t, fv, testPolicy())

	plan := buyPlan(150)
	plan.ExecuteNow = true
	d := g.Evaluate(context.Background(), plan)
	if d.Verdict != types.VerdictBlocked || d.Check != checkBalance {
		t.Fatalf("expected balance block, got %s/%s", d.Verdict, d.Check)
	}
	if !strings.Contains(d.Reason, "insufficient balance") {
		t.Errorf("unexpected reason %q", d.Reason)
	}
}

func TestEvaluateConfirmationThreshold(t *testing.T) {
	fv := newFakeVenue()
	fv.prices["SOL/USDT"] = 85
	g, _ := newTestGovernor(t, fv, testPolicy())

	// Notional 250 over threshold 200 without execute-now.
	d := g.Evaluate(context.Background(), buyPlan(250))
	if d.Verdict != types.VerdictNeedsConfirmation {
		t.Fatalf("expected NEEDS_CONFIRMATION, got %s (%s)", d.Verdict, d.Reason)
	}
	if d.Check != checkConfirmation {
		t.Errorf("expected check %q, got %q", checkConfirmation, d.Check)
	}

	// Resubmission with the flag set passes.
	plan := buyPlan(250)
	plan.ExecuteNow = true
	d = g.Evaluate(context.Background(), plan)
	if d.Verdict != types.VerdictApproved {
		t.Fatalf("expected APPROVED on resubmit, got %s (%s)", d.Verdict, d.Reason)
	}
}

func TestEvaluateExposureCap(t *testing.T) {
	fv := newFakeVenue()
	fv.prices["SOL/USDT"] = 85
	pol := testPolicy()
	pol.MaxSymbolExposurePct = 25
	g, st := newTestGovernor(t, fv, pol)

	if err := st.AddExposure("SOL/USDT", 200); err != nil {
		t.Fatal(err)
	}

	// portfolio = 1000 balance + 200 deployed; (200+150)/1200 = 29.2% > 25%
	d := g.Evaluate(context.Background(), buyPlan(150))
	if d.Verdict != types.VerdictBlocked || d.Check != checkExposure {
		t.Fatalf("expected exposure block, got %s/%s (%s)", d.Verdict, d.Check, d.Reason)
	}

	// A small buy stays under the cap.
	d = g.Evaluate(context.Background(), buyPlan(50))
	if d.Verdict != types.VerdictApproved {
		t.Fatalf("expected APPROVED, got %s (%s)", d.Verdict, d.Reason)
	}
}

func TestEvaluateSellSkipsBalanceCheck(t *testing.T) {
	fv := newFakeVenue()
	fv.prices["SOL/USDT"] = 85
	fv.balanceErr = errors.New("venue down")
	g, _ := newTestGovernor(t, fv, testPolicy())

	plan := buyPlan(50)
	plan.Side = types.SideSell
	d := g.Evaluate(context.Background(), plan)
	if d.Verdict != types.VerdictApproved {
		t.Fatalf("expected APPROVED for sell, got %s (%s)", d.Verdict, d.Reason)
	}
}

package engine

import (
	"math"
	"testing"

	"spot-trading-bot/internal/store"
	"spot-trading-bot/internal/types"
)

var defaultLadder = []store.LadderStep{
	{GainPct: 8, SellFraction: 0.25},
	{GainPct: 15, SellFraction: 0.25},
	{GainPct: 25, SellFraction: 0.50},
}

func TestBuildLadderTargets(t *testing.T) {
	orders := BuildLadder(defaultLadder, 85.00, 0.5, 0.5, 0.01, 0.0001)

	if len(orders) != 3 {
		t.Fatalf("expected 3 ladder orders, got %d", len(orders))
	}

	wantTargets := []float64{91.80, 97.75, 106.25}
	wantQtys := []float64{0.125, 0.125, 0.25}
	for i, o := range orders {
		if o.TargetPrice != wantTargets[i] {
			t.Errorf("order %d: expected target %.2f, got %v", i, wantTargets[i], o.TargetPrice)
		}
		if o.Quantity != wantQtys[i] {
			t.Errorf("order %d: expected quantity %v, got %v", i, wantQtys[i], o.Quantity)
		}
		if o.Status != types.TPOpen {
			t.Errorf("order %d: expected status OPEN, got %s", i, o.Status)
		}
	}
}

func TestBuildLadderClipsToRemaining(t *testing.T) {
	orders := BuildLadder(defaultLadder, 85.00, 0.5, 0.2, 0, 0)

	if len(orders) != 2 {
		t.Fatalf("expected 2 ladder orders after clipping, got %d", len(orders))
	}
	if orders[0].Quantity != 0.125 {
		t.Errorf("expected first quantity 0.125, got %v", orders[0].Quantity)
	}
	if math.Abs(orders[1].Quantity-0.075) > 1e-12 {
		t.Errorf("expected second quantity clipped to 0.075, got %v", orders[1].Quantity)
	}

	var total float64
	for _, o := range orders {
		total += o.Quantity
	}
	if math.Abs(total-0.2) > 1e-12 {
		t.Errorf("ladder quantities sum to %v, want 0.2", total)
	}
}

func TestBuildLadderEmptyInputs(t *testing.T) {
	if got := BuildLadder(nil, 85.00, 0.5, 0.5, 0.01, 0.0001); got != nil {
		t.Errorf("expected no orders for empty ladder config, got %d", len(got))
	}
	if got := BuildLadder(defaultLadder, 85.00, 0.5, 0, 0.01, 0.0001); got != nil {
		t.Errorf("expected no orders for flat position, got %d", len(got))
	}
}

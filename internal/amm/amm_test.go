package amm_test

import (
	"TrueMarket/internal/amm"
	"TrueMarket/internal/fault"
	"TrueMarket/internal/num"
	"errors"
	"testing"
)

func pools(vals ...uint64) []num.U128 {
	out := make([]num.U128, len(vals))
	for i, v := range vals {
		out[i] = num.FromUint64(v)
	}
	return out
}

// ============================================================================
// Test: CalcBuyAmount
// ============================================================================

func TestCalcBuyAmount_EvenPoolsOf50(t *testing.T) {
	// 50 + 50 - ceil(50*50/100) = 75
	got, err := amm.CalcBuyAmount(pools(50, 50), 0, num.FromUint64(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "75" {
		t.Errorf("got %s, want 75", got)
	}
}

func TestCalcBuyAmount_EvenPoolsOf100(t *testing.T) {
	// 100 + 50 - ceil(100*100/150) = 150 - 67 = 83
	got, err := amm.CalcBuyAmount(pools(100, 100), 0, num.FromUint64(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "83" {
		t.Errorf("got %s, want 83", got)
	}
}

func TestCalcBuyAmount_ThreeOutcomesIndexOrder(t *testing.T) {
	// ending: 100 -> ceil(100*100/150)=67 -> ceil(67*100/150)=45
	// shares: 150 - 45 = 105
	got, err := amm.CalcBuyAmount(pools(100, 100, 100), 1, num.FromUint64(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "105" {
		t.Errorf("got %s, want 105", got)
	}
}

func TestCalcBuyAmount_ZeroAmount(t *testing.T) {
	got, err := amm.CalcBuyAmount(pools(100, 100), 1, num.Zero)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !got.IsZero() {
		t.Errorf("got %s, want 0", got)
	}
}

func TestCalcBuyAmount_Monotonic(t *testing.T) {
	p := pools(1_000, 400, 2_500)
	prev := num.Zero
	for amount := uint64(1); amount <= 500; amount++ {
		got, err := amm.CalcBuyAmount(p, 1, num.FromUint64(amount))
		if err != nil {
			t.Fatalf("amount %d: unexpected error: %v", amount, err)
		}
		if got.Cmp(prev) <= 0 {
			t.Fatalf("amount %d: shares %s not above %s", amount, got, prev)
		}
		prev = got
	}
}

func TestCalcBuyAmount_LargePoolsStayInRange(t *testing.T) {
	big := num.MustParse("100000000000000000000000000000000000") // ~2^116
	p := []num.U128{big, big, big, big}
	got, err := amm.CalcBuyAmount(p, 2, big)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.IsZero() {
		t.Error("expected non-zero shares")
	}
}

func TestCalcBuyAmount_BadOutcome(t *testing.T) {
	_, err := amm.CalcBuyAmount(pools(10, 10), 2, num.FromUint64(1))
	if !errors.Is(err, fault.ErrValidation) {
		t.Errorf("expected validation fault, got %v", err)
	}
}

// ============================================================================
// Test: Fees
// ============================================================================

func TestFees_Validate(t *testing.T) {
	ok := amm.Fees{Fee: 500, TreasuryFee: 500, DistributorFee: 500}
	if err := ok.Validate(); err != nil {
		t.Errorf("max fees should validate: %v", err)
	}

	tests := []amm.Fees{
		{Fee: 501},
		{TreasuryFee: 501},
		{DistributorFee: 10_000},
	}
	for _, f := range tests {
		if err := f.Validate(); !errors.Is(err, fault.ErrValidation) {
			t.Errorf("%+v: expected validation fault, got %v", f, err)
		}
	}
}

func TestFees_SplitTwoTwoOne(t *testing.T) {
	f := amm.Fees{Fee: 200, TreasuryFee: 200, DistributorFee: 100}
	s, err := f.Split(num.FromUint64(50))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Protocol.String() != "1" || s.Treasury.String() != "1" || s.Distributor.String() != "0" {
		t.Errorf("got protocol=%s treasury=%s distributor=%s", s.Protocol, s.Treasury, s.Distributor)
	}
	if s.Residual.String() != "48" {
		t.Errorf("residual: got %s, want 48", s.Residual)
	}
}

func TestFees_SplitNeverExceedsValue(t *testing.T) {
	f := amm.Fees{Fee: amm.MaxFee, TreasuryFee: amm.MaxFee, DistributorFee: amm.MaxFee}
	for _, v := range []uint64{0, 1, 19, 20, 333, 10_000, 1 << 40} {
		value := num.FromUint64(v)
		s, err := f.Split(value)
		if err != nil {
			t.Fatalf("value %d: %v", v, err)
		}
		total, _ := s.Protocol.Add(s.Treasury)
		total, _ = total.Add(s.Distributor)
		total, _ = total.Add(s.Residual)
		if total.Cmp(value) != 0 {
			t.Errorf("value %d: components sum to %s", v, total)
		}
	}

	s, err := f.Split(num.Max())
	if err != nil {
		t.Fatalf("max value: %v", err)
	}
	if s.Residual.IsZero() {
		t.Error("residual of max value should be non-zero")
	}
}

func TestQuoteBuy_FeeAdjusted(t *testing.T) {
	f := amm.Fees{Fee: 200, TreasuryFee: 200, DistributorFee: 100}
	q, err := amm.QuoteBuy(pools(100, 100), 0, num.FromUint64(50), f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// residual 48: 148 - ceil(10000/148) = 148 - 68 = 80
	if q.Shares.String() != "80" {
		t.Errorf("got %s, want 80", q.Shares)
	}
}

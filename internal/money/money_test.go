package money

import "testing"

func TestFromString_RoundsHalfUp(t *testing.T) {
	m, err := FromString("10.005")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := m.String(); got != "10.01" {
		t.Errorf("expected 10.01, got %s", got)
	}
}

func TestAdversarialFloatSum_NoCentDrift(t *testing.T) {
	// The classic 0.1 + 0.2 adversarial case: in float64 this is
	// 0.30000000000000004. Money must not reproduce that drift.
	a := FromFloat(0.1)
	b := FromFloat(0.2)
	sum := a.Add(b)
	if sum.String() != "0.30" {
		t.Errorf("expected 0.30, got %s", sum.String())
	}
	if sum.Cents() != 30 {
		t.Errorf("expected 30 cents, got %d", sum.Cents())
	}
}

func TestCombinedExposure_ExactCents(t *testing.T) {
	realized := FromCents(-90000) // -900.00
	unrealized := FromCents(-10000) // -100.00
	combined := realized.Add(unrealized)
	if combined.Cents() != -100000 {
		t.Errorf("expected -100000 cents, got %d", combined.Cents())
	}
	if combined.String() != "-1000.00" {
		t.Errorf("expected -1000.00, got %s", combined.String())
	}
}

func TestCmp(t *testing.T) {
	limit := FromCents(-100000)
	combined := FromCents(-100000)
	if combined.Cmp(limit) != 0 {
		t.Errorf("expected combined == limit, got cmp=%d", combined.Cmp(limit))
	}
	if !combined.LessThanOrEqual(limit) {
		t.Errorf("expected combined <= limit (inclusive breach)")
	}
}

func TestMulInt64(t *testing.T) {
	price := FromCents(500000) // 5000.00
	tickValue := 5.0
	delta := FromCents(-1000) // -10.00 per unit move

	unrealized := delta.MulFloat(tickValue).MulInt64(2)
	if unrealized.String() != "-100.00" {
		t.Errorf("expected -100.00, got %s", unrealized.String())
	}
	_ = price
}

func TestJSONRoundTrip(t *testing.T) {
	m := FromCents(-123456)
	data, err := m.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}
	var out Money
	if err := out.UnmarshalJSON(data); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if out.Cents() != m.Cents() {
		t.Errorf("round trip mismatch: got %d want %d", out.Cents(), m.Cents())
	}
}

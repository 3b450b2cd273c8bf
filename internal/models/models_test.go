package models

import "testing"

func TestParseLegStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want LegStatus
	}{
		{"complete", LegFilled},
		{"COMPLETE", LegFilled},
		{"executed", LegFilled},
		{"open", LegOpen},
		{"OPEN", LegOpen},
		{"TRIGGER PENDING", LegOpen},
		{"trigger pending", LegOpen},
		{"cancelled", LegCancelled},
		{"CANCELLED", LegCancelled},
		{"CANCEL PENDING", LegPending},
		{"rejected", LegRejected},
		{"", LegPending},
		{"something new", LegPending},
	}

	for _, tt := range tests {
		if got := ParseLegStatus(tt.raw); got != tt.want {
			t.Errorf("ParseLegStatus(%q) = %s, want %s", tt.raw, got, tt.want)
		}
	}
}

func TestOrderSideOpposite(t *testing.T) {
	if OrderSideBuy.Opposite() != OrderSideSell {
		t.Error("opposite of BUY should be SELL")
	}
	if OrderSideSell.Opposite() != OrderSideBuy {
		t.Error("opposite of SELL should be BUY")
	}
}

func TestInstrumentListLookup(t *testing.T) {
	list := NewInstrumentList([]Instrument{
		{Token: 3045, Symbol: "SBIN", Exchange: NSE, TickSize: 0.05},
		{Token: 3787, Symbol: "WIPRO", Exchange: NSE, TickSize: 0.05},
	})

	if list.Len() != 2 {
		t.Fatalf("expected 2 instruments, got %d", list.Len())
	}

	inst, ok := list.Lookup(NSE, "sbin")
	if !ok || inst.Token != 3045 {
		t.Errorf("lookup SBIN = %+v, %v", inst, ok)
	}

	if _, ok := list.Lookup(BSE, "SBIN"); ok {
		t.Error("SBIN should not resolve on BSE")
	}
}

func TestBracketGroupLifecycle(t *testing.T) {
	g := NewBracketGroup(PositionIntent{
		Symbol:      "SBIN",
		Side:        OrderSideBuy,
		Quantity:    10,
		PriceLevels: PriceLevels{Entry: 100, Stop: 99, Target: 102},
	})

	if g.ID == "" {
		t.Fatal("group id should be assigned")
	}
	if g.State != GroupAwaitingEntry {
		t.Errorf("initial state = %s", g.State)
	}
	if len(g.Tag()) > 20 {
		t.Errorf("tag %q exceeds 20 characters", g.Tag())
	}
	if g.Protected() {
		t.Error("group without legs cannot be protected")
	}

	g.StopLoss = &OrderLeg{OrderID: "1", SubmitState: Submitted}
	g.Target = &OrderLeg{OrderID: "2", SubmitState: Submitted}
	if !g.Protected() {
		t.Error("group with both legs submitted should be protected")
	}

	g.Close("target filled")
	if !g.Terminal() || g.ClosedAt.IsZero() {
		t.Error("closed group should be terminal")
	}
}

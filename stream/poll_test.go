package stream

import (
	"context"
	"testing"
	"time"

	"webull-autopilot/broker"
)

func TestPollSourceFindsTerminalOrder(t *testing.T) {
	pb := broker.NewPaperBroker()
	pb.OptionQuoteData = &broker.OptionQuote{Close: 2.45}
	pb.FillPerAttempt = 2

	placed, err := pb.PlaceOrder(context.Background(), broker.OrderRequest{
		Side:     broker.SideSell,
		Quantity: 2,
	})
	if err != nil {
		t.Fatal(err)
	}

	src := NewPollSource(pb)
	upd, ok := src.WaitForOrderUpdate(context.Background(), placed.OrderID, 200*time.Millisecond)
	if !ok {
		t.Fatal("expected the filled order to be found")
	}
	if upd.Status != "Filled" || upd.FilledQuantity != 2 {
		t.Errorf("unexpected update: %+v", upd)
	}
	if !upd.Terminal() {
		t.Error("a filled order is terminal")
	}
}

func TestPollSourceReturnsLastObservedWorkingState(t *testing.T) {
	pb := broker.NewPaperBroker()
	pb.FillPerAttempt = 1 // partial: order stays non-terminal

	placed, err := pb.PlaceOrder(context.Background(), broker.OrderRequest{
		Side:     broker.SideSell,
		Quantity: 3,
	})
	if err != nil {
		t.Fatal(err)
	}

	src := NewPollSource(pb)
	src.interval = 10 * time.Millisecond
	upd, ok := src.WaitForOrderUpdate(context.Background(), placed.OrderID, 30*time.Millisecond)
	if !ok {
		t.Fatal("expected the working order's last state")
	}
	if upd.Status != "PartialFilled" || upd.FilledQuantity != 1 {
		t.Errorf("unexpected update: %+v", upd)
	}
}

func TestPollSourceTimesOutOnUnknownOrder(t *testing.T) {
	src := NewPollSource(broker.NewPaperBroker())
	src.interval = 10 * time.Millisecond

	upd, ok := src.WaitForOrderUpdate(context.Background(), "missing", 30*time.Millisecond)
	if ok || upd != nil {
		t.Errorf("expected no update for an unknown order, got %+v", upd)
	}
}

func TestOrderUpdateTerminal(t *testing.T) {
	tests := []struct {
		status string
		want   bool
	}{
		{"Filled", true},
		{"Cancelled", true},
		{"Failed", true},
		{"Expired", true},
		{"Working", false},
		{"PartialFilled", false},
	}
	for _, tt := range tests {
		u := OrderUpdate{Status: tt.status}
		if u.Terminal() != tt.want {
			t.Errorf("Terminal(%q) = %v, want %v", tt.status, u.Terminal(), tt.want)
		}
	}
}

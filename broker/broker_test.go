package broker

import (
	"errors"
	"strings"
	"testing"
)

func TestOrderErrorHint(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil error", nil, ""},
		{"buying power", errors.New("Your buying power is insufficient for this trade"), "insufficient funds"},
		{"naked position", errors.New("Sell quantity exceeds the position held"), "exceed the current position"},
		{"expired session", errors.New("access token expired"), "re-login required"},
		{"unrecognized", errors.New("E503 upstream unavailable"), "order placement failed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := OrderErrorHint(tt.err)
			if tt.want == "" {
				if got != "" {
					t.Errorf("expected empty hint, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("hint %q should mention %q", got, tt.want)
			}
		})
	}
}

func TestOptionQuoteTopOfBook(t *testing.T) {
	q := &OptionQuote{
		BidList: []PriceLevel{{Price: 2.40}, {Price: 2.35}},
		AskList: []PriceLevel{{Price: 2.50}, {Price: 2.55}},
	}
	if q.BestBid() != 2.40 {
		t.Errorf("BestBid = %.2f, want 2.40", q.BestBid())
	}
	if q.BestAsk() != 2.50 {
		t.Errorf("BestAsk = %.2f, want 2.50", q.BestAsk())
	}

	empty := &OptionQuote{}
	if empty.BestBid() != 0 || empty.BestAsk() != 0 {
		t.Error("empty book should quote 0 on both sides")
	}
}

package broker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"webull-autopilot/candles"
)

// WebullClient talks to the Webull-style trade/quote REST API.
type WebullClient struct {
	http      *resty.Client
	accountID string
}

// NewWebullClient builds the REST client. The access token and device id
// come from the out-of-scope login flow; this client only consumes them.
func NewWebullClient(baseURL, accessToken, deviceID, accountID string) *WebullClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetRetryCount(0). // the exit executor owns its own retry discipline
		SetHeader("access_token", accessToken).
		SetHeader("did", deviceID).
		SetHeader("User-Agent", "Mozilla/5.0")

	return &WebullClient{
		http:      client,
		accountID: accountID,
	}
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"msg"`
}

func (e *apiError) asError() error {
	if e == nil || (e.Code == "" && e.Message == "") {
		return nil
	}
	return fmt.Errorf("brokerage error %s: %s", e.Code, e.Message)
}

type placeOrderResponse struct {
	apiError
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// PlaceOrder submits an order for the configured account.
func (c *WebullClient) PlaceOrder(ctx context.Context, req OrderRequest) (*PlacedOrder, error) {
	body := map[string]interface{}{
		"serialId":                req.SerialID,
		"accountId":               c.accountID,
		"action":                  string(req.Side),
		"orderType":               string(req.OrderType),
		"quantity":                req.Quantity,
		"timeInForce":             string(req.TimeInForce),
		"outsideRegularTradingHour": req.OutsideRegularHours,
	}
	if req.OptionContractID != 0 {
		body["tickerId"] = req.OptionContractID
		body["tickerType"] = "OPTION"
	} else {
		body["tickerId"] = req.TickerID
		body["tickerType"] = "EQUITY"
	}
	if req.OrderType == TypeLimit {
		body["lmtPrice"] = req.LimitPrice
	}

	var out placeOrderResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		SetError(&out).
		Post(fmt.Sprintf("/trade/account/%s/orders/place", c.accountID))
	if err != nil {
		return nil, fmt.Errorf("place order: %w", err)
	}
	if resp.IsError() || out.asError() != nil {
		if apiErr := out.asError(); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("place order: HTTP %d", resp.StatusCode())
	}
	return &PlacedOrder{OrderID: out.OrderID, Status: out.Status}, nil
}

type quoteResponse struct {
	apiError
	Bid   float64 `json:"bid,string"`
	Ask   float64 `json:"ask,string"`
	Last  float64 `json:"close,string"` // provider calls the live print "close"
	Close float64 `json:"preClose,string"`
}

// GetQuote fetches the realtime stock quote.
func (c *WebullClient) GetQuote(ctx context.Context, tickerID int64) (*Quote, error) {
	var out quoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(fmt.Sprintf("/quote/tickerRealTimes/%d", tickerID))
	if err != nil {
		return nil, fmt.Errorf("get quote: %w", err)
	}
	if resp.IsError() || out.asError() != nil {
		if apiErr := out.asError(); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("get quote: HTTP %d", resp.StatusCode())
	}
	return &Quote{Bid: out.Bid, Ask: out.Ask, Last: out.Last, Close: out.Close}, nil
}

type optionQuoteResponse struct {
	apiError
	BidList []PriceLevel `json:"bidList"`
	AskList []PriceLevel `json:"askList"`
	Delta   *float64     `json:"delta,string"`
	Close   float64      `json:"close,string"`
}

// GetOptionQuote fetches the realtime option quote with greeks when the
// provider has them.
func (c *WebullClient) GetOptionQuote(ctx context.Context, contractID int64) (*OptionQuote, error) {
	var out optionQuoteResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(fmt.Sprintf("/quote/option/%d", contractID))
	if err != nil {
		return nil, fmt.Errorf("get option quote: %w", err)
	}
	if resp.IsError() || out.asError() != nil {
		if apiErr := out.asError(); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("get option quote: HTTP %d", resp.StatusCode())
	}

	q := &OptionQuote{
		BidList: out.BidList,
		AskList: out.AskList,
		Close:   out.Close,
	}
	if out.Delta != nil {
		q.Delta = *out.Delta
		q.HasDelta = true
	}
	return q, nil
}

type chartBar struct {
	Time  int64   `json:"time"`
	Open  float64 `json:"open,string"`
	High  float64 `json:"high,string"`
	Low   float64 `json:"low,string"`
	Close float64 `json:"close,string"`
}

type chartResponse struct {
	apiError
	Bars []chartBar `json:"bars"`
}

// GetHistoricalBars fetches recent bars for the ticker. interval follows
// the provider convention ("m1" for 1-minute).
func (c *WebullClient) GetHistoricalBars(ctx context.Context, tickerID int64, interval string, count int) ([]candles.Candle, error) {
	var out chartResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParam("type", interval).
		SetQueryParam("count", fmt.Sprintf("%d", count)).
		SetResult(&out).
		SetError(&out).
		Get(fmt.Sprintf("/quote/charts/%d", tickerID))
	if err != nil {
		return nil, fmt.Errorf("get historical bars: %w", err)
	}
	if resp.IsError() || out.asError() != nil {
		if apiErr := out.asError(); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("get historical bars: HTTP %d", resp.StatusCode())
	}

	bars := make([]candles.Candle, 0, len(out.Bars))
	for _, b := range out.Bars {
		bars = append(bars, candles.Candle{
			Time:  b.Time,
			Open:  b.Open,
			High:  b.High,
			Low:   b.Low,
			Close: b.Close,
		})
	}
	return bars, nil
}

type positionRow struct {
	TickerID         int64   `json:"tickerId"`
	OptionContractID int64   `json:"optionContractId"`
	Symbol           string  `json:"symbol"`
	Quantity         int     `json:"position,string"`
	CostPrice        float64 `json:"costPrice,string"`
}

type positionsResponse struct {
	apiError
	Positions []positionRow `json:"positions"`
}

// GetPositions fetches the account position snapshot.
func (c *WebullClient) GetPositions(ctx context.Context) ([]Position, error) {
	var out positionsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(fmt.Sprintf("/trade/account/%s/positions", c.accountID))
	if err != nil {
		return nil, fmt.Errorf("get positions: %w", err)
	}
	if resp.IsError() || out.asError() != nil {
		if apiErr := out.asError(); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("get positions: HTTP %d", resp.StatusCode())
	}

	positions := make([]Position, 0, len(out.Positions))
	for _, p := range out.Positions {
		positions = append(positions, Position{
			TickerID:         p.TickerID,
			OptionContractID: p.OptionContractID,
			Symbol:           p.Symbol,
			Quantity:         p.Quantity,
			CostPrice:        p.CostPrice,
		})
	}
	return positions, nil
}

type orderRow struct {
	OrderID           string `json:"orderId"`
	Status            string `json:"status"`
	FilledQuantity    int    `json:"filledQuantity,string"`
	RemainingQuantity int    `json:"remainingQuantity,string"`
}

type ordersResponse struct {
	apiError
	Orders []orderRow `json:"orders"`
}

// GetOrders fetches today's orders; used as the HTTP fallback for
// order-status polling when no event stream is available.
func (c *WebullClient) GetOrders(ctx context.Context) ([]Order, error) {
	var out ordersResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&out).
		SetError(&out).
		Get(fmt.Sprintf("/trade/account/%s/orders", c.accountID))
	if err != nil {
		return nil, fmt.Errorf("get orders: %w", err)
	}
	if resp.IsError() || out.asError() != nil {
		if apiErr := out.asError(); apiErr != nil {
			return nil, apiErr
		}
		return nil, fmt.Errorf("get orders: HTTP %d", resp.StatusCode())
	}

	orders := make([]Order, 0, len(out.Orders))
	for _, o := range out.Orders {
		orders = append(orders, Order{
			OrderID:           o.OrderID,
			Status:            o.Status,
			FilledQuantity:    o.FilledQuantity,
			RemainingQuantity: o.RemainingQuantity,
		})
	}
	return orders, nil
}

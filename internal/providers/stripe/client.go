package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/notahub/notahub/internal/config"
	currencydomain "github.com/notahub/notahub/internal/currency/domain"
	"github.com/shopspring/decimal"
)

type balanceTransaction struct {
	ID           string  `json:"id"`
	Amount       int64   `json:"amount"`
	Fee          int64   `json:"fee"`
	Net          int64   `json:"net"`
	Currency     string  `json:"currency"`
	ExchangeRate float64 `json:"exchange_rate"`
	Created      int64   `json:"created"`
}

type charge struct {
	ID                 string              `json:"id"`
	Amount             int64               `json:"amount"`
	Currency           string              `json:"currency"`
	BalanceTransaction *balanceTransaction `json:"balance_transaction"`
}

type paymentIntent struct {
	ID           string  `json:"id"`
	LatestCharge *charge `json:"latest_charge"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Client looks up settlement records on the Stripe balance API.
type Client struct {
	apiKey  string
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiKey:  strings.TrimSpace(cfg.Stripe.APIKey),
		baseURL: strings.TrimRight(cfg.Stripe.BaseURL, "/"),
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// GetSettlement resolves the balance transaction behind a charge or
// payment intent. A missing record returns (nil, nil): the conversion
// cascade treats that as source exhaustion, not a failure.
func (c *Client) GetSettlement(ctx context.Context, chargeRef, paymentIntentRef string) (*currencydomain.Settlement, error) {
	if c.apiKey == "" {
		return nil, nil
	}

	var ch *charge
	var err error
	switch {
	case strings.TrimSpace(chargeRef) != "":
		ch, err = c.retrieveCharge(ctx, strings.TrimSpace(chargeRef))
	case strings.TrimSpace(paymentIntentRef) != "":
		ch, err = c.retrieveIntentCharge(ctx, strings.TrimSpace(paymentIntentRef))
	default:
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if ch == nil || ch.BalanceTransaction == nil {
		return nil, nil
	}

	return toSettlement(ch), nil
}

func toSettlement(ch *charge) *currencydomain.Settlement {
	bt := ch.BalanceTransaction

	gross := decimal.New(bt.Amount, -2)
	rate := decimal.NewFromFloat(bt.ExchangeRate)
	if rate.IsZero() && ch.Amount != 0 {
		// Implied rate: settled gross over the original-currency gross.
		rate = gross.Div(decimal.New(ch.Amount, -2)).Round(6)
	}

	return &currencydomain.Settlement{
		GrossBRL:         gross,
		FeeBRL:           decimal.New(bt.Fee, -2),
		NetBRL:           decimal.New(bt.Net, -2),
		OriginalCurrency: strings.ToUpper(strings.TrimSpace(ch.Currency)),
		ExchangeRate:     rate,
		SettledAt:        time.Unix(bt.Created, 0).UTC(),
	}
}

func (c *Client) retrieveCharge(ctx context.Context, chargeID string) (*charge, error) {
	var ch charge
	found, err := c.doGet(ctx, "/v1/charges/"+url.PathEscape(chargeID), url.Values{
		"expand[]": []string{"balance_transaction"},
	}, &ch)
	if err != nil || !found {
		return nil, err
	}
	return &ch, nil
}

func (c *Client) retrieveIntentCharge(ctx context.Context, intentID string) (*charge, error) {
	var intent paymentIntent
	found, err := c.doGet(ctx, "/v1/payment_intents/"+url.PathEscape(intentID), url.Values{
		"expand[]": []string{"latest_charge.balance_transaction"},
	}, &intent)
	if err != nil || !found {
		return nil, err
	}
	return intent.LatestCharge, nil
}

func (c *Client) doGet(ctx context.Context, path string, query url.Values, out any) (bool, error) {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		var apiErr errorResponse
		if decodeErr := json.NewDecoder(resp.Body).Decode(&apiErr); decodeErr == nil && apiErr.Error.Message != "" {
			return false, fmt.Errorf("stripe: %s", apiErr.Error.Message)
		}
		return false, fmt.Errorf("stripe: unexpected status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, err
	}
	return true, nil
}

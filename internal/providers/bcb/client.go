package bcb

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

// quoteDateLayout is the request format the PTAX service documents.
const quoteDateLayout = "01-02-2006"

type quoteRow struct {
	CotacaoCompra   float64 `json:"cotacaoCompra"`
	CotacaoVenda    float64 `json:"cotacaoVenda"`
	DataHoraCotacao string  `json:"dataHoraCotacao"`
}

type quoteResponse struct {
	Value []quoteRow `json:"value"`
}

// Client fetches daily PTAX quotations from the central bank.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BCB.BaseURL, "/"),
		client:  &http.Client{Timeout: 12 * time.Second},
	}
}

// GetDailyRate returns the published quotation for the given day, or
// (nil, nil) when no quote exists for that date (weekend or holiday).
func (c *Client) GetDailyRate(ctx context.Context, currencyCode string, date time.Time) (*currencydomain.DailyRate, error) {
	code := strings.ToUpper(strings.TrimSpace(currencyCode))
	if code == "" {
		return nil, nil
	}

	query := url.Values{}
	query.Set("@moeda", fmt.Sprintf("'%s'", code))
	query.Set("@dataCotacao", fmt.Sprintf("'%s'", date.Format(quoteDateLayout)))
	query.Set("$format", "json")

	endpoint := c.baseURL + "/CotacaoMoedaDia(moeda=@moeda,dataCotacao=@dataCotacao)?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("ptax: unexpected status %d", resp.StatusCode)
	}

	var parsed quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, err
	}
	if len(parsed.Value) == 0 {
		// A day with no published quote is a valid not-found.
		return nil, nil
	}

	row := parsed.Value[len(parsed.Value)-1]
	quotedAt := parseQuoteTime(row.DataHoraCotacao, date)

	return &currencydomain.DailyRate{
		BuyRate:   decimal.NewFromFloat(row.CotacaoCompra),
		SellRate:  decimal.NewFromFloat(row.CotacaoVenda),
		QuoteDate: quotedAt,
	}, nil
}

func parseQuoteTime(raw string, fallback time.Time) time.Time {
	raw = strings.TrimSpace(raw)
	for _, layout := range []string{"2006-01-02 15:04:05.999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC()
		}
	}
	return fallback.UTC().Truncate(24 * time.Hour)
}

// Package nfse implements the tax authority gateway client.
package nfse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/notahub/notahub/internal/config"
	fiscaldomain "github.com/notahub/notahub/internal/fiscalinvoice/domain"
)

// Client talks to the NFS-e issuance API.
type Client struct {
	apiToken   string
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		apiToken: cfg.NFSe.APIToken,
		baseURL:  cfg.NFSe.BaseURL,
		httpClient: &http.Client{
			Timeout: 12 * time.Second,
		},
	}
}

type createInvoiceRequest struct {
	ExternalReference string               `json:"external_reference"`
	Tomador           fiscaldomain.Tomador `json:"tomador"`
	Servico           createInvoiceService `json:"servico"`
}

type createInvoiceService struct {
	Discriminacao string          `json:"discriminacao"`
	Valor         decimal.Decimal `json:"valor"`
	ISSRate       decimal.Decimal `json:"aliquota_iss"`
}

type cancelInvoiceRequest struct {
	Codigo string `json:"codigo_cancelamento"`
	Motivo string `json:"motivo,omitempty"`
}

type invoiceResponse struct {
	Ref           string  `json:"ref"`
	Status        string  `json:"status"`
	NumeroNFSe    *string `json:"numero,omitempty"`
	URLPDF        *string `json:"url_pdf,omitempty"`
	URLXML        *string `json:"url_xml,omitempty"`
	Mensagem      *string `json:"mensagem,omitempty"`
	DataCancelado *string `json:"data_cancelamento,omitempty"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// CreateInvoice submits an issuance request. The gateway deduplicates
// on external_reference, so replays of the same taxable event return
// the original invoice.
func (c *Client) CreateInvoice(ctx context.Context, req fiscaldomain.CreateInvoiceRequest) (*fiscaldomain.ProviderInvoice, error) {
	payload := createInvoiceRequest{
		ExternalReference: req.ExternalReference,
		Tomador:           req.Tomador,
		Servico: createInvoiceService{
			Discriminacao: req.ServiceDescription,
			Valor:         req.ValueBRL,
			ISSRate:       req.TaxRate,
		},
	}
	return c.do(ctx, http.MethodPost, "/v2/nfse", payload)
}

// GetInvoice fetches the current gateway state of an invoice.
func (c *Client) GetInvoice(ctx context.Context, reference string) (*fiscaldomain.ProviderInvoice, error) {
	return c.do(ctx, http.MethodGet, "/v2/nfse/"+reference, nil)
}

// CancelInvoice requests cancellation. The gateway may refuse, for
// example outside the municipal cancellation window; the refusal
// message is surfaced verbatim.
func (c *Client) CancelInvoice(ctx context.Context, reference string, req fiscaldomain.CancelInvoiceRequest) (*fiscaldomain.ProviderInvoice, error) {
	payload := cancelInvoiceRequest{
		Codigo: req.Code,
		Motivo: req.Reason,
	}
	return c.do(ctx, http.MethodDelete, "/v2/nfse/"+reference, payload)
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*fiscaldomain.ProviderInvoice, error) {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode nfse request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create nfse request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiToken)
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("nfse request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read nfse response: %w", err)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fiscaldomain.ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		if err := json.Unmarshal(raw, &errResp); err == nil && errResp.Message != "" {
			return nil, &fiscaldomain.ProviderError{Message: fmt.Sprintf("nfse api error: %s", errResp.Message)}
		}
		return nil, &fiscaldomain.ProviderError{Message: fmt.Sprintf("nfse api error: status %d", resp.StatusCode)}
	}

	var inv invoiceResponse
	if err := json.Unmarshal(raw, &inv); err != nil {
		return nil, fmt.Errorf("failed to decode nfse response: %w", err)
	}
	return toProviderInvoice(inv)
}

func toProviderInvoice(inv invoiceResponse) (*fiscaldomain.ProviderInvoice, error) {
	status, err := fiscaldomain.ParseStatus(inv.Status)
	if err != nil {
		return nil, fmt.Errorf("nfse status %q: %w", inv.Status, err)
	}

	out := &fiscaldomain.ProviderInvoice{
		Reference:     inv.Ref,
		Status:        status,
		InvoiceNumber: inv.NumeroNFSe,
		PDFURL:        inv.URLPDF,
		XMLURL:        inv.URLXML,
		ErrorMessage:  inv.Mensagem,
	}
	if inv.DataCancelado != nil {
		if ts, err := time.Parse(time.RFC3339, *inv.DataCancelado); err == nil {
			out.CancelledAt = &ts
		}
	}
	return out, nil
}

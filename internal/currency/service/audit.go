package service

import (
	"fmt"
	"strings"

	currencydomain "github.com/notahub/notahub/internal/currency/domain"
)

var sourceLabels = map[currencydomain.Source]string{
	currencydomain.SourceProcessorBalance: "Câmbio da processadora",
	currencydomain.SourceOfficialRate:     "Cotação PTAX venda",
	currencydomain.SourceFallbackRate:     "Taxa de câmbio de referência",
}

var currencySymbols = map[string]string{
	"BRL": "R$",
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"JPY": "¥",
}

// buildAuditText renders the human-readable provenance line persisted
// verbatim into the invoice service description. The format is part of
// the fiscal audit trail and must stay stable.
func buildAuditText(result *currencydomain.ConversionResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Valor original: %s%s - %s: R$ %s",
		currencySymbol(result.OriginalCurrency),
		result.OriginalAmount.StringFixed(2),
		sourceLabels[result.Source],
		result.ExchangeRate.StringFixed(4),
	)
	if result.ProcessorFeesBRL != nil && result.ProcessorFeesBRL.IsPositive() {
		fmt.Fprintf(&b, " - Taxas operacionais: R$ %s", result.ProcessorFeesBRL.StringFixed(2))
	}
	return b.String()
}

func currencySymbol(code string) string {
	if symbol, ok := currencySymbols[strings.ToUpper(code)]; ok {
		return symbol
	}
	return strings.ToUpper(code) + " "
}

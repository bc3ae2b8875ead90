package domain

import (
	"testing"
)

func strptr(s string) *string { return &s }

func validBrazilianProfile() *TaxProfile {
	return &TaxProfile{
		Country:      "BR",
		IsBrazilian:  true,
		LegalName:    "Empresa Exemplo Ltda",
		CPFCNPJ:      strptr("12.345.678/0001-95"),
		Street:       strptr("Av. Paulista"),
		Number:       strptr("1000"),
		Neighborhood: strptr("Bela Vista"),
		City:         strptr("São Paulo"),
		CityCode:     strptr("3550308"),
		State:        strptr("SP"),
		PostalCode:   strptr("01310-100"),
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(p *TaxProfile)
		wantErr error
	}{
		{"valid domestic", func(p *TaxProfile) {}, nil},
		{"valid domestic cpf", func(p *TaxProfile) { p.CPFCNPJ = strptr("123.456.789-09") }, nil},
		{"missing legal name", func(p *TaxProfile) { p.LegalName = "  " }, ErrLegalNameRequired},
		{"missing document", func(p *TaxProfile) { p.CPFCNPJ = nil }, ErrTaxDocumentRequired},
		{"document wrong length", func(p *TaxProfile) { p.CPFCNPJ = strptr("12345") }, ErrInvalidTaxDocument},
		{"missing city code", func(p *TaxProfile) { p.CityCode = nil }, ErrAddressIncomplete},
		{"missing postal code", func(p *TaxProfile) { p.PostalCode = strptr("") }, ErrAddressIncomplete},
		{
			"foreign profile needs no address",
			func(p *TaxProfile) {
				p.IsBrazilian = false
				p.Country = "US"
				p.CPFCNPJ = nil
				p.Street = nil
				p.CityCode = nil
				p.PostalCode = nil
			},
			nil,
		},
		{
			"foreign profile cannot claim BR",
			func(p *TaxProfile) {
				p.IsBrazilian = false
				p.Country = "br"
			},
			ErrInvalidCountry,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := validBrazilianProfile()
			tc.mutate(p)
			if err := p.Validate(); err != tc.wantErr {
				t.Fatalf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestDocumentNormalization(t *testing.T) {
	p := validBrazilianProfile()
	if got := p.Document(); got != "12345678000195" {
		t.Fatalf("expected digits-only document, got %q", got)
	}

	foreign := &TaxProfile{IsBrazilian: false, NIF: strptr(" PT123456789 ")}
	if got := foreign.Document(); got != "PT123456789" {
		t.Fatalf("expected trimmed NIF, got %q", got)
	}
}

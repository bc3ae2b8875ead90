package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"

	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
)

func strptr(s string) *string { return &s }

func TestBuildTomador_Domestic(t *testing.T) {
	profile := &taxprofiledomain.TaxProfile{
		Country:      "BR",
		IsBrazilian:  true,
		LegalName:    "Empresa Exemplo Ltda",
		CPFCNPJ:      strptr("12.345.678/0001-95"),
		Street:       strptr("Av. Paulista"),
		Number:       strptr("1000"),
		Complement:   strptr("Sala 42"),
		Neighborhood: strptr("Bela Vista"),
		City:         strptr("São Paulo"),
		CityCode:     strptr("3550308"),
		State:        strptr("sp"),
		PostalCode:   strptr("01310-100"),
	}

	tomador := BuildTomador(profile, "fiscal@exemplo.com.br")
	domestic, ok := tomador.(DomesticTomador)
	if !ok {
		t.Fatalf("expected DomesticTomador, got %T", tomador)
	}

	assert.Equal(t, "12345678000195", domestic.CPFCNPJ)
	assert.Equal(t, "Empresa Exemplo Ltda", domestic.RazaoSocial)
	assert.Equal(t, "fiscal@exemplo.com.br", domestic.Email)
	assert.Equal(t, "3550308", domestic.Endereco.CodigoMunicipio)
	assert.Equal(t, "SP", domestic.Endereco.UF)
	assert.Equal(t, "01310100", domestic.Endereco.CEP, "CEP must be digits only")
}

func TestBuildTomador_Foreign(t *testing.T) {
	profile := &taxprofiledomain.TaxProfile{
		Country:     "pt",
		IsBrazilian: false,
		LegalName:   "Oliveira Consulting",
		NIF:         strptr("PT123456789"),
		Street:      strptr("Rua Augusta"),
		Number:      strptr("25"),
		City:        strptr("Lisboa"),
		PostalCode:  strptr("1100-048"),
	}

	tomador := BuildTomador(profile, "ana@oliveira.pt")
	foreign, ok := tomador.(ForeignTomador)
	if !ok {
		t.Fatalf("expected ForeignTomador, got %T", tomador)
	}

	assert.Equal(t, "PT", foreign.Pais)
	assert.Equal(t, "PT123456789", foreign.NIF)
	assert.Empty(t, foreign.IndicadorNIF)
	assert.Equal(t, "Rua Augusta 25, Lisboa, 1100-048", foreign.EnderecoExterior)
}

func TestBuildTomador_ForeignSkipsBlankAddressParts(t *testing.T) {
	profile := &taxprofiledomain.TaxProfile{
		Country:     "US",
		IsBrazilian: false,
		LegalName:   "Acme Inc",
		City:        strptr("Austin"),
	}

	foreign := BuildTomador(profile, "").(ForeignTomador)
	assert.Equal(t, "Austin", foreign.EnderecoExterior)
}

func TestBuildTomador_ForeignWithoutNIFUsesExemptionIndicator(t *testing.T) {
	profile := &taxprofiledomain.TaxProfile{
		Country:          "DE",
		IsBrazilian:      false,
		LegalName:        "Müller GmbH",
		NIFExemptionCode: strptr("2"),
	}

	foreign := BuildTomador(profile, "").(ForeignTomador)
	assert.Empty(t, foreign.NIF)
	assert.Equal(t, "2", foreign.IndicadorNIF)
}

func TestParseStatus(t *testing.T) {
	for _, raw := range []string{"authorized", " Authorized ", "AUTHORIZED"} {
		status, err := ParseStatus(raw)
		assert.NoError(t, err)
		assert.Equal(t, StatusAuthorized, status)
	}

	if _, err := ParseStatus("approved"); err != ErrUnknownStatus {
		t.Fatalf("expected ErrUnknownStatus, got %v", err)
	}
}

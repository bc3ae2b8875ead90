package domain

import (
	"strings"

	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
)

// Tomador is the service-taker payload submitted to the tax authority.
// The two concrete shapes are mutually exclusive; exactly one is built
// per issuance depending on the profile jurisdiction.
type Tomador interface {
	isTomador()
}

// DomesticTomador is the payload for Brazilian customers. Field names
// follow the municipal NFS-e schema.
type DomesticTomador struct {
	CPFCNPJ     string   `json:"cpf_cnpj"`
	RazaoSocial string   `json:"razao_social"`
	Email       string   `json:"email,omitempty"`
	Endereco    Endereco `json:"endereco"`
}

type Endereco struct {
	Logradouro      string `json:"logradouro"`
	Numero          string `json:"numero"`
	Complemento     string `json:"complemento,omitempty"`
	Bairro          string `json:"bairro"`
	Municipio       string `json:"municipio"`
	CodigoMunicipio string `json:"codigo_municipio"`
	UF              string `json:"uf"`
	CEP             string `json:"cep"`
}

func (DomesticTomador) isTomador() {}

// ForeignTomador is the export-of-services payload. The structured
// address collapses into one freeform line; the NIF may be replaced by
// an exemption indicator when the customer has none.
type ForeignTomador struct {
	RazaoSocial      string `json:"razao_social"`
	Email            string `json:"email,omitempty"`
	Pais             string `json:"pais"`
	NIF              string `json:"nif,omitempty"`
	IndicadorNIF     string `json:"indicador_nif,omitempty"`
	EnderecoExterior string `json:"endereco_exterior,omitempty"`
}

func (ForeignTomador) isTomador() {}

// BuildTomador derives the provider payload from a validated profile.
// Callers must run profile.Validate first; the builder does not
// re-check required fields.
func BuildTomador(profile *taxprofiledomain.TaxProfile, email string) Tomador {
	if profile.IsBrazilian {
		return DomesticTomador{
			CPFCNPJ:     profile.Document(),
			RazaoSocial: strings.TrimSpace(profile.LegalName),
			Email:       strings.TrimSpace(email),
			Endereco: Endereco{
				Logradouro:      deref(profile.Street),
				Numero:          deref(profile.Number),
				Complemento:     deref(profile.Complement),
				Bairro:          deref(profile.Neighborhood),
				Municipio:       deref(profile.City),
				CodigoMunicipio: deref(profile.CityCode),
				UF:              strings.ToUpper(deref(profile.State)),
				CEP:             digits(deref(profile.PostalCode)),
			},
		}
	}

	t := ForeignTomador{
		RazaoSocial:      strings.TrimSpace(profile.LegalName),
		Email:            strings.TrimSpace(email),
		Pais:             strings.ToUpper(strings.TrimSpace(profile.Country)),
		NIF:              deref(profile.NIF),
		EnderecoExterior: foreignAddressLine(profile),
	}
	if t.NIF == "" {
		t.IndicadorNIF = deref(profile.NIFExemptionCode)
	}
	return t
}

// foreignAddressLine joins whichever address parts the profile carries
// with commas, skipping blanks. Foreign addresses are freeform so no
// part is mandatory.
func foreignAddressLine(profile *taxprofiledomain.TaxProfile) string {
	street := deref(profile.Street)
	if n := deref(profile.Number); n != "" && street != "" {
		street = street + " " + n
	} else if n != "" {
		street = n
	}

	parts := make([]string, 0, 3)
	for _, p := range []string{street, deref(profile.City), deref(profile.PostalCode)} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

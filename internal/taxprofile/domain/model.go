package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
)

// TaxProfile is the legal customer record required before any fiscal
// invoice can be issued. One per user.
type TaxProfile struct {
	ID     snowflake.ID `gorm:"primaryKey" json:"id"`
	UserID snowflake.ID `gorm:"column:user_id;not null;uniqueIndex" json:"user_id"`

	// Country is the ISO-2 jurisdiction code.
	Country     string `gorm:"type:char(2);not null" json:"country"`
	IsBrazilian bool   `gorm:"column:is_brazilian;not null;default:false" json:"is_brazilian"`
	LegalName   string `gorm:"column:legal_name;type:text;not null" json:"legal_name"`

	// Domestic tax document (CPF or CNPJ). Mutually exclusive with NIF.
	CPFCNPJ *string `gorm:"column:cpf_cnpj;type:text" json:"cpf_cnpj,omitempty"`

	// Foreign tax identification.
	NIF              *string `gorm:"type:text" json:"nif,omitempty"`
	NIFExemptionCode *string `gorm:"column:nif_exemption_code;type:text" json:"nif_exemption_code,omitempty"`

	// Domestic address, required when IsBrazilian.
	Street       *string `gorm:"type:text" json:"street,omitempty"`
	Number       *string `gorm:"type:text" json:"number,omitempty"`
	Complement   *string `gorm:"type:text" json:"complement,omitempty"`
	Neighborhood *string `gorm:"type:text" json:"neighborhood,omitempty"`
	City         *string `gorm:"type:text" json:"city,omitempty"`
	CityCode     *string `gorm:"column:city_code;type:text" json:"city_code,omitempty"`
	State        *string `gorm:"type:char(2)" json:"state,omitempty"`
	PostalCode   *string `gorm:"column:postal_code;type:text" json:"postal_code,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (TaxProfile) TableName() string { return "tax_profiles" }

// Validate enforces the legal invariants for invoice issuance: a domestic
// profile needs a tax document and a complete address, a foreign profile
// needs a legal name. This gate runs at profile write time and again
// immediately before issuance; downstream payload builders trust it.
func (p *TaxProfile) Validate() error {
	if strings.TrimSpace(p.LegalName) == "" {
		return ErrLegalNameRequired
	}
	if !p.IsBrazilian {
		if strings.TrimSpace(p.Country) == "" || strings.EqualFold(p.Country, "BR") {
			return ErrInvalidCountry
		}
		return nil
	}

	if !hasText(p.CPFCNPJ) {
		return ErrTaxDocumentRequired
	}
	if doc := digitsOnly(*p.CPFCNPJ); len(doc) != 11 && len(doc) != 14 {
		return ErrInvalidTaxDocument
	}
	if !hasText(p.Street) || !hasText(p.Number) || !hasText(p.Neighborhood) ||
		!hasText(p.City) || !hasText(p.CityCode) || !hasText(p.State) || !hasText(p.PostalCode) {
		return ErrAddressIncomplete
	}
	return nil
}

// Document returns the normalized tax document for the jurisdiction:
// digits-only CPF/CNPJ for domestic profiles, the NIF otherwise.
func (p *TaxProfile) Document() string {
	if p.IsBrazilian && hasText(p.CPFCNPJ) {
		return digitsOnly(*p.CPFCNPJ)
	}
	if hasText(p.NIF) {
		return strings.TrimSpace(*p.NIF)
	}
	return ""
}

func hasText(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Upsert(ctx context.Context, req UpsertRequest) (*TaxProfile, error)
	GetByUser(ctx context.Context, userID snowflake.ID) (*TaxProfile, error)
	Delete(ctx context.Context, userID snowflake.ID) error
}

type UpsertRequest struct {
	UserID snowflake.ID `json:"-"`

	Country     string `json:"country"`
	IsBrazilian bool   `json:"is_brazilian"`
	LegalName   string `json:"legal_name"`

	CPFCNPJ          *string `json:"cpf_cnpj,omitempty"`
	NIF              *string `json:"nif,omitempty"`
	NIFExemptionCode *string `json:"nif_exemption_code,omitempty"`

	Street       *string `json:"street,omitempty"`
	Number       *string `json:"number,omitempty"`
	Complement   *string `json:"complement,omitempty"`
	Neighborhood *string `json:"neighborhood,omitempty"`
	City         *string `json:"city,omitempty"`
	CityCode     *string `json:"city_code,omitempty"`
	State        *string `json:"state,omitempty"`
	PostalCode   *string `json:"postal_code,omitempty"`
}

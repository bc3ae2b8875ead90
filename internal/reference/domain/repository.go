package domain

import "context"

type Repository interface {
	// FindMunicipalityByCode returns nil when the IBGE code is unknown.
	FindMunicipalityByCode(ctx context.Context, ibgeCode string) (*Municipality, error)
	// FindMunicipality resolves a (name, state) pair to its IBGE row,
	// nil when absent.
	FindMunicipality(ctx context.Context, name, state string) (*Municipality, error)
	ListMunicipalitiesByState(ctx context.Context, state string) ([]Municipality, error)
}

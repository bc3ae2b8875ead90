package reference

import (
	"context"
	"strings"

	"github.com/notahub/notahub/internal/reference/domain"
	"gorm.io/gorm"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) domain.Repository {
	return &repository{db: db}
}

func (r *repository) FindMunicipalityByCode(ctx context.Context, ibgeCode string) (*domain.Municipality, error) {
	ibgeCode = strings.TrimSpace(ibgeCode)
	if ibgeCode == "" {
		return nil, nil
	}

	var row domain.Municipality
	err := r.db.WithContext(ctx).
		Raw(`SELECT ibge_code, name, state FROM municipalities WHERE ibge_code = ?`, ibgeCode).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.IBGECode == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *repository) FindMunicipality(ctx context.Context, name, state string) (*domain.Municipality, error) {
	name = strings.TrimSpace(name)
	state = strings.ToUpper(strings.TrimSpace(state))
	if name == "" || state == "" {
		return nil, nil
	}

	var row domain.Municipality
	err := r.db.WithContext(ctx).
		Raw(`SELECT ibge_code, name, state FROM municipalities WHERE LOWER(name) = LOWER(?) AND state = ?`, name, state).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.IBGECode == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *repository) ListMunicipalitiesByState(ctx context.Context, state string) ([]domain.Municipality, error) {
	state = strings.ToUpper(strings.TrimSpace(state))

	var rows []domain.Municipality
	err := r.db.WithContext(ctx).
		Raw(`SELECT ibge_code, name, state FROM municipalities WHERE state = ? ORDER BY name`, state).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}

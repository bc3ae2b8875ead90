package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) taxprofiledomain.Repository {
	return &repository{db: db}
}

func (r *repository) Upsert(ctx context.Context, profile *taxprofiledomain.TaxProfile) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"country", "is_brazilian", "legal_name",
				"cpf_cnpj", "nif", "nif_exemption_code",
				"street", "number", "complement", "neighborhood",
				"city", "city_code", "state", "postal_code",
				"updated_at",
			}),
		}).
		Create(profile).Error
}

func (r *repository) FindByUserID(ctx context.Context, userID snowflake.ID) (*taxprofiledomain.TaxProfile, error) {
	var profile taxprofiledomain.TaxProfile
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Take(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindByID(ctx context.Context, id snowflake.ID) (*taxprofiledomain.TaxProfile, error) {
	var profile taxprofiledomain.TaxProfile
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		Take(&profile).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}

func (r *repository) Delete(ctx context.Context, userID snowflake.ID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var profile taxprofiledomain.TaxProfile
		if err := tx.Where("user_id = ?", userID).Take(&profile).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return taxprofiledomain.ErrNotFound
			}
			return err
		}

		var count int64
		if err := tx.Table("fiscal_invoices").
			Where("tax_profile_id = ?", profile.ID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return taxprofiledomain.ErrProfileInUse
		}

		return tx.Delete(&taxprofiledomain.TaxProfile{}, "id = ?", profile.ID).Error
	})
}

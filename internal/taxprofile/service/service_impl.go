package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	referencedomain "github.com/notahub/notahub/internal/reference/domain"
	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log       *zap.Logger
	GenID     *snowflake.Node
	Repo      taxprofiledomain.Repository
	Reference referencedomain.Repository
}

type service struct {
	log       *zap.Logger
	genID     *snowflake.Node
	repo      taxprofiledomain.Repository
	reference referencedomain.Repository
}

func NewService(p Params) taxprofiledomain.Service {
	return &service{
		log:       p.Log.Named("taxprofile.service"),
		genID:     p.GenID,
		repo:      p.Repo,
		reference: p.Reference,
	}
}

func (s *service) Upsert(ctx context.Context, req taxprofiledomain.UpsertRequest) (*taxprofiledomain.TaxProfile, error) {
	profile := &taxprofiledomain.TaxProfile{
		UserID:           req.UserID,
		Country:          strings.ToUpper(strings.TrimSpace(req.Country)),
		IsBrazilian:      req.IsBrazilian,
		LegalName:        strings.TrimSpace(req.LegalName),
		CPFCNPJ:          trimmed(req.CPFCNPJ),
		NIF:              trimmed(req.NIF),
		NIFExemptionCode: trimmed(req.NIFExemptionCode),
		Street:           trimmed(req.Street),
		Number:           trimmed(req.Number),
		Complement:       trimmed(req.Complement),
		Neighborhood:     trimmed(req.Neighborhood),
		City:             trimmed(req.City),
		CityCode:         trimmed(req.CityCode),
		State:            upperTrimmed(req.State),
		PostalCode:       trimmed(req.PostalCode),
	}

	if profile.IsBrazilian {
		profile.Country = "BR"
		if err := s.resolveCityCode(ctx, profile); err != nil {
			return nil, err
		}
	}

	if err := profile.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.repo.FindByUserID(ctx, req.UserID); err != nil {
		return nil, err
	} else if existing != nil {
		profile.ID = existing.ID
	} else {
		profile.ID = s.genID.Generate()
	}

	if err := s.repo.Upsert(ctx, profile); err != nil {
		return nil, err
	}

	s.log.Info("tax profile saved",
		zap.String("user_id", profile.UserID.String()),
		zap.Bool("is_brazilian", profile.IsBrazilian),
	)
	return profile, nil
}

// resolveCityCode fills a missing IBGE code from the municipality table and
// rejects codes that do not resolve to a known municipality.
func (s *service) resolveCityCode(ctx context.Context, profile *taxprofiledomain.TaxProfile) error {
	if s.reference == nil {
		return nil
	}

	if profile.CityCode != nil && *profile.CityCode != "" {
		found, err := s.reference.FindMunicipalityByCode(ctx, *profile.CityCode)
		if err != nil {
			return err
		}
		if found == nil {
			return taxprofiledomain.ErrUnknownMunicipality
		}
		return nil
	}

	if profile.City == nil || profile.State == nil {
		return nil
	}
	found, err := s.reference.FindMunicipality(ctx, *profile.City, *profile.State)
	if err != nil {
		return err
	}
	if found == nil {
		return taxprofiledomain.ErrUnknownMunicipality
	}
	profile.CityCode = &found.IBGECode
	return nil
}

func (s *service) GetByUser(ctx context.Context, userID snowflake.ID) (*taxprofiledomain.TaxProfile, error) {
	profile, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, taxprofiledomain.ErrNotFound
	}
	return profile, nil
}

func (s *service) Delete(ctx context.Context, userID snowflake.ID) error {
	return s.repo.Delete(ctx, userID)
}

func trimmed(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func upperTrimmed(s *string) *string {
	v := trimmed(s)
	if v == nil {
		return nil
	}
	upper := strings.ToUpper(*v)
	return &upper
}

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/notahub/notahub/internal/reference"
	referencedomain "github.com/notahub/notahub/internal/reference/domain"
	taxprofiledomain "github.com/notahub/notahub/internal/taxprofile/domain"
	taxprofilerepo "github.com/notahub/notahub/internal/taxprofile/repository"
)

func strptr(s string) *string { return &s }

func newTestService(t *testing.T) (taxprofiledomain.Service, *gorm.DB) {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&taxprofiledomain.TaxProfile{}, &referencedomain.Municipality{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	db.Exec("CREATE TABLE IF NOT EXISTS fiscal_invoices (id INTEGER PRIMARY KEY, tax_profile_id INTEGER)")

	db.Create(&referencedomain.Municipality{IBGECode: "3550308", Name: "São Paulo", State: "SP"})
	db.Create(&referencedomain.Municipality{IBGECode: "3304557", Name: "Rio de Janeiro", State: "RJ"})

	node, _ := snowflake.NewNode(1)
	svc := NewService(Params{
		Log:       zap.NewNop(),
		GenID:     node,
		Repo:      taxprofilerepo.NewRepository(db),
		Reference: reference.NewRepository(db),
	})
	return svc, db
}

func brazilianRequest(userID snowflake.ID) taxprofiledomain.UpsertRequest {
	return taxprofiledomain.UpsertRequest{
		UserID:       userID,
		Country:      "br",
		IsBrazilian:  true,
		LegalName:    "Empresa Exemplo Ltda",
		CPFCNPJ:      strptr("12.345.678/0001-95"),
		Street:       strptr("Av. Paulista"),
		Number:       strptr("1000"),
		Neighborhood: strptr("Bela Vista"),
		City:         strptr("São Paulo"),
		State:        strptr("sp"),
		PostalCode:   strptr("01310-100"),
	}
}

func TestUpsert_ResolvesCityCodeFromMunicipalityTable(t *testing.T) {
	svc, _ := newTestService(t)
	node, _ := snowflake.NewNode(2)
	userID := node.Generate()

	profile, err := svc.Upsert(context.Background(), brazilianRequest(userID))
	assert.NoError(t, err)

	assert.Equal(t, "BR", profile.Country)
	if assert.NotNil(t, profile.CityCode) {
		assert.Equal(t, "3550308", *profile.CityCode)
	}
	assert.Equal(t, "SP", *profile.State)
}

func TestUpsert_RejectsUnknownMunicipalityCode(t *testing.T) {
	svc, _ := newTestService(t)
	node, _ := snowflake.NewNode(2)

	req := brazilianRequest(node.Generate())
	req.CityCode = strptr("9999999")

	_, err := svc.Upsert(context.Background(), req)
	if !errors.Is(err, taxprofiledomain.ErrUnknownMunicipality) {
		t.Fatalf("expected ErrUnknownMunicipality, got %v", err)
	}
}

func TestUpsert_SecondWriteKeepsIdentity(t *testing.T) {
	svc, _ := newTestService(t)
	node, _ := snowflake.NewNode(2)
	userID := node.Generate()

	first, err := svc.Upsert(context.Background(), brazilianRequest(userID))
	assert.NoError(t, err)

	req := brazilianRequest(userID)
	req.LegalName = "Empresa Exemplo S.A."
	second, err := svc.Upsert(context.Background(), req)
	assert.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)

	got, err := svc.GetByUser(context.Background(), userID)
	assert.NoError(t, err)
	assert.Equal(t, "Empresa Exemplo S.A.", got.LegalName)
}

func TestGetByUser_NotFound(t *testing.T) {
	svc, _ := newTestService(t)
	node, _ := snowflake.NewNode(2)

	_, err := svc.GetByUser(context.Background(), node.Generate())
	if !errors.Is(err, taxprofiledomain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

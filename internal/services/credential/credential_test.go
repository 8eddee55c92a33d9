package credential

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/models"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	ownerID  = uint64(42)
	strongPw = "Sunset-Harbor-2025"
)

type fixture struct {
	svc       CredentialService
	repo      repositories.GalleryRepository
	auditRepo repositories.AuditRepository
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Default()
	cfg.Security.BcryptCost = bcrypt.MinCost

	auditRepo := repositories.NewAuditRepository(db)
	galleryRepo := repositories.NewGalleryRepository(db)
	svc := NewCredentialService(galleryRepo, audit.NewAuditService(auditRepo, audit.WithClock(clock.Now)), cfg)
	return &fixture{svc: svc, repo: galleryRepo, auditRepo: auditRepo}
}

func TestVerifyPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.Register(ctx, ownerID, 0)
	require.NoError(t, err)

	res, err := f.svc.VerifyPassword(ctx, g.ID, "anything", "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, VerifyNoPasswordSet, res)

	require.NoError(t, f.svc.SetPassword(ctx, ownerID, g.ID, strongPw, "198.51.100.2"))

	res, err = f.svc.VerifyPassword(ctx, g.ID, strongPw, "203.0.113.1")
	require.NoError(t, err)
	assert.Equal(t, VerifyValid, res)

	for _, wrong := range []string{"", "sunset-harbor-2025", strongPw + " ", "Sunset-Harbor-2024"} {
		res, err = f.svc.VerifyPassword(ctx, g.ID, wrong, "203.0.113.1")
		require.NoError(t, err)
		assert.Equal(t, VerifyInvalid, res, "password %q", wrong)
	}

	probes, err := f.auditRepo.CountByIPSince(ctx, "203.0.113.1", []models.EventType{models.EventCredentialProbe}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(6), probes)
}

func TestVerifyPassword_UnknownGallery(t *testing.T) {
	f := newFixture(t)

	res, err := f.svc.VerifyPassword(context.Background(), 999, strongPw, "203.0.113.1")
	assert.Equal(t, VerifyInvalid, res)
	assert.ErrorIs(t, err, xerr.ErrNotFound)
}

func TestSetPassword_StoresBcryptHashOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.Register(ctx, ownerID, 0)
	require.NoError(t, err)
	require.NoError(t, f.svc.MakePublic(ctx, ownerID, g.ID, ""))
	require.NoError(t, f.svc.SetPassword(ctx, ownerID, g.ID, strongPw, ""))

	stored, err := f.repo.FindByID(ctx, g.ID)
	require.NoError(t, err)
	require.True(t, stored.HasPassword())
	assert.NotContains(t, *stored.PasswordHash, strongPw)
	assert.True(t, strings.HasPrefix(*stored.PasswordHash, "$2"))
	assert.False(t, stored.IsPublic)
}

func TestSetPassword_Policy(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.Register(ctx, ownerID, 0)
	require.NoError(t, err)

	for _, weak := range []string{"short1!", "alllowercaseletters", "Password123", strings.Repeat("Ab1!", 20)} {
		err := f.svc.SetPassword(ctx, ownerID, g.ID, weak, "")
		assert.ErrorIs(t, err, xerr.ErrWeakPassword, "password %q", weak)
	}
}

func TestSetPassword_OwnerCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.Register(ctx, ownerID, 0)
	require.NoError(t, err)

	err = f.svc.SetPassword(ctx, ownerID+1, g.ID, strongPw, "")
	assert.ErrorIs(t, err, xerr.ErrPermissionDenied)

	err = f.svc.MakePublic(ctx, ownerID, g.ID+100, "")
	assert.ErrorIs(t, err, xerr.ErrNotFound)
}

func TestMakePublic_ClearsPassword(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	g, err := f.svc.Register(ctx, ownerID, 0)
	require.NoError(t, err)
	require.NoError(t, f.svc.SetPassword(ctx, ownerID, g.ID, strongPw, ""))

	require.NoError(t, f.svc.MakePublic(ctx, ownerID, g.ID, ""))

	stored, err := f.svc.GetGallery(ctx, g.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsPublic)
	assert.False(t, stored.HasPassword())
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	g, err := f.svc.Register(ctx, ownerID, 77)
	require.NoError(t, err)
	assert.Equal(t, uint64(77), g.ID)

	_, err = f.svc.Register(ctx, ownerID, 77)
	assert.ErrorIs(t, err, xerr.ErrValidation)

	_, err = f.svc.Register(ctx, 0, 0)
	assert.ErrorIs(t, err, xerr.ErrValidation)
}

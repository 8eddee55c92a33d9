package guard

import (
	"context"
	"errors"
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
)

const attackerIP = "203.0.113.50"

type fixture struct {
	guard GuardService
	audit audit.AuditService
	repo  repositories.AuditRepository
	clock *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	db := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Default()
	cfg.Security.TokenHashSecret = strings.Repeat("k", 32)

	auditRepo := repositories.NewAuditRepository(db)
	auditService := audit.NewAuditService(auditRepo, audit.WithClock(clock.Now))
	g := NewGuardService(repositories.NewRateLimitDBRepository(db), auditService, cfg, WithClock(clock.Now))
	return &fixture{guard: g, audit: auditService, repo: auditRepo, clock: clock}
}

type brokenRateLimitRepo struct {
	repositories.RateLimitRepository
}

func (brokenRateLimitRepo) BlockedUntil(context.Context, string, models.AttemptType, time.Time) (*time.Time, error) {
	return nil, errors.New("connection refused")
}

func TestAllow_PasswordLimitAndWindowReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := attackerIP + ":1"

	for i := 0; i < 5; i++ {
		require.NoError(t, f.guard.Allow(ctx, attackerIP, id, models.AttemptPassword), "attempt %d", i+1)
	}
	err := f.guard.Allow(ctx, attackerIP, id, models.AttemptPassword)
	assert.ErrorIs(t, err, xerr.ErrRateLimited)
	assert.Equal(t, "rate_limited", xerr.ReasonOf(err))

	// 其他画廊使用独立的计数
	assert.NoError(t, f.guard.Allow(ctx, attackerIP, attackerIP+":2", models.AttemptPassword))

	f.clock.Advance(15*time.Minute + time.Second)
	assert.NoError(t, f.guard.Allow(ctx, attackerIP, id, models.AttemptPassword))
}

func TestResetAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, f.guard.Allow(ctx, attackerIP, attackerIP, models.AttemptPassword))
	}
	f.guard.ResetAttempts(ctx, attackerIP, models.AttemptPassword)
	assert.NoError(t, f.guard.Allow(ctx, attackerIP, attackerIP, models.AttemptPassword))
}

func TestRecordFailure_SixFailuresBlockIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	gid := uint64(1)

	for i := 0; i < 5; i++ {
		f.guard.RecordFailure(ctx, Failure{IP: attackerIP, GalleryID: &gid, Flow: "password", Reason: "wrong_password"})
		f.clock.Advance(5 * time.Minute)
	}
	blocked, err := f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.False(t, blocked)

	f.guard.RecordFailure(ctx, Failure{IP: attackerIP, GalleryID: &gid, Flow: "password", Reason: "wrong_password"})
	blocked, err = f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.True(t, blocked)

	err = f.guard.Allow(ctx, attackerIP, attackerIP, models.AttemptLinkRedeem)
	assert.ErrorIs(t, err, xerr.ErrRateLimited)
	assert.Equal(t, "ip_blocked", xerr.ReasonOf(err))

	events, err := f.audit.ListGalleryEvents(ctx, gid, 50)
	require.NoError(t, err)
	var blocks int
	for _, e := range events {
		if e.EventType == models.EventIPBlocked {
			blocks++
			assert.Equal(t, models.SeverityCritical, e.Severity)
		}
	}
	assert.Equal(t, 1, blocks)

	// 已封禁时继续失败不会重复封禁
	f.guard.RecordFailure(ctx, Failure{IP: attackerIP, GalleryID: &gid, Flow: "password", Reason: "ip_blocked"})
	n, err := f.repo.CountByIPSince(ctx, attackerIP, []models.EventType{models.EventIPBlocked}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// 其他 IP 不受影响
	assert.NoError(t, f.guard.Allow(ctx, "198.51.100.7", "198.51.100.7", models.AttemptLinkRedeem))

	f.clock.Advance(24*time.Hour + time.Minute)
	blocked, err = f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestRecordFailure_SpreadOutFailuresDoNotBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 8; i++ {
		f.guard.RecordFailure(ctx, Failure{IP: attackerIP, Flow: "password", Reason: "wrong_password"})
		f.clock.Advance(15 * time.Minute)
	}
	blocked, err := f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestReportSecurityEvent_HashAccessBlocksForAWeek(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.guard.ReportSecurityEvent(ctx, Report{
		Type:     models.EventHashAccessAttempt,
		Severity: models.SeverityCritical,
		IP:       attackerIP,
		Details:  map[string]any{"field": "password_hash"},
	})
	require.NoError(t, err)

	f.clock.Advance(6 * 24 * time.Hour)
	blocked, err := f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.True(t, blocked)

	f.clock.Advance(24*time.Hour + time.Minute)
	blocked, err = f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestEscalate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		f.audit.LogEvent(ctx, audit.Event{Type: models.EventFailedAuth, Severity: models.SeverityMedium, IP: attackerIP})
	}
	blocked, err := f.guard.Escalate(ctx, attackerIP)
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = f.guard.Escalate(ctx, attackerIP)
	require.NoError(t, err)
	assert.False(t, blocked, "already blocked")
}

func TestBlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.guard.Block(ctx, attackerIP, time.Hour, "manual"))
	blocked, err := f.guard.IsBlocked(ctx, attackerIP)
	require.NoError(t, err)
	assert.True(t, blocked)

	assert.ErrorIs(t, f.guard.Block(ctx, "", time.Hour, "manual"), xerr.ErrValidation)
}

func TestReportSecurityEvent_Validation(t *testing.T) {
	f := newFixture(t)

	err := f.guard.ReportSecurityEvent(context.Background(), Report{Type: models.EventSecurityReport, Severity: "urgent"})
	assert.ErrorIs(t, err, xerr.ErrValidation)

	err = f.guard.ReportSecurityEvent(context.Background(), Report{Severity: models.SeverityLow})
	assert.ErrorIs(t, err, xerr.ErrValidation)
}

func TestAllow_FailsClosedWhenStoreUnavailable(t *testing.T) {
	cfg := config.Default()
	g := NewGuardService(brokenRateLimitRepo{}, nil, cfg)

	err := g.Allow(context.Background(), attackerIP, attackerIP, models.AttemptPassword)
	assert.ErrorIs(t, err, xerr.ErrInternalStore)
}

func TestSweepStale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.guard.Allow(ctx, attackerIP, attackerIP, models.AttemptLinkRedeem))
	f.clock.Advance(25 * time.Hour)

	n, err := f.guard.SweepStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/pkg/logger"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/services/credential"
	"github.com/3Eeeecho/gallery-access/internal/services/guard"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"github.com/3Eeeecho/gallery-access/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSchedulerRunsUntilCancelled(t *testing.T) {
	logger.SetLogger(zap.NewNop())

	var runs, failures atomic.Int64
	s := NewScheduler(
		Job{Name: "tick", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) (int64, error) {
			runs.Add(1)
			return 1, nil
		}},
		Job{Name: "broken", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) (int64, error) {
			failures.Add(1)
			return 0, errors.New("db down")
		}},
		Job{Name: "disabled", Interval: 0, Run: func(ctx context.Context) (int64, error) {
			t.Error("disabled job must not run")
			return 0, nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	assert.Eventually(t, func() bool { return runs.Load() >= 3 && failures.Load() >= 3 }, time.Second, 5*time.Millisecond)

	cancel()
	done := make(chan struct{})
	go func() {
		s.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}

func TestMaintenanceJobs(t *testing.T) {
	db := testutil.NewDB(t)
	clock := testutil.NewClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	cfg := config.Default()
	hasher := utils.NewTokenHasher("0123456789abcdef0123456789abcdef")
	ctx := context.Background()

	auditRepo := repositories.NewAuditRepository(db)
	auditService := audit.NewAuditService(auditRepo, audit.WithClock(clock.Now))
	guardService := guard.NewGuardService(repositories.NewRateLimitDBRepository(db), auditService, cfg, guard.WithClock(clock.Now))
	credentials := credential.NewCredentialService(repositories.NewGalleryRepository(db), auditService, cfg)
	sessions := session.NewSessionService(repositories.NewSessionRepository(db), hasher, cfg, session.WithClock(clock.Now))
	links := sharelink.NewLinkService(repositories.NewShareLinkRepository(db), repositories.NewTransactionManager(db),
		credentials, sessions, auditService, hasher, cfg, sharelink.WithClock(clock.Now))

	g, err := credentials.Register(ctx, 1, 0)
	require.NoError(t, err)
	_, err = sessions.CreateSession(ctx, g.ID, "198.51.100.1", "ua")
	require.NoError(t, err)
	_, err = links.CreateLink(ctx, 1, sharelink.CreateLinkInput{GalleryID: g.ID, Type: "temporary", Alias: "summer-trip", ExpiresInDays: 1})
	require.NoError(t, err)

	clock.Advance(time.Duration(cfg.Audit.RetentionDays+1) * 24 * time.Hour)

	s := NewMaintenanceScheduler(cfg, sessions, links, guardService, auditService)
	require.Len(t, s.jobs, 4)

	processed := map[string]int64{}
	for _, job := range s.jobs {
		n, err := job.Run(ctx)
		require.NoError(t, err, job.Name)
		processed[job.Name] = n
	}
	assert.Equal(t, int64(1), processed["session_cleanup"])
	assert.Equal(t, int64(1), processed["link_sweep"])
	// link_created 事件在保留期之外
	assert.GreaterOrEqual(t, processed["audit_purge"], int64(1))
}

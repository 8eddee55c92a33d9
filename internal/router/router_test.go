package router

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/3Eeeecho/gallery-access/internal/config"
	"github.com/3Eeeecho/gallery-access/internal/handlers"
	"github.com/3Eeeecho/gallery-access/internal/middlewares"
	"github.com/3Eeeecho/gallery-access/internal/pkg/storage"
	"github.com/3Eeeecho/gallery-access/internal/pkg/utils"
	"github.com/3Eeeecho/gallery-access/internal/pkg/xerr"
	"github.com/3Eeeecho/gallery-access/internal/repositories"
	"github.com/3Eeeecho/gallery-access/internal/services/access"
	"github.com/3Eeeecho/gallery-access/internal/services/audit"
	"github.com/3Eeeecho/gallery-access/internal/services/credential"
	"github.com/3Eeeecho/gallery-access/internal/services/guard"
	"github.com/3Eeeecho/gallery-access/internal/services/session"
	"github.com/3Eeeecho/gallery-access/internal/services/sharelink"
	"github.com/3Eeeecho/gallery-access/internal/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	jwtSecret       = "owner-jwt-secret"
	galleryPassword = "Harbor-Lights-2025"
)

type mockStorage struct {
	mock.Mock
}

func (m *mockStorage) PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, contentType string) (storage.PutObjectResult, error) {
	args := m.Called(ctx, bucketName, objectName, reader, objectSize, contentType)
	return args.Get(0).(storage.PutObjectResult), args.Error(1)
}

func (m *mockStorage) PreSignGetObjectURL(ctx context.Context, bucketName, objectName string, expiry time.Duration) (string, error) {
	args := m.Called(ctx, bucketName, objectName, expiry)
	return args.String(0), args.Error(1)
}

func (m *mockStorage) IsBucketExist(ctx context.Context, bucketName string) (bool, error) {
	args := m.Called(ctx, bucketName)
	return args.Bool(0), args.Error(1)
}

func (m *mockStorage) MakeBucket(ctx context.Context, bucketName string) error {
	return m.Called(ctx, bucketName).Error(0)
}

func (m *mockStorage) DefaultBucket() string {
	return "gallery-media"
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type testServer struct {
	t       *testing.T
	engine  *gin.Engine
	storage *mockStorage
}

func newTestServer(t *testing.T) *testServer {
	db := testutil.NewDB(t)
	cfg := config.Default()
	cfg.Server.Mode = gin.TestMode
	cfg.JWT.SecretKey = jwtSecret
	cfg.Security.BcryptCost = bcrypt.MinCost
	cfg.Links.PublicBaseURL = "https://photos.example.com"
	hasher := utils.NewTokenHasher("0123456789abcdef0123456789abcdef")

	auditService := audit.NewAuditService(repositories.NewAuditRepository(db))
	guardService := guard.NewGuardService(repositories.NewRateLimitDBRepository(db), auditService, cfg)
	credentials := credential.NewCredentialService(repositories.NewGalleryRepository(db), auditService, cfg)
	sessions := session.NewSessionService(repositories.NewSessionRepository(db), hasher, cfg)
	links := sharelink.NewLinkService(repositories.NewShareLinkRepository(db), repositories.NewTransactionManager(db),
		credentials, sessions, auditService, hasher, cfg)
	accessService := access.NewAccessService(guardService, credentials, sessions, links, auditService)

	ms := &mockStorage{}
	engine := InitRouter(Handlers{
		Access:    handlers.NewAccessHandler(accessService),
		Gallery:   handlers.NewGalleryHandler(credentials, accessService),
		ShareLink: handlers.NewShareLinkHandler(accessService, links),
		Media:     handlers.NewMediaHandler(ms, cfg),
	}, sessions, cfg)

	return &testServer{t: t, engine: engine, storage: ms}
}

func ownerToken(t *testing.T, ownerID uint64) string {
	token, err := utils.GenerateOwnerToken(ownerID, fmt.Sprintf("owner-%d", ownerID), jwtSecret, "gallery-access", time.Hour)
	require.NoError(t, err)
	return token
}

func (s *testServer) do(method, path, bearer string, body any, headers ...string) (int, envelope) {
	s.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env envelope
	if w.Body.Len() > 0 {
		_ = json.Unmarshal(w.Body.Bytes(), &env)
	}
	return w.Code, env
}

func (s *testServer) registerGallery(owner string) uint64 {
	s.t.Helper()
	status, env := s.do(http.MethodPost, "/api/v1/galleries", owner, nil)
	require.Equal(s.t, http.StatusCreated, status)
	var g struct {
		ID uint64 `json:"id"`
	}
	require.NoError(s.t, json.Unmarshal(env.Data, &g))
	return g.ID
}

func TestHealthAndMetrics(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(http.MethodGet, "/ping", "", nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, status)
}

func TestOwnerRoutesRequireJWT(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/v1/galleries", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, xerr.UnauthorizedCode, env.Code)

	status, env = s.do(http.MethodPost, "/api/v1/galleries", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, xerr.TokenInvalidCode, env.Code)
}

func TestPasswordAccessOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := ownerToken(t, 7)
	galleryID := s.registerGallery(owner)
	passwordPath := fmt.Sprintf("/api/v1/galleries/%d/password", galleryID)

	status, env := s.do(http.MethodPut, passwordPath, owner, gin.H{"password": "password"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, xerr.WeakPasswordCode, env.Code)

	status, _ = s.do(http.MethodPut, passwordPath, ownerToken(t, 8), gin.H{"password": galleryPassword})
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodPut, passwordPath, owner, gin.H{"password": galleryPassword})
	require.Equal(t, http.StatusOK, status)

	// 密码错误和画廊不存在的响应完全相同
	wrongStatus, wrong := s.do(http.MethodPost, "/api/v1/access/password", "", gin.H{"gallery_id": galleryID, "password": "nope"})
	missingStatus, missing := s.do(http.MethodPost, "/api/v1/access/password", "", gin.H{"gallery_id": galleryID + 100, "password": "nope"})
	assert.Equal(t, http.StatusForbidden, wrongStatus)
	assert.Equal(t, wrongStatus, missingStatus)
	assert.Equal(t, wrong, missing)

	status, env = s.do(http.MethodPost, "/api/v1/access/password", "", gin.H{"gallery_id": galleryID, "password": galleryPassword})
	require.Equal(t, http.StatusOK, status)
	var issued struct {
		SessionToken string `json:"session_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issued))
	require.NotEmpty(t, issued.SessionToken)

	status, env = s.do(http.MethodPost, "/api/v1/access/session/validate", "", gin.H{"gallery_id": galleryID, "session_token": issued.SessionToken})
	require.Equal(t, http.StatusOK, status)
	var v struct {
		Valid  bool   `json:"valid"`
		Detail string `json:"detail"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.True(t, v.Valid)
	assert.Equal(t, session.DetailValid, v.Detail)

	status, _ = s.do(http.MethodDelete, fmt.Sprintf("/api/v1/galleries/%d/sessions", galleryID), owner, nil)
	require.Equal(t, http.StatusOK, status)
	_, env = s.do(http.MethodPost, "/api/v1/access/session/validate", "", gin.H{"gallery_id": galleryID, "session_token": issued.SessionToken})
	require.NoError(t, json.Unmarshal(env.Data, &v))
	assert.False(t, v.Valid)
}

func TestPasswordRateLimitOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := ownerToken(t, 7)
	galleryID := s.registerGallery(owner)
	status, _ := s.do(http.MethodPut, fmt.Sprintf("/api/v1/galleries/%d/password", galleryID), owner, gin.H{"password": galleryPassword})
	require.Equal(t, http.StatusOK, status)

	for i := 0; i < 5; i++ {
		status, _ = s.do(http.MethodPost, "/api/v1/access/password", "", gin.H{"gallery_id": galleryID, "password": "nope"})
		require.Equal(t, http.StatusForbidden, status)
	}
	status, env := s.do(http.MethodPost, "/api/v1/access/password", "", gin.H{"gallery_id": galleryID, "password": galleryPassword})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, xerr.RateLimitedCode, env.Code)
}

func TestShareLinkLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	owner := ownerToken(t, 7)
	galleryID := s.registerGallery(owner)
	linksPath := fmt.Sprintf("/api/v1/galleries/%d/links", galleryID)

	status, env := s.do(http.MethodPost, linksPath, owner, gin.H{"type": "passwordless", "max_uses": 1})
	require.Equal(t, http.StatusCreated, status)
	var created struct {
		Link struct {
			ID uint64 `json:"id"`
		} `json:"link"`
		Token string `json:"token"`
		URL   string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &created))
	require.NotEmpty(t, created.Token)
	assert.Equal(t, "https://photos.example.com/s/"+created.Token, created.URL)

	status, env = s.do(http.MethodPost, linksPath, owner, gin.H{"type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, xerr.ValidationFailedCode, env.Code)

	status, _ = s.do(http.MethodGet, linksPath, ownerToken(t, 8), nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodPost, "/api/v1/access/links/redeem", "", gin.H{})
	assert.Equal(t, http.StatusBadRequest, status)

	status, env = s.do(http.MethodPost, "/api/v1/access/links/redeem", "", gin.H{"token": created.Token})
	require.Equal(t, http.StatusOK, status)
	var redemption struct {
		RemainingUses int `json:"remaining_uses"`
		Session       struct {
			SessionToken string `json:"session_token"`
		} `json:"session"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &redemption))
	assert.Zero(t, redemption.RemainingUses)
	assert.NotEmpty(t, redemption.Session.SessionToken)

	status, env = s.do(http.MethodPost, "/api/v1/access/links/redeem", "", gin.H{"token": created.Token})
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, "access denied", env.Message)

	linkPath := fmt.Sprintf("/api/v1/links/%d", created.Link.ID)
	status, env = s.do(http.MethodDelete, linkPath, owner, nil)
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, xerr.LinkStillActiveCode, env.Code)

	status, _ = s.do(http.MethodPost, linkPath+"/deactivate", owner, nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodDelete, linkPath, owner, nil)
	assert.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodDelete, linkPath, owner, nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestMediaRequiresGallerySession(t *testing.T) {
	s := newTestServer(t)
	owner := ownerToken(t, 7)
	galleryID := s.registerGallery(owner)
	otherGallery := s.registerGallery(owner)
	status, _ := s.do(http.MethodPut, fmt.Sprintf("/api/v1/galleries/%d/public", galleryID), owner, nil)
	require.Equal(t, http.StatusOK, status)

	status, env := s.do(http.MethodPost, "/api/v1/access/password", "", gin.H{"gallery_id": galleryID, "password": "anything"})
	require.Equal(t, http.StatusOK, status)
	var issued struct {
		SessionToken string `json:"session_token"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &issued))

	key := fmt.Sprintf("galleries/%d/2025/cover.jpg", galleryID)
	s.storage.On("PreSignGetObjectURL", mock.Anything, "gallery-media", key, 15*time.Minute).
		Return("https://media.example.com/"+key+"?sig=abc", nil).Once()

	mediaPath := fmt.Sprintf("/api/v1/galleries/%d/media/2025/cover.jpg", galleryID)
	status, _ = s.do(http.MethodGet, mediaPath, "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	// 会话只对签发它的画廊有效
	status, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/galleries/%d/media/2025/cover.jpg", otherGallery), "", nil,
		middlewares.SessionHeader, issued.SessionToken)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env = s.do(http.MethodGet, mediaPath, "", nil, middlewares.SessionHeader, issued.SessionToken)
	require.Equal(t, http.StatusOK, status)
	var media struct {
		URL string `json:"url"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &media))
	assert.Contains(t, media.URL, key)

	status, _ = s.do(http.MethodGet, fmt.Sprintf("/api/v1/galleries/%d/media/../%d/secret.jpg", galleryID, otherGallery), "", nil,
		middlewares.SessionHeader, issued.SessionToken)
	assert.NotEqual(t, http.StatusOK, status)
	s.storage.AssertExpectations(t)
}

func TestSecurityEventReport(t *testing.T) {
	s := newTestServer(t)
	owner := ownerToken(t, 7)

	status, _ := s.do(http.MethodPost, "/api/v1/security-events", "", gin.H{"event_type": "hash_access_attempt", "severity": "critical", "actor_ip": "203.0.113.5"})
	assert.Equal(t, http.StatusUnauthorized, status)

	status, env := s.do(http.MethodPost, "/api/v1/security-events", owner, gin.H{"event_type": "hash_access_attempt", "severity": "urgent", "actor_ip": "203.0.113.5"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, xerr.ValidationFailedCode, env.Code)

	status, _ = s.do(http.MethodPost, "/api/v1/security-events", owner, gin.H{"event_type": "hash_access_attempt", "severity": "critical", "actor_ip": "203.0.113.5"})
	assert.Equal(t, http.StatusAccepted, status)
}

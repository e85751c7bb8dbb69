package router

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/notesync/auth-service/internal/domain"
	"github.com/notesync/auth-service/internal/event"
	"github.com/notesync/auth-service/internal/health"
	"github.com/notesync/auth-service/internal/http/handler"
	"github.com/notesync/auth-service/internal/repository"
	"github.com/notesync/auth-service/internal/security"
	"github.com/notesync/auth-service/internal/service"
	"github.com/notesync/auth-service/internal/timer"
)

type unhealthyChecker struct{}

func (unhealthyChecker) Check(context.Context) health.CheckResult {
	return health.CheckResult{Name: "db", Healthy: false, Error: "db down"}
}

type harness struct {
	router    http.Handler
	clock     *timer.Fixed
	publisher *event.InMemoryPublisher
	handlers  *service.EventHandlers
	logger    *slog.Logger
}

func newHarness(t *testing.T, mutate func(*Dependencies)) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(domain.AllModels()...); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	server := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: server.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	clock := timer.NewFixed(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	publisher := event.NewInMemoryPublisher()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	crypter, err := security.NewAESCrypter("1", map[string][]byte{"1": []byte(strings.Repeat("k", 32))})
	if err != nil {
		t.Fatalf("crypter: %v", err)
	}
	jwtMgr := security.NewJWTManager("notesync-auth", "notesync", "access-secret", "refresh-secret").WithClock(clock.Now)

	users := repository.NewUserRepository(db)
	userSubs := repository.NewUserSubscriptionRepository(db)
	offlineSubs := repository.NewOfflineUserSubscriptionRepository(db)
	sessions := service.NewSessionManager(jwtMgr, repository.NewSessionRepository(db),
		repository.NewRedisEphemeralSessionRepository(redisClient, ""), repository.NewRevokedSessionRepository(db), users,
		clock, "pepper", service.SessionTTLs{Access: time.Hour, Refresh: 24 * time.Hour, Ephemeral: 2 * time.Hour, Tombstone: 24 * time.Hour},
		time.Second, log)
	roles := service.NewRoleService(users, offlineSubs, repository.NewRoleRepository(db), time.Second, log)
	features := service.NewFeatureService(userSubs, offlineSubs, clock, time.Second)
	settings := service.NewSettingService(repository.NewSettingRepository(db), users, crypter, publisher, clock, time.Second, log)
	subSettings := service.NewSubscriptionSettingService(repository.NewSubscriptionSettingRepository(db), userSubs, users, crypter, clock, time.Second, log)
	invitations := service.NewInvitationService(repository.NewInvitationRepository(db), userSubs, users, roles, subSettings, publisher, clock, time.Second, log)
	offline := service.NewOfflineSubscriptionService(offlineSubs, repository.NewRedisOfflineSubscriptionTokenRepository(redisClient), features, publisher, clock, 3*time.Hour, time.Second, log)
	lockout := service.NewLockoutService(repository.NewInMemoryLockRepository(clock.Now), 3, time.Hour)
	accounts := service.NewAccountService(users, userSubs, sessions, lockout, settings, security.NewPasswordHasher(4), publisher, clock,
		service.AccountOptions{DatastoreTimeout: time.Second}, log)
	if err := roles.SyncRoles(context.Background()); err != nil {
		t.Fatalf("sync roles: %v", err)
	}

	dep := Dependencies{
		AuthHandler:       handler.NewAuthHandler(accounts, log),
		SessionHandler:    handler.NewSessionHandler(sessions, log),
		UserHandler:       handler.NewUserHandler(accounts, features, service.NewSettingUseCases(settings, users), subSettings, log),
		InvitationHandler: handler.NewInvitationHandler(invitations, log),
		OfflineHandler:    handler.NewOfflineHandler(offline, log),
		Authenticator:     service.NewRequestAuthenticator(sessions),
		AuthRateLimitRPM:  1000,
	}
	if mutate != nil {
		mutate(&dep)
	}
	return &harness{
		router:    NewRouter(dep),
		clock:     clock,
		publisher: publisher,
		handlers:  service.NewEventHandlers(users, userSubs, offlineSubs, roles, settings, subSettings, sessions, service.UserServerOptions{}, clock, time.Second, log),
		logger:    log,
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta struct {
		RequestID string `json:"request_id"`
	} `json:"meta"`
}

type authData struct {
	User struct {
		UUID  string `json:"uuid"`
		Email string `json:"email"`
	} `json:"user"`
	Session struct {
		UUID string `json:"uuid"`
	} `json:"session"`
	Tokens service.TokenPair `json:"tokens"`
}

func perform(r http.Handler, method, target string, headers map[string]string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.RemoteAddr = "10.10.10.10:1234"
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	if err := json.Unmarshal(rr.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rr.Body.String(), err)
	}
	if data != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, data); err != nil {
			t.Fatalf("decode data %s: %v", env.Data, err)
		}
	}
	return env
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	env := decode(t, rr, nil)
	if env.Error == nil {
		t.Fatalf("expected error envelope, got %s", rr.Body.String())
	}
	return env.Error.Code
}

func (h *harness) register(t *testing.T, email string) authData {
	t.Helper()
	rr := perform(h.router, http.MethodPost, "/v1/auth/register", nil, fmt.Sprintf(`{"email":%q,"password":"correct horse"}`, email))
	if rr.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d body %s", email, rr.Code, rr.Body.String())
	}
	var out authData
	decode(t, rr, &out)
	return out
}

func (h *harness) dispatch(t *testing.T, typ event.Type, payload any) {
	t.Helper()
	e, err := event.New(typ, h.clock.Now(), payload)
	if err != nil {
		t.Fatalf("new event: %v", err)
	}
	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("encode event: %v", err)
	}
	d := event.NewDispatcher(h.logger)
	h.handlers.Register(d)
	if err := d.Dispatch(context.Background(), raw); err != nil {
		t.Fatalf("dispatch %s: %v", typ, err)
	}
}

func TestRouterHealthReadyNilAndUnreadyBranches(t *testing.T) {
	t.Run("nil readiness returns ready", func(t *testing.T) {
		h := newHarness(t, nil)
		rr := perform(h.router, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), `"status":"ready"`) {
			t.Fatalf("expected ready status payload, got %s", rr.Body.String())
		}
	})

	t.Run("unready dependency returns 503", func(t *testing.T) {
		h := newHarness(t, func(d *Dependencies) {
			d.Readiness = health.NewProbeRunner(time.Second, 0, unhealthyChecker{})
		})
		rr := perform(h.router, http.MethodGet, "/health/ready", nil, "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("expected 503, got %d", rr.Code)
		}
		if got := errorCode(t, rr); got != "DEPENDENCY_UNREADY" {
			t.Fatalf("expected DEPENDENCY_UNREADY, got %s", got)
		}
	})
}

func TestRouterHealthLiveCarriesRequestID(t *testing.T) {
	h := newHarness(t, nil)
	rr := perform(h.router, http.MethodGet, "/health/live", map[string]string{"X-Request-Id": "req-42"}, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if env := decode(t, rr, nil); env.Meta.RequestID != "req-42" {
		t.Fatalf("expected request id in meta, got %q", env.Meta.RequestID)
	}
}

func TestRouterAuthLimiterFallback(t *testing.T) {
	h := newHarness(t, func(d *Dependencies) { d.AuthRateLimitRPM = 1 })

	h.register(t, "first@example.com")
	rr := perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":"first@example.com","password":"correct horse"}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 from auth limiter, got %d", rr.Code)
	}
	if rr := perform(h.router, http.MethodGet, "/health/live", nil, ""); rr.Code != http.StatusOK {
		t.Fatalf("health must not be rate limited, got %d", rr.Code)
	}
}

func TestRouterAuthenticationFailures(t *testing.T) {
	h := newHarness(t, nil)
	tests := []struct {
		name       string
		headers    map[string]string
		wantStatus int
		wantCode   string
	}{
		{name: "missing header", wantStatus: http.StatusBadRequest, wantCode: service.TagMissingAuth},
		{name: "garbage token", headers: bearer("not-a-jwt"), wantStatus: http.StatusUnauthorized, wantCode: service.TagInvalidAuth},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := perform(h.router, http.MethodGet, "/v1/sessions", tt.headers, "")
			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, rr.Code)
			}
			if got := errorCode(t, rr); got != tt.wantCode {
				t.Fatalf("expected code %q, got %q", tt.wantCode, got)
			}
		})
	}
}

func TestRouterSessionLifecycle(t *testing.T) {
	h := newHarness(t, nil)
	first := h.register(t, "user@example.com")

	rr := perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":"USER@example.com","password":"correct horse"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("sign in: %d %s", rr.Code, rr.Body.String())
	}
	var second authData
	decode(t, rr, &second)

	rr = perform(h.router, http.MethodGet, "/v1/sessions", bearer(second.Tokens.AccessToken), "")
	var listed struct {
		Sessions []service.SessionView `json:"sessions"`
	}
	decode(t, rr, &listed)
	if rr.Code != http.StatusOK || len(listed.Sessions) != 2 {
		t.Fatalf("expected two sessions, got %d %+v", rr.Code, listed.Sessions)
	}

	body := fmt.Sprintf(`{"refresh_token":%q}`, first.Tokens.RefreshToken)
	rr = perform(h.router, http.MethodPost, "/v1/sessions/refresh", nil, body)
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rr.Code, rr.Body.String())
	}
	var rotated authData
	decode(t, rr, &rotated)
	if rotated.Session.UUID != first.Session.UUID || rotated.Tokens.RefreshToken == first.Tokens.RefreshToken {
		t.Fatalf("rotation should keep the session and change the tokens: %+v", rotated)
	}

	rr = perform(h.router, http.MethodPost, "/v1/sessions/refresh", nil, body)
	if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "refresh-token-reused" {
		t.Fatalf("replayed refresh token: %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodGet, "/v1/sessions", bearer(rotated.Tokens.AccessToken), "")
	if rr.Code != http.StatusGone || errorCode(t, rr) != service.TagSessionRevoked {
		t.Fatalf("reused chain should be revoked: %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(h.router, http.MethodDelete, "/v1/sessions/"+second.Session.UUID, bearer(second.Tokens.AccessToken), "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("revoking the current session by id should be refused, got %d", rr.Code)
	}
	rr = perform(h.router, http.MethodDelete, "/v1/sessions/missing", bearer(second.Tokens.AccessToken), "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rr.Code)
	}

	rr = perform(h.router, http.MethodPost, "/v1/auth/sign-out", bearer(second.Tokens.AccessToken), "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("sign out: %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodGet, "/v1/sessions", bearer(second.Tokens.AccessToken), "")
	if rr.Code != http.StatusGone {
		t.Fatalf("signed out session should be revoked, got %d", rr.Code)
	}
}

func TestRouterRevokeOtherSessions(t *testing.T) {
	h := newHarness(t, nil)
	first := h.register(t, "many@example.com")
	for i := 0; i < 2; i++ {
		rr := perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":"many@example.com","password":"correct horse","ephemeral":true}`)
		if rr.Code != http.StatusOK {
			t.Fatalf("sign in %d: %d", i, rr.Code)
		}
	}

	rr := perform(h.router, http.MethodDelete, "/v1/sessions", bearer(first.Tokens.AccessToken), "")
	var out struct {
		Revoked int64 `json:"revoked"`
	}
	decode(t, rr, &out)
	if rr.Code != http.StatusOK || out.Revoked != 2 {
		t.Fatalf("expected two revoked sessions, got %d %d", rr.Code, out.Revoked)
	}
}

func TestRouterSignInFailures(t *testing.T) {
	h := newHarness(t, nil)
	h.register(t, "locked@example.com")

	for i := 0; i < 2; i++ {
		rr := perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":"locked@example.com","password":"wrong"}`)
		if rr.Code != http.StatusUnauthorized || errorCode(t, rr) != "INVALID_CREDENTIALS" {
			t.Fatalf("attempt %d: %d %s", i, rr.Code, rr.Body.String())
		}
	}
	rr := perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":"locked@example.com","password":"wrong"}`)
	if rr.Code != http.StatusLocked {
		t.Fatalf("expected 423 after repeated failures, got %d", rr.Code)
	}
	rr = perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":"locked@example.com","password":"correct horse"}`)
	if rr.Code != http.StatusLocked {
		t.Fatalf("locked account must stay locked, got %d", rr.Code)
	}

	rr = perform(h.router, http.MethodPost, "/v1/auth/register", nil, `{"email":"locked@example.com","password":"x"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("duplicate registration should fail, got %d", rr.Code)
	}
	rr = perform(h.router, http.MethodPost, "/v1/auth/sign-in", nil, `{"email":`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body should fail, got %d", rr.Code)
	}
}

func TestRouterUserRoutesRequireSelf(t *testing.T) {
	h := newHarness(t, nil)
	alice := h.register(t, "alice@example.com")
	bob := h.register(t, "bob@example.com")

	rr := perform(h.router, http.MethodGet, "/v1/users/"+bob.User.UUID+"/settings", bearer(alice.Tokens.AccessToken), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for another user's settings, got %d", rr.Code)
	}
	rr = perform(h.router, http.MethodDelete, "/v1/users/"+bob.User.UUID, bearer(alice.Tokens.AccessToken), "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 deleting another account, got %d", rr.Code)
	}
}

func TestRouterSettings(t *testing.T) {
	h := newHarness(t, nil)
	user := h.register(t, "settings@example.com")
	auth := bearer(user.Tokens.AccessToken)
	base := "/v1/users/" + user.User.UUID

	rr := perform(h.router, http.MethodPut, base+"/settings", auth, `{"name":"MUTE_SIGN_IN_EMAILS","value":"muted"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create setting: %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodPut, base+"/settings", auth, `{"name":"MUTE_SIGN_IN_EMAILS","value":"not_muted"}`)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("replace setting: %d", rr.Code)
	}
	rr = perform(h.router, http.MethodPut, base+"/settings", auth, `{"name":"LISTED_AUTHOR_SECRETS","value":"[]"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create sensitive setting: %d", rr.Code)
	}
	rr = perform(h.router, http.MethodPut, base+"/settings", auth, `{"name":"MFA_SECRET","value":"JBSWY3DPEHPK3PXP"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("core user must not set MFA, got %d", rr.Code)
	}

	rr = perform(h.router, http.MethodGet, base+"/settings", auth, "")
	var list struct {
		Settings []service.SettingView `json:"settings"`
	}
	decode(t, rr, &list)
	if len(list.Settings) != 1 || *list.Settings[0].Value != "not_muted" {
		t.Fatalf("expected only the non-sensitive setting, got %+v", list.Settings)
	}

	rr = perform(h.router, http.MethodGet, base+"/settings/LISTED_AUTHOR_SECRETS", auth, "")
	if !strings.Contains(rr.Body.String(), `"sensitive":true`) || strings.Contains(rr.Body.String(), `"value"`) {
		t.Fatalf("sensitive setting leaked: %s", rr.Body.String())
	}
	rr = perform(h.router, http.MethodGet, base+"/settings/LISTED_AUTHOR_SECRETS?allow_sensitive=true", auth, "")
	var one struct {
		Setting service.SettingView `json:"setting"`
	}
	decode(t, rr, &one)
	if one.Setting.Value == nil || *one.Setting.Value != "[]" {
		t.Fatalf("expected decrypted value with opt-in, got %s", rr.Body.String())
	}

	rr = perform(h.router, http.MethodDelete, base+"/settings/MUTE_SIGN_IN_EMAILS", auth, "")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete setting: %d", rr.Code)
	}
	rr = perform(h.router, http.MethodDelete, base+"/settings/MUTE_SIGN_IN_EMAILS", auth, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("second delete should be 404, got %d", rr.Code)
	}

	rr = perform(h.router, http.MethodGet, base+"/subscription-settings/FILE_UPLOAD_BYTES_USED", auth, "")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("user without subscription should get 404, got %d", rr.Code)
	}
}

func TestRouterFeaturesAndInvitations(t *testing.T) {
	h := newHarness(t, nil)
	owner := h.register(t, "owner@example.com")
	friend := h.register(t, "friend@example.com")
	h.dispatch(t, event.TypeSubscriptionPurchased, event.SubscriptionPurchasedPayload{
		UserEmail:             "owner@example.com",
		SubscriptionID:        77,
		SubscriptionName:      string(domain.PlanPro),
		SubscriptionExpiresAt: h.clock.Now().Add(30 * 24 * time.Hour).UnixMicro(),
		Timestamp:             h.clock.NowMicros(),
	})

	rr := perform(h.router, http.MethodGet, "/v1/users/"+owner.User.UUID+"/features", bearer(owner.Tokens.AccessToken), "")
	var features struct {
		Features []domain.FeatureDescription `json:"features"`
	}
	decode(t, rr, &features)
	if rr.Code != http.StatusOK || len(features.Features) == 0 {
		t.Fatalf("expected pro features, got %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(h.router, http.MethodPost, "/v1/subscription-invites", bearer(owner.Tokens.AccessToken), `{"identifier":"  "}`)
	if rr.Code != http.StatusBadRequest || !strings.Contains(rr.Body.String(), "Missing invitee identifier") {
		t.Fatalf("expected missing identifier error, got %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodPost, "/v1/subscription-invites", bearer(owner.Tokens.AccessToken), `{"identifier":"friend@example.com"}`)
	var invited service.InvitationResult
	decode(t, rr, &invited)
	if rr.Code != http.StatusOK || invited.InvitationUUID == "" {
		t.Fatalf("invite: %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(h.router, http.MethodGet, "/v1/subscription-invites/"+invited.InvitationUUID+"/accept", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodGet, "/v1/users/"+friend.User.UUID+"/subscription-settings/FILE_UPLOAD_BYTES_LIMIT", bearer(friend.Tokens.AccessToken), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("shared subscription setting: %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(h.router, http.MethodDelete, "/v1/subscription-invites/"+invited.InvitationUUID, bearer(friend.Tokens.AccessToken), "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("invitee must not cancel, got %d", rr.Code)
	}
	rr = perform(h.router, http.MethodDelete, "/v1/subscription-invites/"+invited.InvitationUUID, bearer(owner.Tokens.AccessToken), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel: %d %s", rr.Code, rr.Body.String())
	}

	rr = perform(h.router, http.MethodGet, "/v1/subscription-invites", bearer(owner.Tokens.AccessToken), "")
	var list struct {
		Invitations []service.InvitationView `json:"invitations"`
	}
	decode(t, rr, &list)
	if len(list.Invitations) != 1 || list.Invitations[0].Status != domain.InvitationStatusCanceled {
		t.Fatalf("unexpected invitations %+v", list.Invitations)
	}
	rr = perform(h.router, http.MethodGet, "/v1/subscription-invites/"+invited.InvitationUUID+"/decline", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("declining a canceled invitation should fail, got %d", rr.Code)
	}
}

func TestRouterOfflineSubscription(t *testing.T) {
	h := newHarness(t, nil)
	h.dispatch(t, event.TypeSubscriptionPurchased, event.SubscriptionPurchasedPayload{
		UserEmail:             "desk@example.com",
		SubscriptionID:        88,
		SubscriptionName:      string(domain.PlanPlus),
		SubscriptionExpiresAt: h.clock.Now().Add(24 * time.Hour).UnixMicro(),
		Timestamp:             h.clock.NowMicros(),
		Offline:               true,
	})

	rr := perform(h.router, http.MethodPost, "/v1/offline/subscription-tokens", nil, `{"email":"nobody@example.com"}`)
	if rr.Code != http.StatusBadRequest || errorCode(t, rr) != service.TagNoSubscription {
		t.Fatalf("unknown email: %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodPost, "/v1/offline/subscription-tokens", nil, `{"email":"desk@example.com"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("create token: %d %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), `"token"`) {
		t.Fatalf("token must only travel by email: %s", rr.Body.String())
	}

	created := h.publisher.OfType(event.TypeOfflineSubscriptionTokenCreated)
	if len(created) != 1 {
		t.Fatalf("expected one token event, got %d", len(created))
	}
	var payload event.OfflineSubscriptionTokenCreatedPayload
	if err := created[0].Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rr = perform(h.router, http.MethodGet, "/v1/offline/features?email=desk@example.com", map[string]string{"X-Offline-Token": payload.Token}, "")
	var out struct {
		Features []domain.FeatureDescription `json:"features"`
	}
	decode(t, rr, &out)
	if rr.Code != http.StatusOK || len(out.Features) == 0 {
		t.Fatalf("offline features: %d %s", rr.Code, rr.Body.String())
	}
	rr = perform(h.router, http.MethodGet, "/v1/offline/features?email=desk@example.com", map[string]string{"X-Offline-Token": "wrong"}, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong token should be 401, got %d", rr.Code)
	}
}

func TestRouterDeleteAccount(t *testing.T) {
	h := newHarness(t, nil)
	user := h.register(t, "leaving@example.com")

	rr := perform(h.router, http.MethodDelete, "/v1/users/"+user.User.UUID, bearer(user.Tokens.AccessToken), "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "Successfully deleted user") {
		t.Fatalf("delete account: %d %s", rr.Code, rr.Body.String())
	}
	if got := len(h.publisher.OfType(event.TypeAccountDeletionRequested)); got != 1 {
		t.Fatalf("expected deletion request event, got %d", got)
	}
}

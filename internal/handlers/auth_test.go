package handlers

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/highlights-api/internal/config"
	"github.com/clipforge/highlights-api/internal/models"
	"github.com/clipforge/highlights-api/internal/token"
)

type fakeUserRepo struct {
	users map[string]models.User // keyed by email + "/" + tenantID
}

func (f *fakeUserRepo) CreateUser(tenantID, email, password, firstName, lastName string, roles []models.UserRole) (models.User, error) {
	u := models.User{ID: "u-" + email, TenantID: tenantID, Email: email, Roles: roles, IsActive: true}
	f.users[email+"/"+tenantID] = u
	return u, nil
}

func (f *fakeUserRepo) AuthenticateUser(email, password string) (models.User, error) {
	for _, u := range f.users {
		if u.Email == email && password == "correct-horse" {
			return u, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (f *fakeUserRepo) GetUserByEmail(email string) (models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return models.User{}, sql.ErrNoRows
}

func (f *fakeUserRepo) GetUserByEmailAndTenant(email, tenantID string) (models.User, error) {
	u, ok := f.users[email+"/"+tenantID]
	if !ok {
		return models.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserRepo) ListUsersByTenant(tenantID string) ([]models.User, error) {
	var out []models.User
	for _, u := range f.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	return out, nil
}

func (f *fakeUserRepo) DeactivateUser(userID string) error { return nil }

type fakeTenantRepo struct {
	tenants map[string]models.Tenant
}

func (f *fakeTenantRepo) CreateTenant(name string, tier models.PlanTier, brand models.BrandAttributes) (models.Tenant, error) {
	t := models.Tenant{ID: name, Name: name, Tier: tier, Brand: brand}
	f.tenants[t.ID] = t
	return t, nil
}

func (f *fakeTenantRepo) GetTenantByID(id string) (models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	return t, nil
}

func (f *fakeTenantRepo) ListTenants() ([]models.Tenant, error) { return nil, nil }

func (f *fakeTenantRepo) UpdateStatus(id string, status models.TenantStatus) (models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	t.Status = status
	f.tenants[id] = t
	return t, nil
}

func (f *fakeTenantRepo) UpdateBrand(id string, brand models.BrandAttributes) (models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	t.Brand = brand
	f.tenants[id] = t
	return t, nil
}

func (f *fakeTenantRepo) UpdateWebhook(id string, webhook models.WebhookConfig) (models.Tenant, error) {
	t, ok := f.tenants[id]
	if !ok {
		return models.Tenant{}, sql.ErrNoRows
	}
	t.Webhook = webhook
	f.tenants[id] = t
	return t, nil
}

type fakeMagicLinks struct {
	links map[string]models.MagicLink // keyed by token hash
}

func (f *fakeMagicLinks) CreateMagicLink(link models.MagicLink) (models.MagicLink, error) {
	link.ID = "ml-" + link.TokenHash[:8]
	f.links[link.TokenHash] = link
	return link, nil
}

func (f *fakeMagicLinks) ConsumeMagicLink(tokenHash string) (models.MagicLink, error) {
	link, ok := f.links[tokenHash]
	if !ok || link.ConsumedAt != nil || link.IsExpired(time.Now()) {
		return models.MagicLink{}, sql.ErrNoRows
	}
	now := link.ExpiresAt // any non-nil time marks it spent
	link.ConsumedAt = &now
	f.links[tokenHash] = link
	return link, nil
}

// capturingMailer records the link URL instead of sending mail.
type capturingMailer struct {
	lastLink string
}

func (m *capturingMailer) SendMagicLink(recipientEmail, tenantName, linkURL string) error {
	m.lastLink = linkURL
	return nil
}

func newAuthFixture(t *testing.T) (*AuthHandler, *capturingMailer, *token.Service) {
	t.Helper()
	users := &fakeUserRepo{users: make(map[string]models.User)}
	tenants := &fakeTenantRepo{tenants: make(map[string]models.Tenant)}
	links := &fakeMagicLinks{links: make(map[string]models.MagicLink)}
	mailer := &capturingMailer{}

	_, err := tenants.CreateTenant("t1", models.TierPro, models.BrandAttributes{})
	require.NoError(t, err)
	_, err = users.CreateUser("t1", "coach@club.test", "", "Alex", "Coach", []models.UserRole{models.RoleTenantAdmin, models.RoleTenantMember})
	require.NoError(t, err)

	cfg := &config.Config{}
	cfg.Email.MagicURLTemplate = "https://app.test/auth/magic/verify?token=%s"
	cfg.Session.CookieName = "clipforge_session"

	tokens := token.NewService("auth-test-secret")
	handler := NewAuthHandler(users, tenants, links, tokens, mailer, cfg, zerolog.Nop())
	return handler, mailer, tokens
}

func startMagicLink(t *testing.T, handler *AuthHandler, mailer *capturingMailer) string {
	t.Helper()
	body := `{"tenant_id": "t1", "email": "coach@club.test"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/magic/start", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.MagicStart(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotEmpty(t, mailer.lastLink)

	parsed, err := url.Parse(mailer.lastLink)
	require.NoError(t, err)
	plain := parsed.Query().Get("token")
	require.NotEmpty(t, plain)
	return plain
}

func TestMagicStartUnknownEmailStillAccepted(t *testing.T) {
	handler, mailer, _ := newAuthFixture(t)

	body := `{"tenant_id": "t1", "email": "stranger@club.test"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/magic/start", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	handler.MagicStart(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Empty(t, mailer.lastLink, "no link may be sent for unknown users")
}

func TestMagicVerifyIssuesSessionCookie(t *testing.T) {
	handler, mailer, tokens := newAuthFixture(t)
	plain := startMagicLink(t, handler, mailer)

	req := httptest.NewRequest(http.MethodGet, "/auth/magic/verify?token="+plain, nil)
	rec := httptest.NewRecorder()
	handler.MagicVerify(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tenantId":"t1"`)

	var session *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "clipforge_session" {
			session = c
		}
	}
	require.NotNil(t, session, "session cookie must be set")
	assert.True(t, session.HttpOnly)

	claims, err := tokens.Verify(session.Value)
	require.NoError(t, err)
	assert.Equal(t, token.AudienceTenant, claims.Audience)
	assert.Equal(t, "t1", claims.TenantID)
}

func TestMagicVerifySingleUse(t *testing.T) {
	handler, mailer, _ := newAuthFixture(t)
	plain := startMagicLink(t, handler, mailer)

	req := httptest.NewRequest(http.MethodGet, "/auth/magic/verify?token="+plain, nil)
	rec := httptest.NewRecorder()
	handler.MagicVerify(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	// The second presentation fails even though the link has not expired.
	req = httptest.NewRequest(http.MethodGet, "/auth/magic/verify?token="+plain, nil)
	rec = httptest.NewRecorder()
	handler.MagicVerify(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestMagicVerifyGarbageToken(t *testing.T) {
	handler, _, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodGet, "/auth/magic/verify?token="+strings.Repeat("f", 64), nil)
	rec := httptest.NewRecorder()
	handler.MagicVerify(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRequiresCredentials(t *testing.T) {
	handler, _, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"email": "coach@club.test"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "password is required")
}

func TestLoginWrongPassword(t *testing.T) {
	handler, _, _ := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"email": "coach@club.test", "password": "wrong"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestLoginIssuesTenantAdminToken(t *testing.T) {
	handler, _, tokens := newAuthFixture(t)

	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewBufferString(`{"email": "coach@club.test", "password": "correct-horse"}`))
	rec := httptest.NewRecorder()
	handler.Login(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	claims, err := tokens.Verify(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, token.AudienceTenant, claims.Audience)
	assert.Equal(t, "t1", claims.TenantID)
	assert.Contains(t, claims.Roles, models.RoleTenantAdmin)
}

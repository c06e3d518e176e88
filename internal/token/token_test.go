package token

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clipforge/highlights-api/internal/models"
)

func newTestService(secret string) *Service {
	return NewService(secret)
}

func TestIssueVerifyRoundTrip(t *testing.T) {
	svc := newTestService("test-secret")

	signed, err := svc.Issue(ClassTenantAdmin, Claims{
		Subject:  "user-1",
		TenantID: "tenant-a",
		Email:    "coach@club.example",
		Roles:    []models.UserRole{models.RoleTenantAdmin},
	}, time.Hour)
	require.NoError(t, err)

	claims, err := svc.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, AudienceTenant, claims.Audience)
	assert.Equal(t, "tenant-a", claims.TenantID)
	assert.Equal(t, "coach@club.example", claims.Email)
	assert.True(t, claims.HasRole(models.RoleTenantAdmin))
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := newTestService("secret-a")
	verifier := newTestService("secret-b")

	signed, err := issuer.Issue(ClassService, Claims{Subject: "svc-1"}, 0)
	require.NoError(t, err)

	_, err = verifier.Verify(signed)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

func TestVerifyRejectsExpired(t *testing.T) {
	svc := newTestService("test-secret")
	issuedAt := time.Now().Add(-3 * time.Hour)
	svc.now = func() time.Time { return issuedAt }

	signed, err := svc.Issue(ClassTenantMember, Claims{Subject: "u", TenantID: "t"}, time.Hour)
	require.NoError(t, err)

	svc.now = time.Now
	_, err = svc.Verify(signed)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	svc := newTestService("test-secret")
	_, err := svc.Verify("not.a.jwt")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestIssueTenantScopeRequiresTenantID(t *testing.T) {
	svc := newTestService("test-secret")
	_, err := svc.Issue(ClassTenantMember, Claims{Subject: "u"}, 0)
	assert.Error(t, err)
}

func TestIssueNonTenantForbidsTenantID(t *testing.T) {
	svc := newTestService("test-secret")
	_, err := svc.Issue(ClassPlatformAdmin, Claims{Subject: "u", TenantID: "t"}, 0)
	assert.Error(t, err)

	_, err = svc.Issue(ClassService, Claims{Subject: "u", TenantID: "t"}, 0)
	assert.Error(t, err)
}

func TestIssueEnforcesTTLBounds(t *testing.T) {
	svc := newTestService("test-secret")

	// Service tokens are capped far below user tokens.
	_, err := svc.Issue(ClassService, Claims{Subject: "svc"}, time.Hour)
	assert.Error(t, err)

	_, err = svc.Issue(ClassService, Claims{Subject: "svc"}, 10*time.Minute)
	assert.NoError(t, err)

	_, err = svc.Issue(ClassTenantMember, Claims{Subject: "u", TenantID: "t"}, 31*24*time.Hour)
	assert.Error(t, err)
}

func TestAudiencesAreDisjoint(t *testing.T) {
	svc := newTestService("test-secret")

	adminToken, err := svc.Issue(ClassPlatformAdmin, Claims{Subject: "op", Roles: []models.UserRole{models.RoleAdmin}}, 0)
	require.NoError(t, err)
	serviceToken, err := svc.Issue(ClassService, Claims{Subject: "svc"}, 0)
	require.NoError(t, err)
	tenantToken, err := svc.Issue(ClassTenantAdmin, Claims{Subject: "u", TenantID: "t"}, 0)
	require.NoError(t, err)

	adminClaims, err := svc.Verify(adminToken)
	require.NoError(t, err)
	serviceClaims, err := svc.Verify(serviceToken)
	require.NoError(t, err)
	tenantClaims, err := svc.Verify(tenantToken)
	require.NoError(t, err)

	audiences := map[Audience]bool{
		adminClaims.Audience:   true,
		serviceClaims.Audience: true,
		tenantClaims.Audience:  true,
	}
	assert.Len(t, audiences, 3, "each principal class maps to its own audience")
	assert.Empty(t, adminClaims.TenantID)
	assert.Empty(t, serviceClaims.TenantID)
	assert.Equal(t, "t", tenantClaims.TenantID)
}

func TestVerifyRejectsUnknownIssuer(t *testing.T) {
	_, err := claimsFromJWT(jwtClaims{})
	assert.ErrorIs(t, err, ErrMalformed)
}

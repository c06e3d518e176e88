package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"

	"github.com/clipforge/highlights-api/internal/models"
)

// Audience partitions tokens by principal class. A token issued for one
// audience is never accepted on a route gated for another, regardless of
// which role strings it carries.
type Audience string

const (
	AudiencePlatformAdmin Audience = "platform-admin"
	AudienceTenant        Audience = "tenant-scope"
	AudienceService       Audience = "internal-service"
)

// PrincipalClass is the category of caller a token represents. The class
// fixes the audience and the maximum lifetime of the token.
type PrincipalClass string

const (
	ClassPlatformAdmin PrincipalClass = "platform_admin"
	ClassTenantAdmin   PrincipalClass = "tenant_admin"
	ClassTenantMember  PrincipalClass = "tenant_member"
	ClassService       PrincipalClass = "service"
)

const issuerName = "clipforge"

var (
	ErrInvalidSignature = errors.New("token signature is invalid")
	ErrExpired          = errors.New("token is expired")
	ErrMalformed        = errors.New("token claims are malformed")
)

var classAudience = map[PrincipalClass]Audience{
	ClassPlatformAdmin: AudiencePlatformAdmin,
	ClassTenantAdmin:   AudienceTenant,
	ClassTenantMember:  AudienceTenant,
	ClassService:       AudienceService,
}

// TTL bounds per principal class. Issue rejects anything above the cap and
// substitutes the default for a zero TTL.
var classTTL = map[PrincipalClass]struct{ def, max time.Duration }{
	ClassPlatformAdmin: {def: 24 * time.Hour, max: 30 * 24 * time.Hour},
	ClassTenantAdmin:   {def: 24 * time.Hour, max: 365 * 24 * time.Hour},
	ClassTenantMember:  {def: 24 * time.Hour, max: 30 * 24 * time.Hour},
	ClassService:       {def: 5 * time.Minute, max: 15 * time.Minute},
}

// Claims is the verified content of an access token. Audience is the
// discriminator: TenantID is set exactly when Audience == AudienceTenant,
// and Roles are only meaningful within the token's own audience.
type Claims struct {
	Subject   string
	Audience  Audience
	TenantID  string
	Email     string
	Roles     []models.UserRole
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type jwtClaims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tid,omitempty"`
	Email    string   `json:"email,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// Service signs and verifies access tokens. Signing is stateless; the
// service holds no token records.
type Service struct {
	secret []byte
	now    func() time.Time
}

func NewService(secret string) *Service {
	return &Service{secret: []byte(secret), now: time.Now}
}

// Issue constructs a signed token for the given principal class. The class
// dictates the audience; passing claims with a conflicting audience is an
// error, as is a tenant-scoped class without a tenant ID.
func (s *Service) Issue(class PrincipalClass, claims Claims, ttl time.Duration) (string, error) {
	aud, ok := classAudience[class]
	if !ok {
		return "", errors.New("unknown principal class")
	}
	if claims.Audience != "" && claims.Audience != aud {
		return "", errors.New("claims audience conflicts with principal class")
	}
	if aud == AudienceTenant && claims.TenantID == "" {
		return "", errors.New("tenant-scoped token requires tenant_id")
	}
	if aud != AudienceTenant && claims.TenantID != "" {
		return "", errors.New("tenant_id is only valid on tenant-scoped tokens")
	}
	if claims.Subject == "" {
		return "", errors.New("subject is required")
	}

	bounds := classTTL[class]
	if ttl == 0 {
		ttl = bounds.def
	}
	if ttl < 0 || ttl > bounds.max {
		return "", errors.New("ttl exceeds bound for principal class")
	}

	now := s.now()
	roles := make([]string, 0, len(claims.Roles))
	for _, role := range claims.Roles {
		roles = append(roles, string(role))
	}

	jc := jwtClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   claims.Subject,
			Issuer:    issuerName,
			Audience:  jwt.ClaimStrings{string(aud)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: claims.TenantID,
		Email:    claims.Email,
		Roles:    roles,
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, jc).SignedString(s.secret)
}

// Verify checks signature, expiry, and claim shape. Failures are folded
// into the three sentinel errors; callers must not leak which one occurred
// to the remote peer.
func (s *Service) Verify(tokenString string) (Claims, error) {
	var jc jwtClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &jc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return s.secret, nil
	})
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Claims{}, ErrExpired
		case errors.Is(err, jwt.ErrSignatureInvalid), errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return Claims{}, ErrInvalidSignature
		default:
			return Claims{}, ErrMalformed
		}
	}
	if !parsed.Valid {
		return Claims{}, ErrMalformed
	}

	return claimsFromJWT(jc)
}

func claimsFromJWT(jc jwtClaims) (Claims, error) {
	if jc.Issuer != issuerName || jc.Subject == "" || len(jc.Audience) != 1 {
		return Claims{}, ErrMalformed
	}

	aud := Audience(jc.Audience[0])
	switch aud {
	case AudiencePlatformAdmin, AudienceService:
		if jc.TenantID != "" {
			return Claims{}, ErrMalformed
		}
	case AudienceTenant:
		// A tenant-scoped token without a tenant binding fails closed; it
		// never defaults to any tenant.
		if jc.TenantID == "" {
			return Claims{}, ErrMalformed
		}
	default:
		return Claims{}, ErrMalformed
	}

	roles := make([]models.UserRole, 0, len(jc.Roles))
	for _, role := range jc.Roles {
		roles = append(roles, models.UserRole(role))
	}
	if len(roles) > 0 && !models.IsValidRoleList(models.NormalizeRoles(roles)) {
		return Claims{}, ErrMalformed
	}

	claims := Claims{
		Subject:  jc.Subject,
		Audience: aud,
		TenantID: jc.TenantID,
		Email:    jc.Email,
		Roles:    models.NormalizeRoles(roles),
	}
	if jc.IssuedAt != nil {
		claims.IssuedAt = jc.IssuedAt.Time
	}
	if jc.ExpiresAt != nil {
		claims.ExpiresAt = jc.ExpiresAt.Time
	}
	return claims, nil
}

// HasRole reports whether the claims carry the given role. Authority still
// depends on the audience; this is a secondary check within an audience.
func (c Claims) HasRole(role models.UserRole) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

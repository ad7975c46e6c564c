package llmrouter

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// TenantClaims is the minimal claim set the router's HTTP-facing entrypoint
// requires: which tenant a generate call is billed and cached against.
type TenantClaims struct {
	jwt.RegisteredClaims
	TenantID string `json:"tenant_id"`
}

// TenantVerifier validates the bearer token on the router's public HTTP
// entrypoint and extracts the caller's tenant ID. It never issues tokens —
// that belongs to whatever identity provider sits in front of this core.
type TenantVerifier struct {
	signingKey []byte
	issuer     string
}

// NewTenantVerifier builds a verifier for HS256 tokens signed with
// signingKey and stamped with issuer.
func NewTenantVerifier(signingKey, issuer string) *TenantVerifier {
	return &TenantVerifier{signingKey: []byte(signingKey), issuer: issuer}
}

// VerifyTenant parses tokenString and returns the tenant ID it carries. It
// rejects tokens signed with anything but HMAC, tokens from another issuer,
// and tokens with no tenant_id claim.
func (v *TenantVerifier) VerifyTenant(tokenString string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenString, &TenantClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.signingKey, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse tenant token: %w", err)
	}
	claims, ok := token.Claims.(*TenantClaims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("invalid tenant token")
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return "", fmt.Errorf("unexpected token issuer %q", claims.Issuer)
	}
	if claims.TenantID == "" {
		return "", fmt.Errorf("token carries no tenant_id claim")
	}
	return claims.TenantID, nil
}

// IssueTenantToken signs a short-lived token for tenantID. Tests and local
// adapters use this to mint tokens without standing up a separate identity
// service; it is not exposed on the HTTP surface.
func (v *TenantVerifier) IssueTenantToken(tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := TenantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TenantID: tenantID,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.signingKey)
}

// ExtractBearerToken pulls the token out of an Authorization header value,
// rejecting anything that isn't the "Bearer <token>" form.
func ExtractBearerToken(authHeader string) (string, error) {
	const prefix = "Bearer "
	if !strings.HasPrefix(authHeader, prefix) || len(authHeader) == len(prefix) {
		return "", fmt.Errorf("invalid authorization header format")
	}
	return strings.TrimPrefix(authHeader, prefix), nil
}

// RequireTenant wraps next so that it only runs once the request's bearer
// token has been verified; the verified tenant ID is passed to next as its
// tenant argument. The request, including any tenant in its body, is left
// untouched.
func RequireTenant(verifier *TenantVerifier, next func(w http.ResponseWriter, r *http.Request, tenant string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, err := ExtractBearerToken(r.Header.Get("Authorization"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		tenant, err := verifier.VerifyTenant(token)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		next(w, r, tenant)
	}
}

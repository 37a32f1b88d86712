// Package webhookauth protects the mutating webhook subscription endpoints
// (POST /webhooks, DELETE /webhooks/{id}) with a signed bearer token.
// /compile, /validate, and GET /packages remain open; only the
// subscription-management surface needs a caller identity. Reduced to
// HS256 parse + validate, since there is no login flow to issue tokens
// from — operators mint their own with the shared WEBHOOK_JWT_SECRET.
package webhookauth

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ErrMissingToken and ErrInvalidToken are returned by Verify.
var (
	ErrMissingToken = errors.New("webhookauth: missing bearer token")
	ErrInvalidToken = errors.New("webhookauth: invalid bearer token")
)

// Issuer mints bearer tokens for webhook administration callers, mirroring
// tokens.GenerateAccessToken's MapClaims/HS256 shape without the User
// dependency this domain has no use for.
type Issuer struct {
	secret []byte
}

// NewIssuer builds an Issuer signing with secret (WEBHOOK_JWT_SECRET).
func NewIssuer(secret string) *Issuer {
	return &Issuer{secret: []byte(secret)}
}

// IssueToken returns a signed HS256 token for subject, valid for ttl.
func (i *Issuer) IssueToken(subject string, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": subject,
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
	}
	jt := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return jt.SignedString(i.secret)
}

// Verify parses and validates a bearer token string, returning its subject
// claim on success.
func (i *Issuer) Verify(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil || !token.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	sub, _ := claims["sub"].(string)
	return sub, nil
}

// Middleware is Gin middleware requiring a valid "Authorization: Bearer
// <token>" header.
func Middleware(issuer *Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(header, prefix) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": ErrMissingToken.Error()})
			return
		}
		sub, err := issuer.Verify(strings.TrimPrefix(header, prefix))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set("webhook_subject", sub)
		c.Next()
	}
}

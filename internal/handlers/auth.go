package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/getsentry/sentry-go/attribute"
	"github.com/golang-jwt/jwt/v5"

	"github.com/gitshopapp/dropship/internal/logging"
	"github.com/gitshopapp/dropship/internal/observability"
)

var ErrMissingToken = errors.New("missing bearer token")

type operatorContextKey struct{}

// TokenVerifier checks HS256 admin bearer tokens. The subject names the
// operator and must be present; tokens must carry an expiry.
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
	now    func() time.Time
}

func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	if len(strings.TrimSpace(secret)) < 32 {
		return nil, fmt.Errorf("admin token secret must be at least 32 characters")
	}
	return &TokenVerifier{secret: []byte(secret), leeway: 30 * time.Second, now: time.Now}, nil
}

// Verify returns the operator named by a valid token.
func (v *TokenVerifier) Verify(raw string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return "", err
	}
	subject := strings.TrimSpace(claims.Subject)
	if subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return subject, nil
}

// Issue signs a token for operator; used by tooling and tests.
func (v *TokenVerifier) Issue(operator string, ttl time.Duration) (string, error) {
	now := v.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   operator,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	})
	return token.SignedString(v.secret)
}

// RequireOperator rejects requests without a valid admin bearer token and
// records the operator on the request logger and meter.
func (h *Handlers) RequireOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		meter := observability.MeterFromContext(ctx)

		raw, err := bearerToken(r)
		if err == nil {
			var operator string
			operator, err = h.tokens.Verify(raw)
			if err == nil {
				meter.Count("security.admin_token.accepted", 1)
				ctx = context.WithValue(ctx, operatorContextKey{}, operator)
				ctx = logging.With(ctx, h.logger, "operator", operator)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}
		}

		meter.Count("security.admin_token.rejected", 1, sentry.WithAttributes(attribute.String("reason", tokenRejectReason(err))))
		h.loggerFromContext(ctx).Warn("rejected admin request", "error", err, "path", r.URL.Path)
		w.Header().Set("WWW-Authenticate", `Bearer realm="dropship-admin"`)
		writeJSON(ctx, w, http.StatusUnauthorized, errorResponse{Error: "unauthorized"})
	})
}

// OperatorFromContext returns the authenticated operator, if any.
func OperatorFromContext(ctx context.Context) string {
	operator, _ := ctx.Value(operatorContextKey{}).(string)
	return operator
}

func bearerToken(r *http.Request) (string, error) {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

func tokenRejectReason(err error) string {
	switch {
	case errors.Is(err, ErrMissingToken):
		return "missing"
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad_signature"
	default:
		return "invalid"
	}
}

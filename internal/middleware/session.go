package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kulsmauinformatics/sumatin/internal/session"
	"github.com/kulsmauinformatics/sumatin/pkg/logger"
)

const (
	SessionCookieName = "sumatin_session"
	sessionIssuer     = "sumatin-portal"
)

var errEmptySessionID = errors.New("session cookie carries no session id")

// CookieCodec signs and verifies the portal session cookie. The cookie is
// an HS256 token whose jti is the session id.
type CookieCodec struct {
	secret  []byte
	ttl     time.Duration
	nowFunc func() time.Time
}

func NewCookieCodec(secret string, ttl time.Duration) *CookieCodec {
	return &CookieCodec{secret: []byte(secret), ttl: ttl, nowFunc: time.Now}
}

// Issue returns a signed token for sid.
func (c *CookieCodec) Issue(sid string) (string, error) {
	now := c.nowFunc()
	claims := jwt.RegisteredClaims{
		ID:        sid,
		Issuer:    sessionIssuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its session id and expiry.
func (c *CookieCodec) Parse(token string) (string, time.Time, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("parse session cookie: %w", err)
	}
	if claims.ID == "" {
		return "", time.Time{}, errEmptySessionID
	}
	return claims.ID, claims.ExpiresAt.Time, nil
}

// SessionSource hands out the controller of a session id.
type SessionSource interface {
	Get(ctx context.Context, sid string) *session.Controller
}

// SessionConfig configures the Sessions middleware.
type SessionConfig struct {
	Codec  *CookieCodec
	Source SessionSource
	Secure bool
	Logger *slog.Logger
}

// Sessions resolves the request's portal session from its cookie, issuing
// a fresh session when the cookie is missing, invalid or expired. Cookies
// past half their lifetime are re-signed. The session id and controller
// are stored in the request context.
func Sessions(cfg SessionConfig) func(http.Handler) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sid, renew := cfg.resolve(r)
			if sid == "" {
				sid = uuid.New().String()
				renew = true
			}

			if renew {
				if err := cfg.setCookie(w, sid); err != nil {
					logger.WithContext(ctx, cfg.Logger).ErrorContext(ctx, "failed to issue session cookie",
						slog.String("error", err.Error()),
					)
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
			}

			ctx = logger.WithSessionID(ctx, sid)
			ctl := cfg.Source.Get(ctx, sid)
			if u := ctl.Snapshot().User; u != nil {
				ctx = logger.WithUserID(ctx, u.ID)
			}
			next.ServeHTTP(w, r.WithContext(session.NewContext(ctx, ctl)))
		})
	}
}

func (cfg SessionConfig) resolve(r *http.Request) (string, bool) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return "", true
	}
	sid, exp, err := cfg.Codec.Parse(cookie.Value)
	if err != nil {
		logger.WithContext(r.Context(), cfg.Logger).DebugContext(r.Context(), "discarding session cookie",
			slog.String("error", err.Error()),
		)
		return "", true
	}
	return sid, exp.Sub(cfg.Codec.nowFunc()) < cfg.Codec.ttl/2
}

func (cfg SessionConfig) setCookie(w http.ResponseWriter, sid string) error {
	token, err := cfg.Codec.Issue(sid)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(cfg.Codec.ttl / time.Second),
		HttpOnly: true,
		Secure:   cfg.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Package middleware はHTTPミドルウェアを提供する。
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
)

const (
	sessionCookieName = "nutrilog_session"
	sessionIssuer     = "nutrilog"
)

// ErrInvalidSessionToken はセッショントークンが不正であることを示す。
var ErrInvalidSessionToken = errors.New("invalid session token")

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// sessionIDContextKey はリクエストコンテキストにセッションIDを格納するためのキー。
var sessionIDContextKey = contextKey("session_id")

// SessionConfig はセッションミドルウェアの設定。
type SessionConfig struct {
	Secret       []byte
	MaxAge       time.Duration
	CookieSecure bool
	CookieDomain string
}

// NewSessionMiddleware は署名付きCookieからセッションIDを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
//
// Cookieがない、または署名や有効期限の検証に失敗した場合は新しいセッションIDを発行する。
// セッションIDは記録の分離キーであり認証ではない。トークンを知っていれば誰でもそのセッションとして振る舞える。
// 有効期限の半分を過ぎたトークンは同じIDのまま再発行する。
func NewSessionMiddleware(config SessionConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()

			var (
				sessionID string
				issuedAt  time.Time
			)
			if cookie, err := r.Cookie(sessionCookieName); err == nil && cookie.Value != "" {
				sessionID, issuedAt, err = parseSessionToken(config.Secret, cookie.Value)
				if err != nil {
					slog.Info("session token rejected, issuing a new one",
						slog.String("error", err.Error()),
					)
					sessionID = ""
				}
			}

			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			if issuedAt.IsZero() || now.Sub(issuedAt) > config.MaxAge/2 {
				if err := setSessionCookie(w, config, sessionID, now); err != nil {
					slog.Error("failed to issue session token", slog.String("error", err.Error()))
					http.Error(w, "internal server error", http.StatusInternalServerError)
					return
				}
			}

			next.ServeHTTP(w, r.WithContext(ContextWithSessionID(r.Context(), sessionID)))
		})
	}
}

// IssueSessionToken はセッションIDを含むHS256署名付きトークンを生成する。
func IssueSessionToken(secret []byte, sessionID string, now time.Time, maxAge time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": sessionIssuer,
		"sub": sessionID,
		"iat": now.Unix(),
		"exp": now.Add(maxAge).Unix(),
	})
	return token.SignedString(secret)
}

// parseSessionToken はトークンを検証し、セッションIDと発行時刻を返す。
func parseSessionToken(secret []byte, value string) (string, time.Time, error) {
	parsed, err := jwt.Parse(value, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(sessionIssuer), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return "", time.Time{}, ErrInvalidSessionToken
	}

	subject, err := claims.GetSubject()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("%w: %v", ErrInvalidSessionToken, err)
	}
	if _, err := uuid.Parse(subject); err != nil {
		return "", time.Time{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidSessionToken)
	}

	var issuedAt time.Time
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		issuedAt = iat.Time
	}
	return subject, issuedAt, nil
}

func setSessionCookie(w http.ResponseWriter, config SessionConfig, sessionID string, now time.Time) error {
	token, err := IssueSessionToken(config.Secret, sessionID, now, config.MaxAge)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token,
		Path:     "/",
		Domain:   config.CookieDomain,
		MaxAge:   int(config.MaxAge.Seconds()),
		HttpOnly: true,
		Secure:   config.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// SessionIDFromContext はリクエストコンテキストからセッションIDを取得する。
// セッションミドルウェアを通過したリクエストでのみ有効。
func SessionIDFromContext(ctx context.Context) (string, error) {
	sessionID, ok := ctx.Value(sessionIDContextKey).(string)
	if !ok || sessionID == "" {
		return "", fmt.Errorf("session ID not found in context")
	}
	return sessionID, nil
}

// ContextWithSessionID はコンテキストにセッションIDを注入する。
// 外側にアクセスログのミドルウェアがある場合は、そのログにも同じIDを記録させる。
func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	if fields, ok := ctx.Value(logFieldsContextKey).(*logFields); ok {
		fields.sessionID = sessionID
	}
	return context.WithValue(ctx, sessionIDContextKey, sessionID)
}

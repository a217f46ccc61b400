// Package middleware содержит HTTP middleware для сервиса бонусов.
package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"time"
)

type contextKey string

const actorKey contextKey = "actor"

const (
	// ActorCookieName содержит подписанный идентификатор автора изменений.
	ActorCookieName = "actor_token"
	// ActorHeaderName передаёт подписанный идентификатор при вызовах между сервисами.
	ActorHeaderName = "X-Actor-Token"

	actorCookieTTL = 30 * 24 * time.Hour
)

// ActorMiddleware определяет автора изменений по подписанному токену.
type ActorMiddleware struct {
	secretKey []byte
	required  bool
}

// NewActorMiddleware создаёт middleware с указанным секретным ключом.
// При required=true изменяющие запросы без токена отклоняются в Require.
func NewActorMiddleware(secret string, required bool) *ActorMiddleware {
	key := []byte(secret)
	if len(key) == 0 {
		randomKey := make([]byte, 32)
		if _, err := rand.Read(randomKey); err == nil {
			key = randomKey
		} else {
			key = []byte("default-secret-key")
		}
	}

	return &ActorMiddleware{
		secretKey: key,
		required:  required,
	}
}

// Middleware проверяет токен автора и добавляет его идентификатор в контекст запроса.
// Запрос без токена проходит анонимно, токен с неверной подписью отклоняется.
func (a *ActorMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get(ActorHeaderName)
		if token == "" {
			if cookie, err := r.Cookie(ActorCookieName); err == nil {
				token = cookie.Value
			}
		}

		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		actor, ok := a.parseToken(token)
		if !ok {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), actorKey, actor)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require отклоняет анонимные запросы, если автор изменений обязателен.
func (a *ActorMiddleware) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFromContext(r.Context()); !ok && a.required {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// SetActorCookie устанавливает cookie с подписанным идентификатором автора.
func (a *ActorMiddleware) SetActorCookie(w http.ResponseWriter, actor string) {
	cookie := &http.Cookie{
		Name:     ActorCookieName,
		Value:    a.Sign(actor),
		Path:     "/",
		Expires:  time.Now().Add(actorCookieTTL),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}

	http.SetCookie(w, cookie)
}

// Sign возвращает токен вида «actor.signature».
func (a *ActorMiddleware) Sign(actor string) string {
	return actor + "." + a.signature(actor)
}

func (a *ActorMiddleware) signature(actor string) string {
	mac := hmac.New(sha256.New, a.secretKey)
	mac.Write([]byte(actor))
	return hex.EncodeToString(mac.Sum(nil))
}

func (a *ActorMiddleware) parseToken(token string) (string, bool) {
	i := strings.LastIndex(token, ".")
	if i <= 0 || i == len(token)-1 {
		return "", false
	}

	actor, signature := token[:i], token[i+1:]
	if !hmac.Equal([]byte(signature), []byte(a.signature(actor))) {
		return "", false
	}

	return actor, true
}

// ActorFromContext извлекает идентификатор автора из контекста запроса.
func ActorFromContext(ctx context.Context) (string, bool) {
	actor, ok := ctx.Value(actorKey).(string)
	return actor, ok
}

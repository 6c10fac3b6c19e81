package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"backoffice/internal/cache"
	"backoffice/internal/logger"
	"backoffice/internal/policy"
	"backoffice/internal/repository"
	"backoffice/internal/service"
	"backoffice/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	AccessCookie  = "access_token"
	RefreshCookie = "refresh_token"

	actorKey = "actor"
)

// ActorLoader reads a user's roles and permissions from storage.
type ActorLoader interface {
	LoadActor(ctx context.Context, id uuid.UUID) (policy.Actor, error)
}

// Authenticator turns a bearer or cookie token into a policy.Actor, reading
// roles and permissions through the actor cache.
type Authenticator struct {
	tokens *service.Tokens
	loader ActorLoader
	actors cache.ActorCache
	secure bool
	log    zerolog.Logger
}

func NewAuthenticator(tokens *service.Tokens, loader ActorLoader, actors cache.ActorCache, secureCookies bool) *Authenticator {
	return &Authenticator{
		tokens: tokens,
		loader: loader,
		actors: actors,
		secure: secureCookies,
		log:    logger.WithComponent("auth"),
	}
}

// Authenticate rejects the request with 401 unless it carries a valid access
// token for an existing user.
func (a *Authenticator) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := tokenFromRequest(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
			return
		}
		actor, err := a.Resolve(c.Request.Context(), raw)
		if err != nil {
			msg := "Invalid token"
			if !errors.Is(err, service.ErrUnauthenticated) {
				a.log.Error().Err(err).Msg("failed to load actor")
				msg = "Unauthenticated"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, msg))
			return
		}
		c.Set(actorKey, actor)
		c.Next()
	}
}

// Resolve validates raw and returns the actor it belongs to.
func (a *Authenticator) Resolve(ctx context.Context, raw string) (policy.Actor, error) {
	userID, err := a.tokens.ParseAccess(raw)
	if err != nil {
		return policy.Actor{}, err
	}
	if actor, ok := a.actors.Get(ctx, userID); ok {
		return actor, nil
	}
	stamp := a.actors.Stamp(ctx, userID)
	actor, err := a.loader.LoadActor(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return policy.Actor{}, service.ErrUnauthenticated
		}
		return policy.Actor{}, err
	}
	a.actors.Set(ctx, actor, stamp)
	return actor, nil
}

// RequirePermission aborts with 403 unless the authenticated actor holds every
// listed permission. Super-admins always pass.
func RequirePermission(perms ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := CurrentActor(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Unauthenticated"))
			return
		}
		if actor.IsSuperAdmin() {
			c.Next()
			return
		}
		for _, p := range perms {
			if !actor.HasPermission(p) {
				c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: missing permission '"+p+"'"))
				return
			}
		}
		c.Next()
	}
}

// CurrentActor returns the actor stored by Authenticate.
func CurrentActor(c *gin.Context) (policy.Actor, bool) {
	v, ok := c.Get(actorKey)
	if !ok {
		return policy.Actor{}, false
	}
	actor, ok := v.(policy.Actor)
	return actor, ok
}

// SetActor stores actor on the request context; tests use it to skip token parsing.
func SetActor(c *gin.Context, actor policy.Actor) {
	c.Set(actorKey, actor)
}

func tokenFromRequest(c *gin.Context) (string, bool) {
	if raw, err := c.Cookie(AccessCookie); err == nil && raw != "" {
		return raw, true
	}
	header := c.GetHeader("Authorization")
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// SetTokenCookies sets access_token and refresh_token as HttpOnly cookies.
// Secure cookies are sent cross-site (SameSite=None); otherwise Lax.
func (a *Authenticator) SetTokenCookies(c *gin.Context, accessToken, refreshToken string, accessTTL, refreshTTL time.Duration) {
	c.SetSameSite(a.sameSite())
	c.SetCookie(AccessCookie, accessToken, int(accessTTL.Seconds()), "/", "", a.secure, true)
	c.SetCookie(RefreshCookie, refreshToken, int(refreshTTL.Seconds()), "/", "", a.secure, true)
}

// ClearTokenCookies removes access_token and refresh_token cookies
func (a *Authenticator) ClearTokenCookies(c *gin.Context) {
	c.SetSameSite(a.sameSite())
	c.SetCookie(AccessCookie, "", -1, "/", "", a.secure, true)
	c.SetCookie(RefreshCookie, "", -1, "/", "", a.secure, true)
}

func (a *Authenticator) sameSite() http.SameSite {
	if a.secure {
		return http.SameSiteNoneMode
	}
	return http.SameSiteLaxMode
}

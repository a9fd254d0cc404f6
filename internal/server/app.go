package server

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"neurogpt/backend/internal/account"
	"neurogpt/backend/internal/ai"
	"neurogpt/backend/internal/config"
	"neurogpt/backend/internal/dialogue"
	"neurogpt/backend/internal/knowledge"
)

type App struct {
	cfg      config.Config
	store    account.Store
	gate     *account.Gate
	kb       *knowledge.Base
	resolver *dialogue.Resolver
	contexts *dialogue.ContextStore
	ai       ai.Client
	mailer   Mailer
}

func New(cfg config.Config, store account.Store, kb *knowledge.Base, client ai.Client, mailer Mailer) *App {
	return &App{
		cfg:      cfg,
		store:    store,
		gate:     account.NewGate(store, cfg.FreeMessageLimit),
		kb:       kb,
		resolver: dialogue.NewResolver(kb, client, cfg.AIMaxOutputTokens, cfg.AITemperature),
		contexts: dialogue.NewContextStore(),
		ai:       client,
		mailer:   mailer,
	}
}

func (a *App) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins:     a.cfg.CORSAllowOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/health", a.health)

	api := router.Group(a.cfg.APIPrefix)
	api.POST("/auth/register", a.register)
	api.POST("/auth/login", a.login)
	api.POST("/auth/forgot-password", a.forgotPassword)
	api.POST("/auth/reset-password", a.resetPassword)

	// The resolution endpoint handles missing auth itself: it answers with a
	// fixed login-required body instead of a bare 401.
	api.POST("/chat/reply", a.getReply)
	api.POST("/chat/stream", a.streamReply)
	api.POST("/chat/short-reply", a.shortReply)
	api.GET("/prompts", a.getPrompts)
	api.GET("/quiz", a.getQuiz)

	authed := api.Group("")
	authed.Use(a.authMiddleware())
	authed.GET("/account/me", a.getMe)
	authed.POST("/subscription/checkout", a.subscriptionCheckout)
	authed.POST("/subscription/confirm", a.subscriptionConfirm)

	return router
}

func (a *App) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "neurogpt-api",
	})
}

func (a *App) authMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := a.userFromBearer(c)
		if err != nil {
			writeError(c, http.StatusUnauthorized, err.Error())
			return
		}
		c.Set("authUser", user)
		c.Next()
	}
}

// userFromBearer validates the Authorization header and loads the account it
// names. Used by the middleware and by the resolution endpoint's soft check.
func (a *App) userFromBearer(c *gin.Context) (account.User, error) {
	authHeader := c.GetHeader("Authorization")
	if !strings.HasPrefix(strings.ToLower(authHeader), "bearer ") {
		return account.User{}, errors.New("Bearer token required")
	}
	tokenString := strings.TrimSpace(authHeader[len("Bearer "):])
	if tokenString == "" {
		return account.User{}, errors.New("Bearer token required")
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if token.Method == nil || token.Method.Alg() != a.cfg.JWTAlgorithm {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(a.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid {
		return account.User{}, errors.New("Invalid bearer token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return account.User{}, errors.New("Invalid token payload")
	}
	if purpose, _ := claims["purpose"].(string); purpose != "" {
		// Purpose-scoped tokens (password reset) never grant API access.
		return account.User{}, errors.New("Invalid bearer token")
	}
	if a.cfg.JWTAudience != "" && !claimHasAudience(claims["aud"], a.cfg.JWTAudience) {
		return account.User{}, errors.New("Invalid token audience")
	}
	if a.cfg.JWTIssuer != "" {
		issuer, _ := claims["iss"].(string)
		if issuer != a.cfg.JWTIssuer {
			return account.User{}, errors.New("Invalid token issuer")
		}
	}
	sub, _ := claims["sub"].(string)
	sub = strings.TrimSpace(sub)
	if sub == "" {
		return account.User{}, errors.New("Token subject missing")
	}

	user, err := a.store.UserByID(c.Request.Context(), sub)
	if errors.Is(err, account.ErrNotFound) {
		return account.User{}, errors.New("User not found")
	}
	if err != nil {
		return account.User{}, err
	}
	return user, nil
}

func claimHasAudience(value any, audience string) bool {
	switch v := value.(type) {
	case string:
		return v == audience
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok && s == audience {
				return true
			}
		}
	case []string:
		for _, item := range v {
			if item == audience {
				return true
			}
		}
	}
	return false
}

func authUserFromContext(c *gin.Context) (account.User, bool) {
	raw, ok := c.Get("authUser")
	if !ok {
		return account.User{}, false
	}
	user, ok := raw.(account.User)
	return user, ok
}

func writeError(c *gin.Context, status int, detail string) {
	c.AbortWithStatusJSON(status, gin.H{"detail": detail})
}

func mustJSON(c *gin.Context, payload any) bool {
	if err := c.ShouldBindJSON(payload); err != nil {
		writeError(c, http.StatusBadRequest, "Invalid request payload")
		return false
	}
	return true
}

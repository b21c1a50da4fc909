// Package server assembles the HTTP surface from its dependencies.
package server

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/auth"
	"github.com/mikepea/linkpage/pkg/linkpage/config"
	"github.com/mikepea/linkpage/pkg/linkpage/identity"
	"github.com/mikepea/linkpage/pkg/linkpage/importexport"
	"github.com/mikepea/linkpage/pkg/linkpage/legacy"
	"github.com/mikepea/linkpage/pkg/linkpage/links"
	"github.com/mikepea/linkpage/pkg/linkpage/linkurl"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
	"github.com/mikepea/linkpage/pkg/linkpage/ratelimit"
	"github.com/mikepea/linkpage/pkg/linkpage/redirect"
	"github.com/mikepea/linkpage/pkg/linkpage/stats"
	"github.com/mikepea/linkpage/pkg/linkpage/views"
	"gorm.io/gorm"
)

// sessionMaxAge is one week, in seconds.
const sessionMaxAge = 7 * 24 * 60 * 60

// Deps is everything the router needs. Long-running workers behind Clicks
// and Limiter are started by the caller.
type Deps struct {
	Config   config.Config
	DB       *gorm.DB
	Identity identity.Provider
	Sessions sessions.Store
	Tokens   *auth.TokenIssuer
	Clicks   *stats.Recorder
	Legacy   *legacy.Store
	Limiter  *ratelimit.IPRateLimiter
}

// NewSessionStore returns the configured session backend. The memory store
// loses sessions on restart; the cookie store keeps them client-side.
func NewSessionStore(cfg config.Config) sessions.Store {
	secret := []byte(cfg.SessionSecret)

	var store sessions.Store
	if cfg.SessionStore == config.SessionStoreCookie {
		store = cookie.NewStore(secret)
	} else {
		store = memstore.NewStore(secret)
	}

	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		Secure:   cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// NewRouter builds the gin engine with every route registered.
func NewRouter(d Deps) (*gin.Engine, error) {
	if err := linkurl.RegisterValidation(); err != nil {
		return nil, err
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware())
	r.Use(sessions.Sessions(auth.SessionName, d.Sessions))
	r.SetHTMLTemplate(views.Templates())

	guard := d.Limiter.Middleware()
	baseURL := d.Config.BaseURL

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authHandler := auth.NewHandler(d.DB, d.Identity, d.Tokens)
	authHandler.RegisterRoutes(r, guard)

	linkService := links.NewService(d.DB)
	linksHandler := links.NewHandler(linkService, d.Clicks, baseURL)
	linksHandler.RegisterRoutes(r.Group("", auth.RequireSession()))
	linksHandler.RegisterPublicRoutes(r)

	redirect.NewHandler(d.DB, d.Clicks).RegisterRoutes(r)

	api := r.Group("/api")
	{
		authHandler.RegisterAPIRoutes(api, guard)

		linksAPI := api.Group("/links", auth.RequireToken(d.Tokens))
		linksHandler.RegisterAPIRoutes(linksAPI)
		importexport.NewHandler(linkService, baseURL).RegisterRoutes(linksAPI)
	}

	// The legacy catch-all must come after every static route.
	legacy.NewHandler(d.Legacy, baseURL).RegisterRoutes(r, guard)

	return r, nil
}

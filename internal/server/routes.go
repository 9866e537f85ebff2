package server

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// HeaderCaller carries the authenticated principal, set by the gateway in
// front of the service
const HeaderCaller = "X-Caller"

const callerKey = "caller"

// RegisterRoutes configures all API routes, middleware, and error handlers
func RegisterRoutes(e *echo.Echo, h *Handlers, cfg ServerConfig, gatherer prometheus.Gatherer) {
	e.HTTPErrorHandler = NotFoundJSON()
	e.Use(SetNoCacheHeaders)

	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/v1", SetJSONContentType)
	if len(cfg.APIKeys) > 0 {
		v1.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
			KeyLookup: "header:X-API-Key",
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/v1/health"
			},
			Validator: func(key string, c echo.Context) (bool, error) {
				for _, k := range cfg.APIKeys {
					if subtle.ConstantTimeCompare([]byte(key), []byte(k)) == 1 {
						return true, nil
					}
				}
				return false, nil
			},
		}))
	}

	limit := rateLimiter(cfg)

	v1.GET("/health", h.Health)
	v1.GET("/tokens", h.Tokens)
	v1.GET("/pools", h.Pools)
	v1.GET("/pools/:id", h.Pool)
	v1.GET("/requests/:id", h.Request)
	v1.GET("/users/:user/requests", h.UserRequests)
	v1.GET("/users/:user/claims", h.UserClaims)
	v1.GET("/users/:user/lp", h.UserLP)

	v1.GET("/quote/swap", h.QuoteSwap)
	v1.GET("/quote/add_liquidity", h.QuoteAddLiquidity)
	v1.GET("/quote/remove_liquidity", h.QuoteRemoveLiquidity)

	v1.POST("/swap", h.Swap, RequireCaller, limit)
	v1.POST("/swap/async", h.SubmitSwap, RequireCaller, limit)
	v1.POST("/liquidity/add", h.AddLiquidity, RequireCaller, limit)
	v1.POST("/liquidity/remove", h.RemoveLiquidity, RequireCaller, limit)
	v1.POST("/claims/:id/claim", h.Claim, RequireCaller, limit)

	admin := v1.Group("/admin", RequireCaller, RequireAdmin(cfg.AdminCallers))
	admin.POST("/pools", h.CreatePool)
	admin.DELETE("/pools/:id", h.RemovePool)
	admin.GET("/switches", h.ListSwitches)
	admin.PUT("/switches/:op", h.SetSwitch)
	admin.GET("/supply", h.CheckSupply)

	e.RouteNotFound("/*", func(c echo.Context) error {
		return c.JSON(http.StatusNotFound, ErrorResponse{Error: "not found", Code: http.StatusNotFound})
	})
}

// RequireCaller rejects requests without an X-Caller header
func RequireCaller(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		caller := strings.TrimSpace(c.Request().Header.Get(HeaderCaller))
		if caller == "" {
			return echo.NewHTTPError(http.StatusUnauthorized)
		}
		c.Set(callerKey, caller)
		return next(c)
	}
}

// RequireAdmin allows only the listed callers
func RequireAdmin(admins []string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(admins))
	for _, a := range admins {
		allowed[a] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if !allowed[callerOf(c)] {
				return echo.NewHTTPError(http.StatusForbidden)
			}
			return next(c)
		}
	}
}

func callerOf(c echo.Context) string {
	if v, ok := c.Get(callerKey).(string); ok {
		return v
	}
	return ""
}

// rateLimiter throttles mutating routes per caller
func rateLimiter(cfg ServerConfig) echo.MiddlewareFunc {
	if cfg.RateLimit <= 0 {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(cfg.RateLimit),
			Burst:     burst,
			ExpiresIn: 3 * time.Minute,
		}),
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return callerOf(c), nil
		},
	})
}

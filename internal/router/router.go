// internal/router/router.go
package router

import (
	"fmt"
	"net/http"
	"time"

	"lasso-go/internal/config"
	"lasso-go/internal/handlers"
	"lasso-go/internal/lasso"
	"lasso-go/internal/services"

	ratelimit "github.com/JGLTechnologies/gin-rate-limit"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/unrolled/secure"
	"go.uber.org/zap"
)

// Deps are the long-lived collaborators the routes are served from.
type Deps struct {
	Trials   *services.TrialService
	Stimulus lasso.Stimulus
}

func keyFunc(c *gin.Context) string {
	return c.ClientIP()
}

func errorHandler(c *gin.Context, info ratelimit.Info) {
	c.String(http.StatusTooManyRequests, "Too many requests. Try again in "+time.Until(info.ResetTime).Round(time.Second).String())
}

func Setup(log *zap.Logger, deps Deps) *gin.Engine {
	conf := config.Conf

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(RequestLogger(log))

	store := cookie.NewStore([]byte(conf.Server.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		HttpOnly: true,
		Secure:   conf.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   86400 * 7,
	})
	router.Use(sessions.Sessions("lasso_session", store))

	// Everything below relies on the session.
	router.Use(NonceMiddleware())
	router.Use(CSRFProtection())
	router.Use(ParticipantMiddleware(log))

	router.Use(func(c *gin.Context) {
		if c.GetHeader("HX-Request") != "true" {
			csp := fmt.Sprintf(
				"script-src 'self' https://cdn.jsdelivr.net 'nonce-%s'; style-src 'self' 'unsafe-inline'; img-src 'self' data:",
				c.GetString(handlers.CSPNonceKey),
			)
			c.Header("Content-Security-Policy", csp)
		}
		c.Next()
	})

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
	})
	router.Use(func(c *gin.Context) {
		if err := secureMiddleware.Process(c.Writer, c.Request); err != nil {
			c.Abort()
			return
		}
	})

	router.Static("/assets", "./assets")

	trialHandler := handlers.NewTrialHandler(log, deps.Trials, deps.Stimulus, conf.Trial.CanvasWidth, conf.Trial.CanvasHeight)
	resultsHandler := handlers.NewResultsHandler(log, conf.Trial.CanvasWidth, conf.Trial.CanvasHeight)

	rateLimitStore := ratelimit.InMemoryStore(&ratelimit.InMemoryOptions{
		Rate:  time.Minute,
		Limit: conf.Server.BeginRateLimit,
	})
	limiter := ratelimit.RateLimiter(rateLimitStore, &ratelimit.Options{
		ErrorHandler: errorHandler,
		KeyFunc:      keyFunc,
	})

	router.GET("/", trialHandler.ShowPage)
	router.GET("/stimulus.json", trialHandler.Stimulus)

	trialRoutes := router.Group("/trial")
	{
		trialRoutes.POST("/begin", limiter, trialHandler.Begin)
		trialRoutes.POST("/events", trialHandler.Events)
		trialRoutes.POST("/retry", trialHandler.Retry)
		trialRoutes.GET("/status", trialHandler.Status)
		trialRoutes.GET("/snapshot.png", trialHandler.Snapshot)
		trialRoutes.DELETE("", trialHandler.Abandon)
	}

	resultsRoutes := router.Group("/results")
	{
		resultsRoutes.GET("", resultsHandler.ShowResults)
		resultsRoutes.GET("/:id", resultsHandler.Export)
		resultsRoutes.GET("/:id/chart", resultsHandler.ShowChart)
	}

	return router
}

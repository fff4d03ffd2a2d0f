package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/suPer8Hu/anthem-ai/internal/common"
	"github.com/suPer8Hu/anthem-ai/internal/config"
	"github.com/suPer8Hu/anthem-ai/internal/httpapi/handlers"
	"github.com/suPer8Hu/anthem-ai/internal/httpapi/middleware"
)

// LocalOwner owns every run when the API runs without JWT_SECRET in
// development.
const LocalOwner = "local"

func NewRouter(cfg config.Config, h *handlers.Handler, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recovery(logger))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	r.GET("/ping", h.Ping)

	authGroup := r.Group("/anthems")
	if cfg.JWTSecret == "" && cfg.AppEnv == "development" {
		logger.Warn().Msg("JWT_SECRET is empty, all runs belong to the local owner")
		authGroup.Use(middleware.FixedOwner(LocalOwner))
	} else {
		authGroup.Use(middleware.AuthRequired(cfg.JWTSecret))
	}

	authGroup.POST("", h.CreateAnthem)
	authGroup.GET("", h.ListAnthems)
	authGroup.GET("/:id", h.GetAnthem)
	authGroup.GET("/:id/songs", h.ListAnthemSongs)
	authGroup.GET("/:id/report", h.GetAnthemReport)
	authGroup.GET("/:id/events", h.StreamAnthemEvents)
	return r
}

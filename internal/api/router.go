// Package api wires the contacts HTTP routes.
package api

import (
	"net/http"

	"contacts-api/internal/logger"
	"contacts-api/internal/metrics"
	"contacts-api/internal/repository"
	"contacts-api/internal/storage"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// Dependencies bundles what the router needs. Events and Hub are optional.
type Dependencies struct {
	Contacts      repository.ContactRepository
	Storage       storage.Storage
	Events        Events
	Hub           http.HandlerFunc
	Ping          func() error
	MaxUploadSize int64
	CORSOrigin    string
	Logger        zerolog.Logger
}

func NewRouter(deps Dependencies) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logger.RequestLogger(deps.Logger), metrics.Middleware(), cors(deps.CORSOrigin))

	contactHandler := NewContactHandler(deps.Contacts, deps.Events)
	uploadHandler := NewUploadHandler(deps.Storage, deps.MaxUploadSize, deps.Events)
	healthHandler := NewHealthHandler(deps.Ping)

	r.POST("/upload", uploadHandler.Upload)

	r.GET("/contacts", contactHandler.GetContacts)
	r.GET("/contacts/:id", contactHandler.GetContact)
	r.PUT("/contacts/:id", contactHandler.UpdateContact)
	r.DELETE("/contacts/:id", contactHandler.DeleteContact)

	r.GET("/healthz", healthHandler.Health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	if deps.Hub != nil {
		r.GET("/ws", gin.WrapF(deps.Hub))
	}

	return r
}

func cors(origin string) gin.HandlerFunc {
	if origin == "" {
		origin = "*"
	}
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

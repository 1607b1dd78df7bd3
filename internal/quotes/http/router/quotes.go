package router

import (
	"github.com/gin-gonic/gin"
	"mdviewer.com/internal/quotes/handler"
)

func Quotes(r *gin.Engine, h *handler.Quotes) {
	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.POST("/historical", h.Historical)
	}
	r.GET("/ws/live", h.Live)
}

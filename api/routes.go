// Package api exposes the fit engine, headshot processing and card rendering
// over HTTP.
package api

import (
	"github.com/gin-gonic/gin"

	"github.com/ByLCY/capstone/imagecrop"
	"github.com/ByLCY/capstone/templates"
)

// Server holds what handlers share between requests. Nothing in it is
// mutated after construction; measurement state is per request.
type Server struct {
	Photos *imagecrop.Engine
	// Template is a card template path, or "" for the embedded default.
	Template string
	BaseDir  string
}

// NewServer returns a server using the default photo engine and template.
func NewServer() *Server {
	return &Server{Photos: imagecrop.NewEngine(), Template: templates.DefaultName}
}

// RegisterRoutes mounts the /api group on r.
func (s *Server) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		api.GET("/health", health)
		api.POST("/fit", s.fitHandler)
		api.POST("/headshot", s.headshotHandler)
		api.POST("/card", s.cardHandler)
		api.GET("/qr", qrHandler)
	}
}

// NewRouter returns a gin engine with logging, recovery and the API routes.
func NewRouter(s *Server) *gin.Engine {
	r := gin.Default()
	r.MaxMultipartMemory = 32 << 20
	s.RegisterRoutes(r)
	return r
}

package api

import (
	"net/http"

	"go-workbook-pipeline/internal/api/handler"
	"go-workbook-pipeline/internal/app"
	"go-workbook-pipeline/pkg/router"

	_ "go-workbook-pipeline/docs"

	"github.com/rs/cors"
)

// NewServer returns the routed API wrapped in CORS.
func NewServer(a *app.App) http.Handler {
	r := router.New()
	RegisterRoutes(r, handler.New(a))

	c := cors.New(cors.Options{
		AllowedOrigins:   a.Config.Server.CORSOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
	})
	return c.Handler(r)
}

package api

import (
	"net/http"

	"route-pipeline/internal/api/docs"
	"route-pipeline/internal/api/handler"
	"route-pipeline/pkg/router"

	httpSwagger "github.com/swaggo/http-swagger"
)

// RegisterRoutes mounts the status API, the metrics endpoint and the swagger UI.
func RegisterRoutes(r *router.Router, h *handler.Handler, metrics http.Handler) {
	docs.SwaggerInfo.BasePath = "/api/v1"

	r.GET("/api/v1/runs", h.ListRuns)
	// More specific routes first
	r.GET("/api/v1/runs/latest", h.LatestRun)
	r.GET("/api/v1/runs/*", h.GetRun)
	r.GET("/api/v1/collectors", h.ListCollectors)
	r.POST("/api/v1/collect", h.TriggerCollect)

	if metrics != nil {
		r.Handle(http.MethodGet, "/metrics", metrics)
	}
	r.Handle(http.MethodGet, "/swagger/*", httpSwagger.WrapHandler)
}

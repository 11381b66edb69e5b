package router

import (
	"net/http"

	"acm-chatbot/backend/pkg/validator"

	"github.com/gin-gonic/gin"
)

// openAPIPath serves the raw document.
const openAPIPath = "/api/docs/openapi.yaml"

// AddOpenAPIValidation validates requests against doc and serves it
func (r *Router) AddOpenAPIValidation(doc []byte) error {
	v, err := validator.NewOpenAPIValidator(doc)
	if err != nil {
		r.Logger.Error("Failed to initialize OpenAPI validator", "error", err)
		return err
	}

	r.Engine.Use(v.Middleware())
	r.Logger.Info("OpenAPI validation enabled", "paths", v.Document().Paths.Len())

	r.Engine.GET(openAPIPath, func(c *gin.Context) {
		c.Data(http.StatusOK, "application/yaml", doc)
	})
	r.Logger.Info("OpenAPI schema available at", "url", openAPIPath)
	return nil
}

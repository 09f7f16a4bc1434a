package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pubplan/pubplan/common"
)

var validate = validator.New()

// Bind decodes the JSON request body into dest and runs its validate tags.
// On failure it records an APIError on the context and returns false; the
// caller just aborts.
func Bind[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.Error(common.Errf(http.StatusBadRequest, "invalid json: %v", err.Error()))
		return false
	}

	if err := validate.Struct(dest); err != nil {
		c.Error(common.APIError{
			Status:  http.StatusBadRequest,
			Message: "validation failed",
			Fields:  FormatValidationErrors(err),
		})
		return false
	}

	return true
}

// FormatValidationErrors flattens validator errors into a field -> failed-tag
// map for the response body.
func FormatValidationErrors(err error) map[string]any {
	fields := map[string]any{}
	for _, e := range err.(validator.ValidationErrors) {
		fields[e.Field()] = "failed " + e.Tag()
	}
	return fields
}

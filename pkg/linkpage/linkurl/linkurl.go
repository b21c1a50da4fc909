package linkurl

import (
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// ValidationError represents a rejected destination URL
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ValidateDestination enforces the one policy every link-creation path uses:
// an absolute http or https URL with a host.
func ValidateDestination(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &ValidationError{"URL is required"}
	}

	u, err := url.Parse(raw)
	if err != nil {
		return &ValidationError{"URL is malformed"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &ValidationError{"URL must start with http:// or https://"}
	}
	if u.Host == "" {
		return &ValidationError{"URL must include a host"}
	}
	return nil
}

// RegisterValidation adds the "httpurl" binding tag to gin's validator so
// request structs can declare the policy declaratively.
func RegisterValidation() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	return v.RegisterValidation("httpurl", func(fl validator.FieldLevel) bool {
		return ValidateDestination(fl.Field().String()) == nil
	})
}

// Base returns the externally visible origin, preferring the configured value.
func Base(c *gin.Context, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}

	scheme := "http"
	if c.Request.TLS != nil {
		scheme = "https"
	}
	if proto := c.GetHeader("X-Forwarded-Proto"); proto != "" {
		scheme = strings.TrimSpace(strings.Split(proto, ",")[0])
	}
	return scheme + "://" + c.Request.Host
}

// Short joins an origin, an optional route prefix and a code.
func Short(base, prefix, code string) string {
	base = strings.TrimRight(base, "/")
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return base + "/" + code
	}
	return base + "/" + prefix + "/" + code
}

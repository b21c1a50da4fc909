package legacy

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/linkurl"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
)

// Handler handles the anonymous shorten endpoints
type Handler struct {
	store   *Store
	baseURL string
}

// NewHandler creates a new legacy handler
func NewHandler(store *Store, baseURL string) *Handler {
	return &Handler{store: store, baseURL: baseURL}
}

// ShortenRequest is the anonymous shorten body
type ShortenRequest struct {
	LongURL string `json:"longUrl" binding:"required,httpurl"`
}

// ShortenResponse carries the new short URL
type ShortenResponse struct {
	ShortURL string `json:"shortUrl"`
}

// Shorten stores a URL in memory and returns its short URL
func (h *Handler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid URL"})
		return
	}

	code, err := h.store.Put(req.LongURL)
	if err != nil {
		if errors.Is(err, ErrFull) {
			logger.Warn().Int("entries", h.store.Len()).Msg("legacy short url table full")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Short URL capacity reached, try again later"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to shorten URL"})
		return
	}

	c.JSON(http.StatusOK, ShortenResponse{
		ShortURL: linkurl.Short(linkurl.Base(c, h.baseURL), "", code),
	})
}

// Resolve redirects a code from the in-memory table
func (h *Handler) Resolve(c *gin.Context) {
	url, ok := h.store.Get(c.Param("shortId"))
	if !ok {
		c.String(http.StatusNotFound, "Short URL not found.")
		return
	}
	c.Redirect(http.StatusFound, url)
}

// RegisterRoutes registers the legacy routes. The catch-all resolve route
// should be registered after every static route.
func (h *Handler) RegisterRoutes(r gin.IRouter, guard ...gin.HandlerFunc) {
	r.POST("/shorten", append(guard[:len(guard):len(guard)], h.Shorten)...)
	r.GET("/:shortId", h.Resolve)
}

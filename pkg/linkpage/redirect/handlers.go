package redirect

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mikepea/linkpage/pkg/linkpage/shortid"
	"gorm.io/gorm"
)

// ErrNotFound is returned for codes with no stored link
var ErrNotFound = errors.New("short code not found")

// ClickRecorder accepts click events without blocking
type ClickRecorder interface {
	Record(click models.Click) bool
}

// Handler handles redirect requests
type Handler struct {
	db     *gorm.DB
	clicks ClickRecorder
}

// NewHandler creates a new redirect handler
func NewHandler(db *gorm.DB, clicks ClickRecorder) *Handler {
	return &Handler{db: db, clicks: clicks}
}

// Resolve maps a short code to its link
func (h *Handler) Resolve(ctx context.Context, code string) (*models.Link, error) {
	if !shortid.Valid(code) {
		return nil, ErrNotFound
	}

	var link models.Link
	if err := h.db.WithContext(ctx).Where("short_id = ?", code).First(&link).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &link, nil
}

// Redirect resolves a durable short code, queues a click and redirects.
// Destinations were validated when the link was created.
func (h *Handler) Redirect(c *gin.Context) {
	code := c.Param("shortId")

	link, err := h.Resolve(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.String(http.StatusNotFound, "Short URL not found.")
			return
		}
		logger.Error().Err(err).Str("short_id", code).Msg("failed to resolve short code")
		c.String(http.StatusInternalServerError, "Failed to resolve short URL")
		return
	}

	// Fire and forget; a full click buffer never blocks the redirect.
	h.clicks.Record(models.Click{
		ShortID:   link.ShortID,
		ClickedAt: time.Now().UTC(),
		Referrer:  c.Request.Referer(),
		UserAgent: c.Request.UserAgent(),
	})

	c.Redirect(http.StatusFound, link.URL)
}

// RegisterRoutes registers redirect routes
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/s/:shortId", h.Redirect)
}

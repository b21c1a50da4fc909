package importexport

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/auth"
	"github.com/mikepea/linkpage/pkg/linkpage/linkurl"
	"github.com/mikepea/linkpage/pkg/linkpage/links"
)

// MaxImport caps the bookmarks accepted in one request.
const MaxImport = 1000

// Handler handles import/export requests
type Handler struct {
	svc     *links.Service
	baseURL string
}

// NewHandler creates a new import/export handler
func NewHandler(svc *links.Service, baseURL string) *Handler {
	return &Handler{svc: svc, baseURL: baseURL}
}

// Bookmark represents a link in Pinboard-compatible JSON. ShortURL is only
// set on export and ignored on import.
type Bookmark struct {
	Href        string `json:"href"`
	Description string `json:"description"`
	Time        string `json:"time,omitempty"`
	Shared      string `json:"shared,omitempty"`
	ShortURL    string `json:"short_url,omitempty"`
}

// ImportRequest represents an import request
type ImportRequest struct {
	Bookmarks []Bookmark `json:"bookmarks" binding:"required"`
}

// ImportResult represents the result of an import operation
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// Import creates a link per bookmark. Each bookmark goes through the same
// URL policy as the dashboard; rejected ones are reported and skipped.
func (h *Handler) Import(c *gin.Context) {
	id := auth.MustIdentity(c)

	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if len(req.Bookmarks) > MaxImport {
		c.JSON(http.StatusBadRequest, gin.H{"error": "at most " + strconv.Itoa(MaxImport) + " bookmarks per import"})
		return
	}

	result := ImportResult{Errors: []string{}}
	for i, bookmark := range req.Bookmarks {
		prefix := "bookmark " + strconv.Itoa(i) + ": "

		createdAt, err := parseTime(bookmark.Time)
		if err != nil {
			result.Errors = append(result.Errors, prefix+"invalid time format")
			result.Skipped++
			continue
		}

		if _, err := h.svc.AddLinkAt(c.Request.Context(), id.UserID, bookmark.Description, bookmark.Href, createdAt); err != nil {
			var verr *linkurl.ValidationError
			if errors.As(err, &verr) {
				result.Errors = append(result.Errors, prefix+verr.Message)
			} else {
				result.Errors = append(result.Errors, prefix+"failed to save link")
			}
			result.Skipped++
			continue
		}

		result.Imported++
	}

	c.JSON(http.StatusOK, result)
}

// Export returns the caller's links as bookmarks
func (h *Handler) Export(c *gin.Context) {
	id := auth.MustIdentity(c)

	owned, err := h.svc.ListByOwner(c.Request.Context(), id.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}

	base := linkurl.Base(c, h.baseURL)
	bookmarks := make([]Bookmark, len(owned))
	for i, link := range owned {
		// Every link is listed on the owner's public page, so all are shared.
		bookmarks[i] = Bookmark{
			Href:        link.URL,
			Description: link.Title,
			Time:        link.CreatedAt.UTC().Format(time.RFC3339),
			Shared:      "yes",
			ShortURL:    linkurl.Short(base, "s", link.ShortID),
		}
	}

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=linkpage-export.json")
	}

	c.JSON(http.StatusOK, bookmarks)
}

// RegisterRoutes registers import/export routes
func (h *Handler) RegisterRoutes(rg gin.IRouter) {
	rg.POST("/import", h.Import)
	rg.GET("/export", h.Export)
}

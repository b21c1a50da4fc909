package links

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/auth"
	"github.com/mikepea/linkpage/pkg/linkpage/linkurl"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mikepea/linkpage/pkg/linkpage/views"
)

// ClickCounter reports click totals per short code
type ClickCounter interface {
	CountByShortID(ctx context.Context, codes []string) (map[string]int64, error)
}

// Handler handles link-related requests
type Handler struct {
	svc     *Service
	clicks  ClickCounter
	baseURL string
}

// NewHandler creates a new links handler. An empty baseURL derives short
// URLs from the request host.
func NewHandler(svc *Service, clicks ClickCounter, baseURL string) *Handler {
	return &Handler{svc: svc, clicks: clicks, baseURL: baseURL}
}

// CreateLinkRequest represents the request to create a link
type CreateLinkRequest struct {
	Title string `form:"title" json:"title"`
	URL   string `form:"url" json:"url" binding:"required,httpurl"`
}

// LinkResponse represents a link in API responses
type LinkResponse struct {
	ID         uint   `json:"id"`
	Title      string `json:"title"`
	URL        string `json:"url"`
	ShortID    string `json:"short_id"`
	ShortURL   string `json:"short_url"`
	OrderIndex int    `json:"order_index"`
	Clicks     int64  `json:"clicks"`
	CreatedAt  string `json:"created_at"`
}

type dashboardRow struct {
	Title    string
	URL      string
	ShortURL string
	Clicks   int64
}

func (h *Handler) linkToResponse(c *gin.Context, link models.Link, clicks int64) LinkResponse {
	return LinkResponse{
		ID:         link.ID,
		Title:      link.Title,
		URL:        link.URL,
		ShortID:    link.ShortID,
		ShortURL:   linkurl.Short(linkurl.Base(c, h.baseURL), "s", link.ShortID),
		OrderIndex: link.OrderIndex,
		Clicks:     clicks,
		CreatedAt:  link.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

// counts never fails the page; missing totals show as zero.
func (h *Handler) counts(ctx context.Context, links []models.Link) map[string]int64 {
	codes := make([]string, len(links))
	for i, l := range links {
		codes[i] = l.ShortID
	}
	counts, err := h.clicks.CountByShortID(ctx, codes)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to count clicks")
		return map[string]int64{}
	}
	return counts
}

// Dashboard renders the owner's links and the add-link form
func (h *Handler) Dashboard(c *gin.Context) {
	h.renderDashboard(c, http.StatusOK, "", CreateLinkRequest{})
}

func (h *Handler) renderDashboard(c *gin.Context, status int, errMsg string, form CreateLinkRequest) {
	id := auth.MustIdentity(c)

	links, err := h.svc.ListByOwner(c.Request.Context(), id.UserID)
	if err != nil {
		c.String(http.StatusInternalServerError, "Failed to load links")
		return
	}

	counts := h.counts(c.Request.Context(), links)
	base := linkurl.Base(c, h.baseURL)
	rows := make([]dashboardRow, len(links))
	for i, l := range links {
		rows[i] = dashboardRow{
			Title:    l.DisplayTitle(),
			URL:      l.URL,
			ShortURL: linkurl.Short(base, "s", l.ShortID),
			Clicks:   counts[l.ShortID],
		}
	}

	c.HTML(status, views.Dashboard, gin.H{
		"Title":     "Dashboard",
		"Username":  id.Username,
		"PublicURL": base + "/user/" + id.Username,
		"Links":     rows,
		"Error":     errMsg,
		"FormTitle": form.Title,
		"FormURL":   form.URL,
	})
}

// AddLink handles the dashboard form
func (h *Handler) AddLink(c *gin.Context) {
	id := auth.MustIdentity(c)

	var req CreateLinkRequest
	// Binding errors are reported by the service's own validation below.
	_ = c.ShouldBind(&req)

	if _, err := h.svc.AddLink(c.Request.Context(), id.UserID, req.Title, req.URL); err != nil {
		var verr *linkurl.ValidationError
		if errors.As(err, &verr) {
			h.renderDashboard(c, http.StatusBadRequest, verr.Message, req)
			return
		}
		logger.Error().Err(err).Str("user_id", id.UserID).Msg("failed to add link")
		c.String(http.StatusInternalServerError, "Failed to save link")
		return
	}

	c.Redirect(http.StatusFound, "/dashboard")
}

// PublicProfile renders a read-only listing for a username
func (h *Handler) PublicProfile(c *gin.Context) {
	profile, links, err := h.svc.ByUsername(c.Request.Context(), c.Param("username"))
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			c.String(http.StatusNotFound, "User not found")
			return
		}
		logger.Error().Err(err).Msg("failed to load profile")
		c.String(http.StatusInternalServerError, "Failed to load profile")
		return
	}

	c.HTML(http.StatusOK, views.Profile, gin.H{
		"Title":    profile.Username,
		"Username": profile.Username,
		"Links":    links,
	})
}

// ListLinks returns the caller's links as JSON
func (h *Handler) ListLinks(c *gin.Context) {
	id := auth.MustIdentity(c)

	links, err := h.svc.ListByOwner(c.Request.Context(), id.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch links"})
		return
	}

	counts := h.counts(c.Request.Context(), links)
	response := make([]LinkResponse, len(links))
	for i, l := range links {
		response[i] = h.linkToResponse(c, l, counts[l.ShortID])
	}
	c.JSON(http.StatusOK, response)
}

// CreateLink creates a link from JSON
func (h *Handler) CreateLink(c *gin.Context) {
	id := auth.MustIdentity(c)

	var req CreateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "url must be an absolute http or https URL"})
		return
	}

	link, err := h.svc.AddLink(c.Request.Context(), id.UserID, req.Title, req.URL)
	if err != nil {
		var verr *linkurl.ValidationError
		if errors.As(err, &verr) {
			c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create link"})
		return
	}

	c.JSON(http.StatusCreated, h.linkToResponse(c, *link, 0))
}

// RegisterRoutes registers the session-protected pages
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/dashboard", h.Dashboard)
	r.POST("/add-link", h.AddLink)
}

// RegisterPublicRoutes registers pages anyone can view
func (h *Handler) RegisterPublicRoutes(r gin.IRouter) {
	r.GET("/user/:username", h.PublicProfile)
}

// RegisterAPIRoutes registers the bearer-protected JSON routes
func (h *Handler) RegisterAPIRoutes(rg gin.IRouter) {
	rg.GET("", h.ListLinks)
	rg.POST("", h.CreateLink)
}

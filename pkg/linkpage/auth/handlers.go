package auth

import (
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/identity"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mikepea/linkpage/pkg/linkpage/views"
	"gorm.io/gorm"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// Handler handles signup, login and logout
type Handler struct {
	db       *gorm.DB
	provider identity.Provider
	tokens   *TokenIssuer
}

// NewHandler creates a new auth handler
func NewHandler(db *gorm.DB, provider identity.Provider, tokens *TokenIssuer) *Handler {
	return &Handler{db: db, provider: provider, tokens: tokens}
}

// SignupRequest is the signup form
type SignupRequest struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required"`
	Username string `form:"username" json:"username" binding:"required,min=3,max=32"`
}

// LoginRequest is the login form, also accepted as JSON by /api/token
type LoginRequest struct {
	Email    string `form:"email" json:"email" binding:"required,email"`
	Password string `form:"password" json:"password" binding:"required"`
}

// TokenResponse is returned by /api/token
type TokenResponse struct {
	Token     string   `json:"token"`
	ExpiresAt string   `json:"expires_at"`
	User      Identity `json:"user"`
}

// LoginPage renders the login form
func (h *Handler) LoginPage(c *gin.Context) {
	if _, ok := CurrentIdentity(c); ok {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	c.HTML(http.StatusOK, views.Login, gin.H{"Title": "Log in"})
}

// SignupPage renders the signup form
func (h *Handler) SignupPage(c *gin.Context) {
	c.HTML(http.StatusOK, views.Signup, gin.H{"Title": "Sign up"})
}

// Signup creates an identity with the provider and a profile for it
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBind(&req); err != nil {
		h.signupError(c, http.StatusBadRequest, req, "Email, password and a username of 3 to 32 characters are required")
		return
	}
	req.Username = strings.TrimSpace(req.Username)
	if !usernameRegex.MatchString(req.Username) {
		h.signupError(c, http.StatusBadRequest, req, "Username may only contain letters, numbers, hyphens and underscores")
		return
	}

	var count int64
	if err := h.db.WithContext(c.Request.Context()).Model(&models.Profile{}).
		Where("username = ?", req.Username).Count(&count).Error; err != nil {
		c.String(http.StatusInternalServerError, "Failed to check username")
		return
	}
	if count > 0 {
		h.signupError(c, http.StatusConflict, req, "Username is already taken")
		return
	}

	user, err := h.provider.SignUp(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var rejected *identity.RejectedError
		switch {
		case errors.Is(err, identity.ErrEmailTaken):
			h.signupError(c, http.StatusConflict, req, "Email already registered")
		case errors.Is(err, identity.ErrWeakPassword):
			h.signupError(c, http.StatusBadRequest, req, identity.ErrWeakPassword.Error())
		case errors.As(err, &rejected):
			h.signupError(c, http.StatusBadRequest, req, rejected.Message)
		default:
			logger.Error().Err(err).Msg("identity provider signup failed")
			h.signupError(c, http.StatusBadGateway, req, "Sign up is unavailable right now, please try again later")
		}
		return
	}

	profile := models.Profile{ID: user.ID, Username: req.Username}
	if err := h.db.WithContext(c.Request.Context()).Create(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost a race for the username after the identity was issued.
			h.releaseIdentity(c, user.ID)
			h.signupError(c, http.StatusConflict, req, "Username is already taken")
			return
		}
		logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to create profile")
		c.String(http.StatusInternalServerError, "Failed to create profile")
		return
	}

	logger.Info().Str("user_id", user.ID).Str("username", profile.Username).Msg("user signed up")

	c.HTML(http.StatusOK, views.Message, gin.H{
		"Title":   "Check your email",
		"Message": "Your account for " + user.Email + " was created. If you receive a verification email, confirm your address, then log in.",
		"Link":    "/login",
	})
}

// releaseIdentity drops an identity that never got a profile, so the email
// can sign up again. Providers that cannot remove identities leave it behind.
func (h *Handler) releaseIdentity(c *gin.Context, userID string) {
	remover, ok := h.provider.(identity.Remover)
	if !ok {
		logger.Warn().Str("user_id", userID).Msg("identity left without a profile")
		return
	}
	if err := remover.Remove(c.Request.Context(), userID); err != nil {
		logger.Error().Err(err).Str("user_id", userID).Msg("failed to remove identity without a profile")
	}
}

func (h *Handler) signupError(c *gin.Context, status int, req SignupRequest, msg string) {
	c.HTML(status, views.Signup, gin.H{
		"Title":    "Sign up",
		"Error":    msg,
		"Email":    req.Email,
		"Username": req.Username,
	})
}

// Login verifies credentials and establishes a session
func (h *Handler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.loginError(c, http.StatusBadRequest, req.Email, "Email and password are required")
		return
	}

	id, status, msg := h.authenticate(c, req)
	if status != http.StatusOK {
		if status == http.StatusInternalServerError {
			// Credentials were fine but the account is unusable.
			if err := ClearSession(c); err != nil {
				logger.Warn().Err(err).Msg("failed to clear session")
			}
			c.String(status, msg)
			return
		}
		h.loginError(c, status, req.Email, msg)
		return
	}

	if err := EstablishSession(c, id); err != nil {
		logger.Error().Err(err).Msg("failed to save session")
		c.String(http.StatusInternalServerError, "Failed to save session")
		return
	}

	logger.Info().Str("user_id", id.UserID).Msg("user logged in")
	c.Redirect(http.StatusFound, "/dashboard")
}

func (h *Handler) loginError(c *gin.Context, status int, email, msg string) {
	c.HTML(status, views.Login, gin.H{
		"Title": "Log in",
		"Error": msg,
		"Email": email,
	})
}

// authenticate checks credentials with the provider and loads the profile.
// It returns the HTTP status and message to report on failure.
func (h *Handler) authenticate(c *gin.Context, req LoginRequest) (Identity, int, string) {
	user, err := h.provider.SignIn(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var rejected *identity.RejectedError
		switch {
		case errors.Is(err, identity.ErrInvalidCredentials):
			return Identity{}, http.StatusUnauthorized, "Invalid email or password"
		case errors.As(err, &rejected):
			return Identity{}, http.StatusBadRequest, rejected.Message
		default:
			logger.Error().Err(err).Msg("identity provider sign-in failed")
			return Identity{}, http.StatusBadGateway, "Log in is unavailable right now, please try again later"
		}
	}

	var profile models.Profile
	if err := h.db.WithContext(c.Request.Context()).First(&profile, "id = ?", user.ID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error().Str("user_id", user.ID).Msg("no profile for authenticated user")
			return Identity{}, http.StatusInternalServerError, "No profile exists for this account"
		}
		logger.Error().Err(err).Str("user_id", user.ID).Msg("failed to load profile")
		return Identity{}, http.StatusInternalServerError, "Failed to load profile"
	}

	return Identity{UserID: profile.ID, Username: profile.Username}, http.StatusOK, ""
}

// Logout destroys the session
func (h *Handler) Logout(c *gin.Context) {
	if err := ClearSession(c); err != nil {
		logger.Warn().Err(err).Msg("failed to clear session")
	}
	c.Redirect(http.StatusFound, "/login")
}

// Root sends visitors to their dashboard or the login page
func (h *Handler) Root(c *gin.Context) {
	if _, ok := CurrentIdentity(c); ok {
		c.Redirect(http.StatusFound, "/dashboard")
		return
	}
	c.Redirect(http.StatusFound, "/login")
}

// APIToken exchanges credentials for a bearer token
func (h *Handler) APIToken(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	id, status, msg := h.authenticate(c, req)
	if status != http.StatusOK {
		c.JSON(status, gin.H{"error": msg})
		return
	}

	token, expiresAt, err := h.tokens.Generate(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
		return
	}

	c.JSON(http.StatusOK, TokenResponse{
		Token:     token,
		ExpiresAt: expiresAt.UTC().Format("2006-01-02T15:04:05Z"),
		User:      id,
	})
}

// RegisterRoutes registers the auth pages. guard wraps the credential
// endpoints, typically with a rate limiter.
func (h *Handler) RegisterRoutes(r gin.IRouter, guard ...gin.HandlerFunc) {
	r.GET("/", h.Root)
	r.GET("/login", h.LoginPage)
	r.GET("/signup", h.SignupPage)
	r.GET("/logout", h.Logout)
	r.POST("/login", guarded(guard, h.Login)...)
	r.POST("/signup", guarded(guard, h.Signup)...)
}

// RegisterAPIRoutes registers token issuance on the API group
func (h *Handler) RegisterAPIRoutes(rg gin.IRouter, guard ...gin.HandlerFunc) {
	rg.POST("/token", guarded(guard, h.APIToken)...)
}

func guarded(guard []gin.HandlerFunc, h gin.HandlerFunc) []gin.HandlerFunc {
	return append(guard[:len(guard):len(guard)], h)
}

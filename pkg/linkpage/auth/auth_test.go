package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/memstore"
	"github.com/gin-gonic/gin"
	"github.com/mikepea/linkpage/pkg/linkpage/identity"
	"github.com/mikepea/linkpage/pkg/linkpage/models"
	"github.com/mikepea/linkpage/pkg/linkpage/views"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func setupTestRouter(db *gorm.DB, provider identity.Provider) (*gin.Engine, *TokenIssuer) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.SetHTMLTemplate(views.Templates())
	r.Use(sessions.Sessions(SessionName, memstore.NewStore([]byte("test-secret"))))

	tokens := NewTokenIssuer([]byte("test-secret"), time.Hour)
	handler := NewHandler(db, provider, tokens)
	handler.RegisterRoutes(r)
	handler.RegisterAPIRoutes(r.Group("/api"))

	r.GET("/dashboard", RequireSession(), func(c *gin.Context) {
		c.String(http.StatusOK, "hello "+MustIdentity(c).Username)
	})
	r.GET("/api/me", RequireToken(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, MustIdentity(c))
	})
	return r, tokens
}

func postForm(r *gin.Engine, path string, form url.Values, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func get(r *gin.Engine, path string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// sessionCookie returns the last session cookie the response set, which is
// the one a browser keeps.
func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	var found *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == SessionName {
			found = c
		}
	}
	if found == nil {
		t.Fatalf("response did not set %s cookie", SessionName)
	}
	return found
}

func signup(r *gin.Engine, email, username string) *httptest.ResponseRecorder {
	return postForm(r, "/signup", url.Values{
		"email":    {email},
		"password": {"password123"},
		"username": {username},
	})
}

func TestSignupCreatesProfile(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewLocalProvider(db))

	w := signup(r, "ada@example.com", "ada")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Check your email")

	var cred models.Credential
	require.NoError(t, db.First(&cred, "email = ?", "ada@example.com").Error)

	var profile models.Profile
	require.NoError(t, db.First(&profile, "id = ?", cred.ID).Error)
	assert.Equal(t, "ada", profile.Username)
}

func TestSignupRejections(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewLocalProvider(db))

	require.Equal(t, http.StatusOK, signup(r, "ada@example.com", "ada").Code)

	tests := []struct {
		name     string
		form     url.Values
		expected int
	}{
		{"missing username", url.Values{"email": {"b@example.com"}, "password": {"password123"}}, http.StatusBadRequest},
		{"bad email", url.Values{"email": {"nope"}, "password": {"password123"}, "username": {"bob"}}, http.StatusBadRequest},
		{"bad username chars", url.Values{"email": {"b@example.com"}, "password": {"password123"}, "username": {"bob smith"}}, http.StatusBadRequest},
		{"weak password", url.Values{"email": {"b@example.com"}, "password": {"123"}, "username": {"bob"}}, http.StatusBadRequest},
		{"username taken", url.Values{"email": {"b@example.com"}, "password": {"password123"}, "username": {"ada"}}, http.StatusConflict},
		{"email taken", url.Values{"email": {"ada@example.com"}, "password": {"password123"}, "username": {"bob"}}, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postForm(r, "/signup", tt.form)
			assert.Equal(t, tt.expected, w.Code)
			assert.Contains(t, w.Body.String(), `class="error"`)
		})
	}

	var count int64
	db.Model(&models.Profile{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestLoginLogoutFlow(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewLocalProvider(db))
	require.Equal(t, http.StatusOK, signup(r, "ada@example.com", "ada").Code)

	// Anonymous
	w := get(r, "/dashboard")
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
	assert.Equal(t, "/login", get(r, "/").Header().Get("Location"))

	// Authenticated
	w = postForm(r, "/login", url.Values{"email": {"ada@example.com"}, "password": {"password123"}})
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
	cookie := sessionCookie(t, w)

	w = get(r, "/dashboard", cookie)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello ada", w.Body.String())
	assert.Equal(t, "/dashboard", get(r, "/", cookie).Header().Get("Location"))
	assert.Equal(t, "/dashboard", get(r, "/login", cookie).Header().Get("Location"))

	// Back to anonymous
	w = get(r, "/logout", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))

	w = get(r, "/dashboard", cookie)
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/login", w.Header().Get("Location"))
}

func TestLoginInvalidCredentials(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewLocalProvider(db))
	require.Equal(t, http.StatusOK, signup(r, "ada@example.com", "ada").Code)

	w := postForm(r, "/login", url.Values{"email": {"ada@example.com"}, "password": {"wrong-password"}})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "Invalid email or password")

	w = postForm(r, "/login", url.Values{"email": {"ada@example.com"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestLoginWithoutProfile(t *testing.T) {
	db := setupTestDB(t)
	provider := identity.NewLocalProvider(db)
	r, _ := setupTestRouter(db, provider)

	// An identity that never got a profile.
	_, err := provider.SignUp(context.Background(), "ghost@example.com", "password123")
	require.NoError(t, err)

	w := postForm(r, "/login", url.Values{"email": {"ghost@example.com"}, "password": {"password123"}})
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "No profile exists for this account", w.Body.String())

	for _, c := range w.Result().Cookies() {
		if c.Name == SessionName {
			assert.Negative(t, c.MaxAge)
		}
	}
}

type rejectingProvider struct {
	err error
}

func (p rejectingProvider) SignUp(ctx context.Context, email, password string) (identity.User, error) {
	return identity.User{}, p.err
}

func (p rejectingProvider) SignIn(ctx context.Context, email, password string) (identity.User, error) {
	return identity.User{}, p.err
}

func TestProviderFailures(t *testing.T) {
	db := setupTestDB(t)

	r, _ := setupTestRouter(db, rejectingProvider{err: &identity.RejectedError{Status: 422, Message: "Signups not allowed"}})
	w := signup(r, "ada@example.com", "ada")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Signups not allowed")

	r, _ = setupTestRouter(db, rejectingProvider{err: assert.AnError})
	w = postForm(r, "/login", url.Values{"email": {"ada@example.com"}, "password": {"password123"}})
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var count int64
	db.Model(&models.Profile{}).Count(&count)
	assert.Zero(t, count)
}

func TestAPIToken(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewLocalProvider(db))
	require.Equal(t, http.StatusOK, signup(r, "ada@example.com", "ada").Code)

	body, _ := json.Marshal(map[string]string{"email": "ada@example.com", "password": "password123"})
	req, _ := http.NewRequest("POST", "/api/token", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokenResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "ada", resp.User.Username)

	req, _ = http.NewRequest("GET", "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var me Identity
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &me))
	assert.Equal(t, resp.User, me)

	body, _ = json.Marshal(map[string]string{"email": "ada@example.com", "password": "nope"})
	req, _ = http.NewRequest("POST", "/api/token", bytes.NewBuffer(body))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireToken(t *testing.T) {
	db := setupTestDB(t)
	r, tokens := setupTestRouter(db, identity.NewLocalProvider(db))

	expired := NewTokenIssuer([]byte("test-secret"), time.Hour)
	expired.ttl = -time.Minute
	expiredToken, _, err := expired.Generate(Identity{UserID: "u1", Username: "ada"})
	require.NoError(t, err)

	otherKey, _, err := NewTokenIssuer([]byte("other-secret"), time.Hour).Generate(Identity{UserID: "u1", Username: "ada"})
	require.NoError(t, err)

	valid, _, err := tokens.Generate(Identity{UserID: "u1", Username: "ada"})
	require.NoError(t, err)

	tests := []struct {
		name     string
		header   string
		expected int
		message  string
	}{
		{"missing header", "", http.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "Invalid authorization header format"},
		{"garbage", "Bearer not-a-token", http.StatusUnauthorized, "Invalid token"},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized, "Invalid token"},
		{"expired", "Bearer " + expiredToken, http.StatusUnauthorized, "Token has expired"},
		{"valid", "Bearer " + valid, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, _ := http.NewRequest("GET", "/api/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.expected, w.Code)
			if tt.message != "" {
				assert.Contains(t, w.Body.String(), tt.message)
			}
		})
	}
}

func TestTokenRoundTrip(t *testing.T) {
	tokens := NewTokenIssuer([]byte("secret"), 0)
	assert.Equal(t, 24*time.Hour, tokens.ttl)

	token, expiresAt, err := tokens.Generate(Identity{UserID: "u1", Username: "ada"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(24*time.Hour), expiresAt, time.Minute)

	claims, err := tokens.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u1", Username: "ada"}, claims.Identity())
}

func TestLoginRotatesSession(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewLocalProvider(db))
	require.Equal(t, http.StatusOK, signup(r, "ada@example.com", "ada").Code)

	creds := url.Values{"email": {"ada@example.com"}, "password": {"password123"}}
	first := sessionCookie(t, postForm(r, "/login", creds))

	w := postForm(r, "/login", creds, first)
	require.Equal(t, http.StatusFound, w.Code)
	second := sessionCookie(t, w)
	assert.NotEqual(t, first.Value, second.Value)

	assert.Equal(t, http.StatusOK, get(r, "/dashboard", second).Code)
	assert.Equal(t, "/login", get(r, "/dashboard", first).Header().Get("Location"))
}

// usernameRaceProvider claims the username for someone else while the
// identity is being issued.
type usernameRaceProvider struct {
	*identity.LocalProvider
	db       *gorm.DB
	username string
}

func (p usernameRaceProvider) SignUp(ctx context.Context, email, password string) (identity.User, error) {
	if err := p.db.Create(&models.Profile{ID: "someone-else", Username: p.username}).Error; err != nil {
		return identity.User{}, err
	}
	return p.LocalProvider.SignUp(ctx, email, password)
}

func TestSignupUsernameRaceReleasesIdentity(t *testing.T) {
	db := setupTestDB(t)
	r, _ := setupTestRouter(db, usernameRaceProvider{
		LocalProvider: identity.NewLocalProvider(db),
		db:            db,
		username:      "ada",
	})

	w := signup(r, "ada@example.com", "ada")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "Username is already taken")

	var count int64
	db.Model(&models.Credential{}).Where("email = ?", "ada@example.com").Count(&count)
	assert.Zero(t, count)

	// The email is free to sign up again under another name.
	r, _ = setupTestRouter(db, identity.NewLocalProvider(db))
	assert.Equal(t, http.StatusOK, signup(r, "ada@example.com", "ada2").Code)
}

func TestLoginUnconfirmedEmail(t *testing.T) {
	const userID = "5b0c3bd8-0c8e-4f38-9a55-3c1f0f4d2a11"

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/v1/signup", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": userID, "email": "ada@example.com"})
	})
	mux.HandleFunc("/auth/v1/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error_code": "email_not_confirmed", "msg": "Email not confirmed"})
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	db := setupTestDB(t)
	r, _ := setupTestRouter(db, identity.NewGoTrueProvider(srv.URL, "anon-key"))

	w := signup(r, "ada@example.com", "ada")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "confirm your address, then log in")

	w = postForm(r, "/login", url.Values{"email": {"ada@example.com"}, "password": {"password123"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Email not confirmed")
	assert.NotContains(t, w.Body.String(), "Invalid email or password")
}

package auth

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	gsessions "github.com/gorilla/sessions"
	"github.com/mikepea/linkpage/pkg/linkpage/logger"
)

const (
	// SessionName is the cookie the session store keys sessions by.
	SessionName = "linkpage_session"

	// ContextKeyIdentity holds the verified Identity in the gin context.
	ContextKeyIdentity = "identity"

	sessionKeyUserID   = "user_id"
	sessionKeyUsername = "username"
)

// Identity is an authenticated user as seen by request handlers.
type Identity struct {
	UserID   string `json:"id"`
	Username string `json:"username"`
}

// CurrentIdentity returns the identity verified by RequireSession or
// RequireToken, falling back to the session cookie. Anonymous requests
// report false.
func CurrentIdentity(c *gin.Context) (Identity, bool) {
	if v, ok := c.Get(ContextKeyIdentity); ok {
		if id, ok := v.(Identity); ok {
			return id, true
		}
	}

	session := sessions.Default(c)
	userID, _ := session.Get(sessionKeyUserID).(string)
	username, _ := session.Get(sessionKeyUsername).(string)
	if userID == "" || username == "" {
		return Identity{}, false
	}
	return Identity{UserID: userID, Username: username}, true
}

// MustIdentity is for handlers mounted behind RequireSession or RequireToken.
func MustIdentity(c *gin.Context) Identity {
	return c.MustGet(ContextKeyIdentity).(Identity)
}

// EstablishSession replaces whatever the session held with id. A session the
// request already carried is destroyed and the new one gets a fresh ID.
func EstablishSession(c *gin.Context, id Identity) error {
	session := sessions.Default(c)
	if gs := backing(session); gs != nil {
		if !gs.IsNew && gs.Options != nil {
			opts := *gs.Options
			if err := ClearSession(c); err != nil {
				return err
			}
			gs.Options = &opts
		}
		gs.ID = ""
		gs.IsNew = true
	}
	session.Clear()
	session.Set(sessionKeyUserID, id.UserID)
	session.Set(sessionKeyUsername, id.Username)
	return session.Save()
}

// backing returns the store-level session, whose ID the stores regenerate
// when it is empty.
func backing(s sessions.Session) *gsessions.Session {
	if b, ok := s.(interface{ Session() *gsessions.Session }); ok {
		return b.Session()
	}
	return nil
}

// ClearSession drops the session values and expires the cookie.
func ClearSession(c *gin.Context) error {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	return session.Save()
}

// RequireSession redirects anonymous requests to the login page.
func RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := CurrentIdentity(c)
		if !ok {
			c.Redirect(http.StatusFound, "/login")
			c.Abort()
			return
		}

		c.Set(ContextKeyIdentity, id)
		c.Set(logger.ContextKeyUserID, id.UserID)
		c.Next()
	}
}

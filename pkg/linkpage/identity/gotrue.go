package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	gotrue "github.com/supabase-community/auth-go"
	"github.com/supabase-community/auth-go/types"
)

// GoTrueProvider talks to a hosted GoTrue-compatible auth service, such as
// the one bundled with Supabase projects.
type GoTrueProvider struct {
	client gotrue.Client
}

// NewGoTrueProvider creates a provider for the project at baseURL. The auth
// API is expected under /auth/v1.
func NewGoTrueProvider(baseURL, apiKey string) *GoTrueProvider {
	authURL := strings.TrimRight(baseURL, "/") + "/auth/v1"
	return &GoTrueProvider{
		client: gotrue.New("", apiKey).WithCustomAuthURL(authURL),
	}
}

// SignUp registers the email with the hosted service. Depending on project
// settings the service may require email confirmation before sign-in.
func (p *GoTrueProvider) SignUp(ctx context.Context, email, password string) (User, error) {
	resp, err := call(ctx, func() (*types.SignupResponse, error) {
		return p.client.Signup(types.SignupRequest{Email: email, Password: password})
	})
	if err != nil {
		apiErr, ok := parseAPIError(err)
		if !ok {
			return User{}, fmt.Errorf("identity service unreachable: %w", err)
		}
		msg := apiErr.text()
		switch {
		case apiErr.ErrorCode == "user_already_exists" || strings.Contains(strings.ToLower(msg), "already registered"):
			return User{}, fmt.Errorf("%w: %s", ErrEmailTaken, msg)
		case apiErr.ErrorCode == "weak_password":
			return User{}, fmt.Errorf("%w: %s", ErrWeakPassword, msg)
		}
		return User{}, &RejectedError{Status: apiErr.Status, Message: msg}
	}

	if resp.ID != uuid.Nil {
		return User{ID: resp.ID.String(), Email: resp.Email}, nil
	}
	// Autoconfirmed projects answer with a session instead of a bare user.
	return p.SignIn(ctx, email, password)
}

// SignIn uses the password grant. Only a credentials mismatch maps to
// ErrInvalidCredentials; anything else, such as an unconfirmed email, keeps
// the provider's message.
func (p *GoTrueProvider) SignIn(ctx context.Context, email, password string) (User, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) {
		return p.client.Token(types.TokenRequest{GrantType: "password", Email: email, Password: password})
	})
	if err != nil {
		apiErr, ok := parseAPIError(err)
		if !ok {
			return User{}, fmt.Errorf("identity service unreachable: %w", err)
		}
		if apiErr.badCredentials() {
			return User{}, ErrInvalidCredentials
		}
		return User{}, &RejectedError{Status: apiErr.Status, Message: apiErr.text()}
	}

	if resp.User.ID == uuid.Nil {
		return User{}, errors.New("token response did not include a user id")
	}
	return User{ID: resp.User.ID.String(), Email: resp.User.Email}, nil
}

// call runs fn but stops waiting once ctx is done. The client has its own
// request timeout, so an abandoned call still finishes.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	type result struct {
		v   T
		err error
	}
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}

	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// The client reports non-200 answers as "response status code N: <body>".
var statusErrRegex = regexp.MustCompile(`(?s)^response status code (\d+)(?::\s*(.*))?$`)

type apiError struct {
	Status           int    `json:"-"`
	Msg              string `json:"msg"`
	Message          string `json:"message"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
	ErrorCode        string `json:"error_code"`
}

func parseAPIError(err error) (apiError, bool) {
	m := statusErrRegex.FindStringSubmatch(err.Error())
	if m == nil {
		return apiError{}, false
	}
	var e apiError
	// Error bodies are best effort; a non-JSON body leaves the message empty.
	_ = json.Unmarshal([]byte(m[2]), &e)
	e.Status, _ = strconv.Atoi(m[1])
	return e, true
}

func (e apiError) text() string {
	for _, s := range []string{e.Msg, e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return fmt.Sprintf("request rejected with status %d", e.Status)
}

// Newer servers set error_code; older ones answer invalid_grant for every
// refused password grant and only the description tells them apart.
func (e apiError) badCredentials() bool {
	switch e.ErrorCode {
	case "invalid_credentials":
		return true
	case "":
		if e.Error != "invalid_grant" {
			return false
		}
		desc := strings.ToLower(e.ErrorDescription + e.Msg)
		return desc == "" || strings.Contains(desc, "invalid login credentials")
	}
	return false
}

package apiclient

import (
	"context"
	"net/http"
	"net/url"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
)

// API groups the backend's named operations by resource.
type API struct {
	client *Client

	Auth        *AuthAPI
	Users       *UsersAPI
	Schools     *SchoolsAPI
	Grades      *GradesAPI
	Students    *StudentsAPI
	Teachers    *TeachersAPI
	Attendance  *AttendanceAPI
	Assessments *AssessmentsAPI
	Library     *LibraryAPI
	Learning    *LearningAPI
	Feeds       *FeedsAPI
}

// NewAPI builds the facade over client.
func NewAPI(client *Client) *API {
	return &API{
		client:      client,
		Auth:        &AuthAPI{client: client},
		Users:       &UsersAPI{Resource: NewResource(client, "/users")},
		Schools:     &SchoolsAPI{Resource: NewResource(client, "/schools")},
		Grades:      &GradesAPI{Resource: NewResource(client, "/grades")},
		Students:    &StudentsAPI{Resource: NewResource(client, "/students")},
		Teachers:    &TeachersAPI{Resource: NewResource(client, "/teachers")},
		Attendance:  &AttendanceAPI{Resource: NewResource(client, "/attendance")},
		Assessments: &AssessmentsAPI{Resource: NewResource(client, "/assessments")},
		Library:     &LibraryAPI{Resource: NewResource(client, "/library/resources")},
		Learning:    &LearningAPI{Resource: NewResource(client, "/learning/content")},
		Feeds:       &FeedsAPI{Resource: NewResource(client, "/feeds")},
	}
}

// Client returns the underlying session client.
func (a *API) Client() *Client { return a.client }

// Get performs a GET on an arbitrary backend path.
func (a *API) Get(ctx context.Context, path string, query url.Values) (*Envelope, error) {
	return a.client.Call(ctx, NewRequest(http.MethodGet, path, query))
}

// Send performs a JSON request on an arbitrary backend path.
func (a *API) Send(ctx context.Context, method, path string, body any) (*Envelope, error) {
	return send(ctx, a.client, method, path, body)
}

func send(ctx context.Context, c *Client, method, path string, body any) (*Envelope, error) {
	req, err := NewJSONRequest(method, path, body)
	if err != nil {
		return nil, err
	}
	return c.Call(ctx, req)
}

func sendAnonymous(ctx context.Context, c *Client, path string, body any) (*Envelope, error) {
	req, err := NewJSONRequest(http.MethodPost, path, body)
	if err != nil {
		return nil, err
	}
	req.Anonymous = true
	return c.Call(ctx, req)
}

// LoginResult is the data member of a successful login.
type LoginResult struct {
	User   domain.User      `json:"user"`
	Tokens domain.TokenPair `json:"tokens"`
}

type userData struct {
	User domain.User `json:"user"`
}

// AuthAPI wraps the /auth endpoints.
type AuthAPI struct {
	client *Client
}

// Login exchanges credentials for a user record and a token pair. It does
// not store the tokens; that is the session controller's job.
func (a *AuthAPI) Login(ctx context.Context, creds domain.Credentials) (*LoginResult, error) {
	env, err := sendAnonymous(ctx, a.client, "/auth/login", creds)
	if err != nil {
		return nil, err
	}
	var res LoginResult
	if err := env.Decode(&res); err != nil {
		return nil, err
	}
	if res.Tokens.Empty() {
		return nil, &APIError{Status: env.Status, Message: "Login response carried no tokens", Kind: KindAPI}
	}
	return &res, nil
}

// Register creates an account. The response carries no tokens.
func (a *AuthAPI) Register(ctx context.Context, reg domain.Registration) (*Envelope, error) {
	return sendAnonymous(ctx, a.client, "/auth/register", reg)
}

// Logout invalidates the session's tokens on the backend.
func (a *AuthAPI) Logout(ctx context.Context) (*Envelope, error) {
	return send(ctx, a.client, http.MethodPost, "/auth/logout", nil)
}

// Profile fetches the signed-in user.
func (a *AuthAPI) Profile(ctx context.Context) (*domain.User, error) {
	env, err := a.client.Call(ctx, NewRequest(http.MethodGet, "/auth/profile", nil))
	if err != nil {
		return nil, err
	}
	return decodeUser(env)
}

// UpdateProfile saves profile fields and returns the updated user.
func (a *AuthAPI) UpdateProfile(ctx context.Context, upd domain.ProfileUpdate) (*domain.User, error) {
	env, err := send(ctx, a.client, http.MethodPut, "/auth/profile", upd)
	if err != nil {
		return nil, err
	}
	return decodeUser(env)
}

// ChangePassword changes the signed-in user's password.
func (a *AuthAPI) ChangePassword(ctx context.Context, pc domain.PasswordChange) (*Envelope, error) {
	return send(ctx, a.client, http.MethodPut, "/auth/change-password", pc)
}

// RequestPasswordReset asks the backend to mail a reset link to email.
func (a *AuthAPI) RequestPasswordReset(ctx context.Context, email string) (*Envelope, error) {
	return sendAnonymous(ctx, a.client, "/auth/request-password-reset", domain.PasswordResetRequest{Email: email})
}

// ResetPassword completes a password reset.
func (a *AuthAPI) ResetPassword(ctx context.Context, pr domain.PasswordReset) (*Envelope, error) {
	return sendAnonymous(ctx, a.client, "/auth/reset-password", pr)
}

// VerifyEmail confirms an email address.
func (a *AuthAPI) VerifyEmail(ctx context.Context, ev domain.EmailVerification) (*Envelope, error) {
	return sendAnonymous(ctx, a.client, "/auth/verify-email", ev)
}

// Health reports whether the auth service answers.
func (a *AuthAPI) Health(ctx context.Context) error {
	req := NewRequest(http.MethodGet, "/auth/health", nil)
	req.Anonymous = true
	_, err := a.client.Call(ctx, req)
	return err
}

func decodeUser(env *Envelope) (*domain.User, error) {
	var data userData
	if err := env.Decode(&data); err != nil {
		return nil, err
	}
	return &data.User, nil
}

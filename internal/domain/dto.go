package domain

// Credentials is the login payload.
type Credentials struct {
	Username string `json:"username" validate:"required,max=100"`
	Password string `json:"password" validate:"required,max=200"`
}

// Registration is the sign-up payload. The backend decides which roles a
// self-registration may claim; the portal only checks the shape.
type Registration struct {
	Username  string `json:"username" validate:"required,min=3,max=50"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6,max=200"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"required,max=100"`
	Role      string `json:"role,omitempty" validate:"omitempty,oneof=admin teacher student parent"`
}

// Credentials returns the login payload used for the implicit login after registration.
func (r Registration) Credentials() Credentials {
	return Credentials{Username: r.Username, Password: r.Password}
}

// ProfileUpdate carries the editable profile fields.
type ProfileUpdate struct {
	FirstName         string `json:"firstName,omitempty" validate:"omitempty,max=100"`
	LastName          string `json:"lastName,omitempty" validate:"omitempty,max=100"`
	Email             string `json:"email,omitempty" validate:"omitempty,email"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty" validate:"omitempty,url"`
}

// PasswordChange is sent by a signed-in user.
type PasswordChange struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6,max=200,nefield=CurrentPassword"`
}

// PasswordResetRequest asks the backend to mail a reset link.
type PasswordResetRequest struct {
	Email string `json:"email" validate:"required,email"`
}

// PasswordReset completes a reset with the mailed token.
type PasswordReset struct {
	Token       string `json:"token" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,min=6,max=200"`
}

// EmailVerification confirms an address with the mailed token.
type EmailVerification struct {
	Token string `json:"token" validate:"required"`
}

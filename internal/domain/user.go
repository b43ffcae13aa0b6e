package domain

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// User is the backend's user record. It is replaced wholesale on every
// successful profile fetch and never patched field by field.
type User struct {
	ID                string `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	FirstName         string `json:"firstName"`
	LastName          string `json:"lastName"`
	Role              Role   `json:"role"`
	ProfilePictureURL string `json:"profilePictureUrl,omitempty"`
}

// DisplayName returns "First Last", falling back to the username.
func (u User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

// Initials returns up to two upper-case initials for avatar placeholders.
func (u User) Initials() string {
	var b strings.Builder
	for _, part := range []string{u.FirstName, u.LastName} {
		writeInitial(&b, part)
	}
	if b.Len() == 0 {
		writeInitial(&b, u.Username)
	}
	return b.String()
}

func writeInitial(b *strings.Builder, s string) {
	r, _ := utf8.DecodeRuneInString(strings.TrimSpace(s))
	if r == utf8.RuneError {
		return
	}
	b.WriteRune(unicode.ToUpper(r))
}

// TokenPair is the credential pair issued on login and refresh. Validity is
// discovered reactively from 401 responses; expiry is never parsed locally.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Empty reports whether either half of the pair is missing.
func (t TokenPair) Empty() bool {
	return t.AccessToken == "" || t.RefreshToken == ""
}

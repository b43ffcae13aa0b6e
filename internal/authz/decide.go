// Package authz decides whether a session may see a route and enforces
// that decision as chi middleware.
package authz

import (
	"slices"

	"github.com/kulsmauinformatics/sumatin/internal/domain"
	"github.com/kulsmauinformatics/sumatin/internal/session"
)

// Decision is the outcome of a route guard.
type Decision int

const (
	Loading Decision = iota
	RedirectLogin
	Deny
	Render
	RedirectHome
)

func (d Decision) String() string {
	switch d {
	case RedirectLogin:
		return "redirect_login"
	case Deny:
		return "deny"
	case Render:
		return "render"
	case RedirectHome:
		return "redirect_home"
	default:
		return "loading"
	}
}

// Requirement describes who may see a route. An empty Roles admits any
// signed-in user.
type Requirement struct {
	Roles       []domain.Role
	RequireAuth bool
}

// Input is everything Decide looks at.
type Input struct {
	Status      session.Status
	LoggedIn    bool
	Role        domain.Role
	Requirement Requirement
}

// InputFor builds an Input from a session snapshot.
func InputFor(snap session.Snapshot, req Requirement) Input {
	return Input{
		Status:      snap.Status,
		LoggedIn:    snap.LoggedIn(),
		Role:        snap.Role(),
		Requirement: req,
	}
}

// Decide evaluates a protected route. Checks run in order: loading,
// authentication, role.
func Decide(in Input) Decision {
	if in.Status == session.StatusLoading {
		return Loading
	}
	if in.Requirement.RequireAuth && !in.LoggedIn {
		return RedirectLogin
	}
	if len(in.Requirement.Roles) > 0 {
		if !in.LoggedIn || !slices.Contains(in.Requirement.Roles, in.Role) {
			return Deny
		}
	}
	return Render
}

// DecidePublicOnly evaluates a route meant for signed-out users only.
func DecidePublicOnly(status session.Status, loggedIn bool) Decision {
	if status == session.StatusLoading {
		return Loading
	}
	if loggedIn {
		return RedirectHome
	}
	return Render
}

var (
	AdminOnly      = Requirement{RequireAuth: true, Roles: []domain.Role{domain.RoleAdmin}}
	TeacherOrAdmin = Requirement{RequireAuth: true, Roles: []domain.Role{domain.RoleAdmin, domain.RoleTeacher}}
	StudentOrAbove = Requirement{RequireAuth: true, Roles: []domain.Role{domain.RoleAdmin, domain.RoleTeacher, domain.RoleStudent}}
	ParentOrAdmin  = Requirement{RequireAuth: true, Roles: []domain.Role{domain.RoleAdmin, domain.RoleParent}}
	Authenticated  = Requirement{RequireAuth: true}
)

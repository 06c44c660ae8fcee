package service

import (
	"errors"
	"strings"

	"github.com/noah-isme/judging-integrity-api/internal/models"
)

var (
	// ErrUnauthenticated indicates the caller carries no identity.
	ErrUnauthenticated = errors.New("authentication required")
	// ErrInsufficientPermissions indicates the caller may not perform the operation.
	ErrInsufficientPermissions = errors.New("insufficient permissions")
)

// Actor is the pre-verified identity and role of the caller. Every operation
// receives it explicitly; permission checks are pure functions over it.
type Actor struct {
	ID   uint
	Role string
}

// Authenticated reports whether the actor carries an identity.
func (a Actor) Authenticated() bool {
	return a.ID != 0
}

// HasRole reports whether the actor holds any of the given roles.
func (a Actor) HasRole(roles ...string) bool {
	role := normalizeRole(a.Role)
	for _, candidate := range roles {
		if role == candidate {
			return true
		}
	}
	return false
}

// CanAdministerHackathon reports whether the actor may lock, unlock or audit the hackathon.
func CanAdministerHackathon(actor Actor, hackathon models.Hackathon) bool {
	if !actor.Authenticated() {
		return false
	}
	if actor.HasRole(models.RoleAdmin) {
		return true
	}
	return hackathon.OrganizerID != 0 && hackathon.OrganizerID == actor.ID
}

// CanViewProjectVerification reports whether the actor may see the verification
// report of a project: its owner, staff, judges, or anyone when the project is public.
func CanViewProjectVerification(actor Actor, project models.Project) bool {
	if !actor.Authenticated() {
		return false
	}
	if project.OwnerID == actor.ID {
		return true
	}
	if actor.HasRole(models.RoleAdmin, models.RoleModerator, models.RoleJudge) {
		return true
	}
	return project.IsPublic
}

// CanScore reports whether the actor may submit scores given roster membership.
func CanScore(actor Actor, onRoster bool) bool {
	return actor.Authenticated() && actor.HasRole(models.RoleJudge) && onRoster
}

func normalizeRole(role string) string {
	r := strings.ToLower(strings.TrimSpace(role))
	if r == "" {
		return "system"
	}
	return r
}

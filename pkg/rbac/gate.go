package rbac

import (
	"context"

	"github.com/traceloft/traceloft/pkg/apperrors"
)

// DecisionRecorder observes authorization outcomes, typically backing a
// metrics counter.
type DecisionRecorder interface {
	RecordAuthzDecision(resource, action string, allowed bool)
}

// PermissionGate is the single entry point every resource operation calls
// before touching storage. It resolves the caller's effective role and
// checks it against the static permission tables.
type PermissionGate struct {
	resolver *RoleResolver
	recorder DecisionRecorder
}

// NewPermissionGate creates a gate on top of the resolver.
func NewPermissionGate(resolver *RoleResolver) *PermissionGate {
	return &PermissionGate{resolver: resolver}
}

// SetRecorder attaches a decision recorder. A nil gate recorder means
// decisions go unrecorded.
func (g *PermissionGate) SetRecorder(recorder DecisionRecorder) {
	g.recorder = recorder
}

func (g *PermissionGate) record(resource Resource, action Action, allowed bool) {
	if g.recorder != nil {
		g.recorder.RecordAuthzDecision(string(resource), string(action), allowed)
	}
}

// Resolver exposes the underlying resolver for call sites that need raw
// role resolution (founder grants, org-scoped key checks).
func (g *PermissionGate) Resolver() *RoleResolver {
	return g.resolver
}

// Authorize resolves the caller's role for the scope and verifies it may
// perform the action on the resource kind. The resolved role is returned so
// callers can apply role-sensitive post-checks such as ownership-gated
// deletes.
//
// Failure modes: NotFound when the caller has no path to the scope (the
// resolver's existence hiding), PermissionDenied when the role is known but
// not in the allowed set.
func (g *PermissionGate) Authorize(ctx context.Context, userID string, resource Resource, action Action, scope Scope) (ProjectRole, error) {
	role, err := g.resolver.ResolveScope(ctx, userID, scope)
	if err != nil {
		g.record(resource, action, false)
		return "", err
	}
	if !roleAllowed(resource, action, role) {
		g.record(resource, action, false)
		return "", apperrors.PermissionDeniedf("role %s cannot %s %s", role, action, resource)
	}
	g.record(resource, action, true)
	return role, nil
}

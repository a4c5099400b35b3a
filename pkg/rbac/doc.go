// Package rbac implements hierarchical role resolution and permission
// gating for the organization → project → environment resource chain.
//
// The RoleResolver computes effective roles with implicit escalation
// (organization OWNER/ADMIN act as project ADMIN everywhere in the org)
// and existence hiding (every unauthorized or missing path is the same
// NotFound). The PermissionGate layers static per-resource permission
// tables on top and is the single authorization entry point for every
// service in the core.
package rbac

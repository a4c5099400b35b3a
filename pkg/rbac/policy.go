package rbac

// allRoles is every project role; used for open-read tables.
var allRoles = []ProjectRole{
	ProjectRoleAdmin,
	ProjectRoleDeveloper,
	ProjectRoleViewer,
	ProjectRoleAnnotator,
}

var adminOnly = []ProjectRole{ProjectRoleAdmin}

var adminAndDeveloper = []ProjectRole{ProjectRoleAdmin, ProjectRoleDeveloper}

// permissionTables maps resource kind and action to the set of project
// roles allowed to perform it. Pure data; cross-cutting rules (self-guard,
// founder grant, parent-membership precondition) live at the call sites.
var permissionTables = map[Resource]map[Action][]ProjectRole{
	ResourceAPIKeys: {
		ActionCreate: adminAndDeveloper,
		ActionRead:   adminAndDeveloper,
		ActionUpdate: adminAndDeveloper,
		ActionDelete: adminAndDeveloper,
	},
	ResourceTraces: {
		ActionCreate: adminAndDeveloper,
		ActionRead:   allRoles,
		ActionUpdate: adminAndDeveloper,
		ActionDelete: adminOnly,
	},
	ResourceProjectMemberships: {
		ActionCreate: adminOnly,
		ActionRead:   allRoles,
		ActionUpdate: adminOnly,
		ActionDelete: adminOnly,
	},
	ResourceEnvironments: {
		ActionCreate: adminOnly,
		ActionRead:   allRoles,
		ActionUpdate: adminOnly,
		ActionDelete: adminOnly,
	},
}

// roleAllowed reports whether role appears in the allowed set for the
// resource/action pair. Unknown pairs deny.
func roleAllowed(resource Resource, action Action, role ProjectRole) bool {
	actions, ok := permissionTables[resource]
	if !ok {
		return false
	}
	allowed, ok := actions[action]
	if !ok {
		return false
	}
	for _, r := range allowed {
		if r == role {
			return true
		}
	}
	return false
}

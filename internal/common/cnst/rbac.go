package cnst

// Seed role slugs. Admin, member, and viewer are created at bootstrap;
// superadmin is created lazily the first time it is assigned.
const (
	RoleAdmin      = "admin"
	RoleMember     = "member"
	RoleViewer     = "viewer"
	RoleSuperadmin = "superadmin"
)

// Permission names follow the resource:action convention. Team-scoped
// operations nest the sub-resource: teams:members:add.
const (
	PermRolesRead     = "roles:read"
	PermRolesCreate   = "roles:create"
	PermRolesUpdate   = "roles:update"
	PermRolesDelete   = "roles:delete"
	PermUsersRead     = "users:read"
	PermUsersUpdate   = "users:update"
	PermTeamsRead     = "teams:read"
	PermTeamsUpdate   = "teams:update"
	PermTeamsDelete   = "teams:delete"
	PermMembersAdd    = "teams:members:add"
	PermMembersRemove = "teams:members:remove"
	PermMembersUpdate = "teams:members:update"
	PermInvitesCreate = "teams:invitations:create"
	PermInvitesCancel = "teams:invitations:cancel"
)

// InvitationStatus values.
const (
	InvitationPending   = "pending"
	InvitationAccepted  = "accepted"
	InvitationExpired   = "expired"
	InvitationCancelled = "cancelled"
)

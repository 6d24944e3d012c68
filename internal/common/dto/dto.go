// Package dto holds the request and response shapes of the HTTP API.
package dto

// --- auth ---

type RegisterRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresIn   int64  `json:"expiresIn"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

type UpdateProfileRequest struct {
	FirstName *string `json:"firstName" binding:"omitempty,max=100"`
	LastName  *string `json:"lastName" binding:"omitempty,max=100"`
	Theme     *string `json:"theme" binding:"omitempty,oneof=light dark system"`
}

// --- rbac ---

type CreateRoleRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

type UpdateRoleRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description"`
	IsActive    *bool   `json:"isActive"`
}

type GrantPermissionRequest struct {
	PermissionID uint `json:"permissionId" binding:"required"`
}

type AssignRoleRequest struct {
	UserID uint `json:"userId" binding:"required"`
	RoleID uint `json:"roleId" binding:"required"`
}

type CheckPermissionRequest struct {
	Permission string `json:"permission" binding:"required"`
	TeamID     *uint  `json:"teamId"`
}

type CheckPermissionResponse struct {
	Allowed bool `json:"allowed"`
}

// --- teams ---

type CreateTeamRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description"`
}

type UpdateTeamRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description"`
}

type AddMemberRequest struct {
	UserID uint `json:"userId" binding:"required"`
	RoleID uint `json:"roleId" binding:"required"`
}

type UpdateMemberRequest struct {
	RoleID   *uint `json:"roleId"`
	IsActive *bool `json:"isActive"`
}

// --- invitations ---

type CreateInvitationRequest struct {
	Email   string `json:"email" binding:"required,email"`
	TeamID  *uint  `json:"teamId"`
	RoleID  *uint  `json:"roleId"`
	Message string `json:"message" binding:"max=2000"`
}

// --- billing ---

type CheckoutRequest struct {
	PlanID uint `json:"planId" binding:"required"`
}

type RedirectResponse struct {
	URL string `json:"url"`
}

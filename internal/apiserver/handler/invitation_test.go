package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/nimbuslab/crewbase/internal/common/cnst"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// invite issues a team invitation and returns its id and token.
func (e *testEnv) invite(token string, teamID uint, email string) (uint, string) {
	e.t.Helper()
	body := map[string]any{"email": email}
	if teamID != 0 {
		body["teamId"] = teamID
	}
	w := e.do(http.MethodPost, "/api/invitations", token, body)
	require.Equal(e.t, http.StatusCreated, w.Code, w.Body.String())
	invID := uint(jsonField(w, "id").Uint())

	inv, err := e.db.GetInvitationByID(context.Background(), invID)
	require.NoError(e.t, err)
	return invID, inv.Token
}

func TestInvitationLifecycle(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	invitee, inviteeToken := e.signup("invitee@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	_, token := e.invite(ownerToken, teamID, "invitee@example.com")

	// public preview by token
	w := e.do(http.MethodGet, "/api/invitations/token/"+token, "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, jsonField(w, "valid").Bool())
	assert.Equal(t, "invitee@example.com", jsonField(w, "email").String())

	// accept
	w = e.do(http.MethodPost, "/api/invitations/token/"+token+"/accept", inviteeToken, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, cnst.InvitationAccepted, jsonField(w, "status").String())

	// the invitee is now a member with the default member role
	member, err := e.db.GetTeamMember(context.Background(), teamID, invitee.ID)
	require.NoError(t, err)
	memberRole, err := e.db.GetRoleBySlug(context.Background(), cnst.RoleMember)
	require.NoError(t, err)
	assert.Equal(t, memberRole.ID, member.RoleID)

	// a second accept is rejected
	w = e.do(http.MethodPost, "/api/invitations/token/"+token+"/accept", inviteeToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAcceptRequiresMatchingEmail(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	_, strangerToken := e.signup("stranger@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	_, token := e.invite(ownerToken, teamID, "invitee@example.com")

	w := e.do(http.MethodPost, "/api/invitations/token/"+token+"/accept", strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestExpiredInvitationCannotBeAccepted(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	_, inviteeToken := e.signup("invitee@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	invID, token := e.invite(ownerToken, teamID, "invitee@example.com")

	ctx := context.Background()
	inv, err := e.db.GetInvitationByID(ctx, invID)
	require.NoError(t, err)
	inv.ExpiresAt = time.Now().Add(-time.Hour)
	require.NoError(t, e.db.UpdateInvitation(ctx, inv))

	w := e.do(http.MethodPost, "/api/invitations/token/"+token+"/accept", inviteeToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// the expiry is persisted on the row
	inv, err = e.db.GetInvitationByID(ctx, invID)
	require.NoError(t, err)
	assert.Equal(t, cnst.InvitationExpired, inv.Status)
}

func TestCancelInvitation(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	_, strangerToken := e.signup("stranger@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	invID, token := e.invite(ownerToken, teamID, "invitee@example.com")

	// an unrelated user cannot cancel
	w := e.do(http.MethodPost, fmt.Sprintf("/api/invitations/%d/cancel", invID), strangerToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = e.do(http.MethodPost, fmt.Sprintf("/api/invitations/%d/cancel", invID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, cnst.InvitationCancelled, jsonField(w, "status").String())

	// a cancelled invitation is no longer acceptable
	_, inviteeToken := e.signup("invitee@example.com")
	w = e.do(http.MethodPost, "/api/invitations/token/"+token+"/accept", inviteeToken, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestResendRotatesToken(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	invID, oldToken := e.invite(ownerToken, teamID, "invitee@example.com")

	w := e.do(http.MethodPost, fmt.Sprintf("/api/invitations/%d/resend", invID), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)

	inv, err := e.db.GetInvitationByID(context.Background(), invID)
	require.NoError(t, err)
	assert.NotEqual(t, oldToken, inv.Token)
	assert.Equal(t, cnst.InvitationPending, inv.Status)

	// the old token is dead
	w = e.do(http.MethodGet, "/api/invitations/token/"+oldToken, "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInviteExistingMemberConflicts(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	w := e.do(http.MethodPost, "/api/invitations", ownerToken, map[string]any{
		"email":  "owner@example.com",
		"teamId": teamID,
	})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestInvitationRequiresTeamPermission(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	_, strangerToken := e.signup("stranger@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")

	w := e.do(http.MethodPost, "/api/invitations", strangerToken, map[string]any{
		"email":  "friend@example.com",
		"teamId": teamID,
	})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestListSentInvitations(t *testing.T) {
	e := newTestEnv(t)
	_, ownerToken := e.signup("owner@example.com")
	teamID := e.createTeamID(ownerToken, "Acme")
	e.invite(ownerToken, teamID, "a@example.com")
	e.invite(ownerToken, teamID, "b@example.com")

	w := e.do(http.MethodGet, "/api/invitations/sent", ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, jsonField(w, "@this").Array(), 2)

	w = e.do(http.MethodGet, teamPath(teamID, "/invitations"), ownerToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, jsonField(w, "@this").Array(), 2)
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/nimbuslab/crewbase/internal/common/dto"
	"github.com/nimbuslab/crewbase/internal/common/errorx"
)

// ListPlans returns the purchasable plans. Public: pricing pages need it
// before signup.
func (h *Handler) ListPlans(c *gin.Context) {
	plans, err := h.billing.ListPlans(c.Request.Context())
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, plans)
}

// CurrentSubscription returns the user's entitling subscription.
func (h *Handler) CurrentSubscription(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	sub, err := h.billing.CurrentSubscription(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// CreateCheckout returns a hosted checkout URL for the requested plan.
func (h *Handler) CreateCheckout(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	var req dto.CheckoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.respondErr(c, errorx.ErrInvalidInput.WithMessage("%s", err.Error()))
		return
	}

	url, err := h.billing.CreateCheckout(c.Request.Context(), user, req.PlanID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RedirectResponse{URL: url})
}

// CreatePortal returns a billing portal URL.
func (h *Handler) CreatePortal(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	url, err := h.billing.CreatePortal(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.RedirectResponse{URL: url})
}

// CancelSubscription schedules the current subscription to end at the
// period boundary.
func (h *Handler) CancelSubscription(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	sub, err := h.billing.CancelAtPeriodEnd(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ResumeSubscription clears a pending cancelation.
func (h *Handler) ResumeSubscription(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	sub, err := h.billing.Resume(c.Request.Context(), user.ID)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

// ListInvoices returns the user's invoice history, newest first.
func (h *Handler) ListInvoices(c *gin.Context) {
	user, err := h.currentUser(c)
	if err != nil {
		h.respondErr(c, err)
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	invoices, err := h.billing.ListInvoices(c.Request.Context(), user.ID, limit)
	if err != nil {
		h.respondErr(c, err)
		return
	}
	c.JSON(http.StatusOK, invoices)
}

package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/validation"
)

func (a *api) listOrders(c *gin.Context) {
	status := c.Query("status")
	if status != "" && !orders.ValidStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}
	list, err := a.Orders.List(c.Request.Context(), status)
	if err != nil {
		a.fail(c, err)
		return
	}
	if list == nil {
		list = []orders.Order{}
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (a *api) getOrder(c *gin.Context) {
	o, err := a.Orders.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) setOrderStatus(c *gin.Context) {
	var req validation.OrderStatusRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	out, err := a.Lifecycle.SetStatus(c.Request.Context(), c.Param("id"), req.Status)
	a.respondOutcome(c, out, err)
}

func (a *api) approveReturn(c *gin.Context) {
	out, err := a.Lifecycle.ApproveReturn(c.Request.Context(), c.Param("id"))
	a.respondOutcome(c, out, err)
}

func (a *api) listDiscounts(c *gin.Context) {
	list, err := a.DiscountAdmin.List(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	if list == nil {
		list = []discount.Code{}
	}
	c.JSON(http.StatusOK, gin.H{"discounts": list})
}

func (a *api) createDiscount(c *gin.Context) {
	var req validation.DiscountRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	code, err := a.DiscountAdmin.Create(c.Request.Context(), discount.Code{
		Code:           req.Code,
		Type:           discount.Type(req.Type),
		Value:          req.Value,
		Description:    req.Description,
		Active:         true,
		StartsAt:       req.StartsAt,
		ExpiresAt:      req.ExpiresAt,
		MinPurchase:    req.MinPurchaseCents,
		MaxUses:        req.MaxUses,
		MaxUsesPerUser: req.MaxUsesPerUser,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, code)
}

func (a *api) setDiscountActive(c *gin.Context) {
	var req validation.DiscountActiveRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	code, err := a.DiscountAdmin.SetActive(c.Request.Context(), c.Param("id"), *req.Active)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

// runReminders emails shoppers whose carts went idle. Meant for a scheduler.
func (a *api) runReminders(c *gin.Context) {
	n, err := a.Reminders.Run(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sent": n})
}

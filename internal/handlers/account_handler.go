package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/account"
	"github.com/imrishuroy/sneakerstore/internal/lifecycle"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/validation"
)

func (a *api) getAccount(c *gin.Context) {
	id := currentUser(c)
	p, err := a.Profiles.Ensure(c.Request.Context(), id.UserID, id.Email)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *api) updateAccount(c *gin.Context) {
	var req validation.AccountRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	id := currentUser(c)
	if _, err := a.Profiles.Ensure(ctx, id.UserID, id.Email); err != nil {
		a.fail(c, err)
		return
	}

	u := account.Update{FullName: req.FullName, Phone: req.Phone}
	if addr := req.ShippingAddress; addr != nil {
		u.ShippingAddress = &orders.Address{
			Line1:      addr.Line1,
			Line2:      addr.Line2,
			City:       addr.City,
			PostalCode: addr.PostalCode,
			State:      addr.State,
			Country:    addr.Country,
		}
	}
	p, err := a.Profiles.Update(ctx, id.UserID, u)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *api) listMyOrders(c *gin.Context) {
	list, err := account.Orders(c.Request.Context(), a.Orders, currentUser(c).UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": list})
}

func (a *api) getMyOrder(c *gin.Context) {
	o, err := account.Order(c.Request.Context(), a.Orders, currentUser(c).UserID, c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}

func (a *api) respondOutcome(c *gin.Context, out *lifecycle.Outcome, err error) {
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"order": out.Order, "warnings": out.Warnings})
}

func (a *api) cancelMyOrder(c *gin.Context) {
	var req validation.CancelOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	out, err := a.Lifecycle.Cancel(c.Request.Context(), c.Param("id"), currentUser(c).UserID, req.Reason)
	a.respondOutcome(c, out, err)
}

func (a *api) returnMyOrder(c *gin.Context) {
	var req validation.ReturnOrderRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	out, err := a.Lifecycle.RequestReturn(c.Request.Context(), c.Param("id"), currentUser(c).UserID, req.Reason)
	a.respondOutcome(c, out, err)
}

// logout drops the session cookies and the cart that went with them.
func (a *api) logout(c *gin.Context) {
	if err := a.Carts.Clear(c.Request.Context(), cartID(c)); err != nil {
		a.Logger.Warn("clear cart on logout failed", zap.String("cart_id", cartID(c)), zap.Error(err))
	}
	for _, name := range []string{cookieAccess, cookieRefresh, cookieCart} {
		a.setCookie(c, name, "", -1)
	}
	c.JSON(http.StatusOK, gin.H{"logged_out": true})
}

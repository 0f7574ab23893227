package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/sneakerstore/internal/cart"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/validation"
)

func (a *api) respondCart(c *gin.Context, view cart.View, err error) {
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *api) getCart(c *gin.Context) {
	view, err := a.Carts.Get(c.Request.Context(), cartID(c))
	a.respondCart(c, view, err)
}

func (a *api) addCartItem(c *gin.Context) {
	var req validation.CartItemRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	view, err := a.Carts.Add(c.Request.Context(), cartID(c), req.ProductID, req.Size, req.Quantity)
	a.respondCart(c, view, err)
}

func (a *api) setCartQuantity(c *gin.Context) {
	var req validation.CartQuantityRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	view, err := a.Carts.SetQuantity(c.Request.Context(), cartID(c), req.ProductID, req.Size, req.Quantity)
	a.respondCart(c, view, err)
}

func (a *api) removeCartItem(c *gin.Context) {
	var req validation.CartLineRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	view, err := a.Carts.Remove(c.Request.Context(), cartID(c), req.ProductID, req.Size)
	a.respondCart(c, view, err)
}

func (a *api) applyCartDiscount(c *gin.Context) {
	var req validation.DiscountCodeRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	user := a.optionalUser(c)
	view, err := a.Carts.ApplyDiscount(c.Request.Context(), cartID(c), req.Code, user.UserID)
	a.respondCart(c, view, err)
}

func (a *api) removeCartDiscount(c *gin.Context) {
	view, err := a.Carts.RemoveDiscount(c.Request.Context(), cartID(c))
	a.respondCart(c, view, err)
}

func (a *api) toggleCart(c *gin.Context) {
	view, err := a.Carts.ToggleVisibility(c.Request.Context(), cartID(c))
	a.respondCart(c, view, err)
}

func (a *api) clearCart(c *gin.Context) {
	if err := a.Carts.Clear(c.Request.Context(), cartID(c)); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, cart.NewView(cartID(c), cart.State{}))
}

// validateDiscount answers whether a code applies. Without a subtotal the caller's cart is used.
func (a *api) validateDiscount(c *gin.Context) {
	var req validation.ValidateDiscountRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	subtotal := money.Cents(req.SubtotalCents)
	if subtotal == 0 {
		st, err := a.Carts.State(ctx, cartID(c))
		if err != nil {
			a.fail(c, err)
			return
		}
		subtotal = st.Subtotal()
	}
	user := a.optionalUser(c)
	res, err := a.Discounts.Validate(ctx, req.Code, subtotal, user.UserID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

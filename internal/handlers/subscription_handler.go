package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/sneakerstore/internal/validation"
)

func (a *api) subscribe(c *gin.Context) {
	var req validation.EmailRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	created, err := a.Subscriptions.Subscribe(c.Request.Context(), req.Email)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": true, "new": created})
}

func (a *api) unsubscribe(c *gin.Context) {
	var req validation.EmailRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	if err := a.Subscriptions.Unsubscribe(c.Request.Context(), req.Email); err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"subscribed": false})
}

func (a *api) joinVIP(c *gin.Context) {
	var req validation.EmailRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	res, err := a.Subscriptions.JoinVIP(c.Request.Context(), req.Email)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

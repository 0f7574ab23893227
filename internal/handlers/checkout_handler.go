package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/checkout"
	"github.com/imrishuroy/sneakerstore/internal/fulfillment"
	"github.com/imrishuroy/sneakerstore/internal/idempotency"
	"github.com/imrishuroy/sneakerstore/internal/payment"
	"github.com/imrishuroy/sneakerstore/internal/validation"
)

// createCheckoutSession prices the cart (or the posted items) from the catalog and returns
// the hosted payment page.
func (a *api) createCheckoutSession(c *gin.Context) {
	ctx := c.Request.Context()

	var req validation.CheckoutRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}

	items := make([]checkout.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, checkout.Item{ProductID: it.ProductID, Quantity: it.Quantity, Size: it.Size})
	}
	code := req.DiscountCode
	if len(items) == 0 || code == "" {
		st, err := a.Carts.State(ctx, cartID(c))
		if err != nil {
			a.fail(c, err)
			return
		}
		if len(items) == 0 {
			for _, it := range st.Items {
				items = append(items, checkout.Item{ProductID: it.ProductID, Quantity: it.Quantity, Size: it.Size})
			}
		}
		if code == "" && st.Discount != nil {
			code = st.Discount.Code
		}
	}

	creds := credentials(c)
	creds.GuestEmail = req.GuestEmail

	res, err := a.Checkout.Build(ctx, checkout.Request{
		Items:        items,
		DiscountCode: code,
		CartID:       cartID(c),
		Credentials:  creds,
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	a.storeTokens(c, res.Identity)

	if err := a.Carts.SetContact(ctx, cartID(c), res.Identity.UserID, res.Identity.Email); err != nil {
		a.Logger.Warn("attach cart contact failed", zap.String("cart_id", cartID(c)), zap.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"session_id": res.SessionID, "url": res.URL})
}

func completionBody(res *fulfillment.Result) gin.H {
	return gin.H{"order": res.Order, "created": res.Created, "warnings": res.Warnings}
}

// confirmCheckout is the success page fallback for a webhook that has not arrived yet.
func (a *api) confirmCheckout(c *gin.Context) {
	var req validation.ConfirmRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	res, err := a.Completer.Confirm(c.Request.Context(), req.SessionID)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, completionBody(res))
}

// stripeWebhook verifies the signature and handles each provider event once.
func (a *api) stripeWebhook(c *gin.Context) {
	ctx := c.Request.Context()

	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request_body", "detail": err.Error()})
		return
	}
	ev, err := a.Webhooks.ParseWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		a.Logger.Warn("webhook rejected", zap.Error(err))
		a.fail(c, err)
		return
	}

	key := "stripe_event#" + ev.ID
	rec, outcome, err := a.Events.Acquire(ctx, key, ev.Type, a.EventLease)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "idempotency_check_failed", "detail": err.Error()})
		return
	}
	switch outcome {
	case idempotency.AlreadyDone:
		if rec.ResponseBody != "" {
			c.Data(rec.ResponseStatus, "application/json", []byte(rec.ResponseBody))
			return
		}
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	case idempotency.InFlight:
		c.JSON(http.StatusConflict, gin.H{"error": "event_in_progress"})
		return
	}

	logger := a.Logger.With(zap.String("event_id", ev.ID), zap.String("event_type", ev.Type))
	body := gin.H{"received": true}

	switch ev.Type {
	case payment.EventCheckoutCompleted:
		if ev.Session == nil {
			body["ignored"] = "no session"
			break
		}
		res, err := a.Completer.Complete(ctx, ev.Session)
		if errors.Is(err, fulfillment.ErrNotPaid) {
			logger.Info("checkout completed without payment", zap.String("session_id", ev.Session.ID))
			body["ignored"] = "not paid"
			break
		}
		if err != nil {
			logger.Error("order completion failed", zap.Error(err))
			_ = a.Events.MarkFailed(ctx, key, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "completion_failed", "detail": err.Error()})
			return
		}
		body["order_id"] = res.Order.OrderID
		body["created"] = res.Created
	case payment.EventPaymentFailed:
		logger.Warn("payment failed",
			zap.String("payment_intent", ev.PaymentIntentID),
			zap.String("reason", ev.FailureMessage))
	case payment.EventChargeRefunded:
		if err := a.Completer.RecordRefund(ctx, ev); err != nil {
			logger.Error("record refund failed", zap.Error(err))
			_ = a.Events.MarkFailed(ctx, key, err.Error())
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refund_update_failed", "detail": err.Error()})
			return
		}
	default:
		body["ignored"] = "unhandled event type"
	}

	raw, _ := json.Marshal(body)
	if err := a.Events.MarkDone(ctx, key, string(raw), http.StatusOK); err != nil {
		logger.Warn("mark event done failed", zap.Error(err))
	}
	c.Data(http.StatusOK, "application/json", raw)
}

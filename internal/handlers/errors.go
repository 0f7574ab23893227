package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/imrishuroy/sneakerstore/internal/account"
	"github.com/imrishuroy/sneakerstore/internal/cart"
	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/checkout"
	"github.com/imrishuroy/sneakerstore/internal/discount"
	"github.com/imrishuroy/sneakerstore/internal/fulfillment"
	"github.com/imrishuroy/sneakerstore/internal/identity"
	"github.com/imrishuroy/sneakerstore/internal/invoice"
	"github.com/imrishuroy/sneakerstore/internal/lifecycle"
	"github.com/imrishuroy/sneakerstore/internal/orders"
	"github.com/imrishuroy/sneakerstore/internal/payment"
)

// fail maps a domain error to its status code and writes the response.
func (a *api) fail(c *gin.Context, err error) {
	var (
		conflict   *checkout.StockConflictError
		invalid    *discount.InvalidError
		provider   *checkout.ProviderError
		transition *lifecycle.TransitionError
	)
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": "insufficient_stock", "items": conflict.Items})
	case errors.As(err, &invalid):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_discount", "reason": invalid.Reason, "detail": invalid.Error()})
	case errors.As(err, &transition):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "from": transition.From, "to": transition.To, "detail": err.Error()})
	case errors.As(err, &provider):
		a.Logger.Error("payment provider error", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "payment_provider_error", "detail": provider.Error()})

	case errors.Is(err, identity.ErrEmailRegistered):
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_registered", "detail": "This email belongs to an account. Please sign in to continue."})
	case errors.Is(err, identity.ErrIdentityRequired):
		c.JSON(http.StatusBadRequest, gin.H{"error": "email_required", "detail": err.Error()})
	case errors.Is(err, identity.ErrInvalidEmail):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_email", "detail": err.Error()})
	case errors.Is(err, identity.ErrSessionExpired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session_expired", "detail": "Your session has expired. Please sign in again."})

	case errors.Is(err, checkout.ErrEmptyCart):
		c.JSON(http.StatusBadRequest, gin.H{"error": "empty_cart", "detail": err.Error()})
	case errors.Is(err, checkout.ErrEnvelopeTooLarge):
		c.JSON(http.StatusBadRequest, gin.H{"error": "cart_too_large", "detail": err.Error()})
	case errors.Is(err, cart.ErrProductUnavailable), errors.Is(err, cart.ErrUnknownSize):
		c.JSON(http.StatusBadRequest, gin.H{"error": "product_unavailable", "detail": err.Error()})
	case errors.Is(err, fulfillment.ErrNotPaid):
		c.JSON(http.StatusPaymentRequired, gin.H{"error": "not_paid", "detail": err.Error()})
	case errors.Is(err, payment.ErrInvalidSignature):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})

	case errors.Is(err, lifecycle.ErrForbidden), errors.Is(err, account.ErrNotOwner):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, lifecycle.ErrReturnNotRequested), errors.Is(err, lifecycle.ErrReturnAlreadyPending), errors.Is(err, orders.ErrStatusMismatch):
		c.JSON(http.StatusConflict, gin.H{"error": "invalid_transition", "detail": err.Error()})
	case errors.Is(err, lifecycle.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status", "detail": err.Error()})
	case errors.Is(err, discount.ErrCodeExists):
		c.JSON(http.StatusConflict, gin.H{"error": "discount_code_exists"})

	case errors.Is(err, orders.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "order_not_found"})
	case errors.Is(err, catalog.ErrProductNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
	case errors.Is(err, catalog.ErrCategoryNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "category_not_found"})
	case errors.Is(err, discount.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "discount_not_found"})
	case errors.Is(err, account.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
	case errors.Is(err, invoice.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "invoice_not_found"})

	default:
		fields := []zap.Field{zap.String("path", c.FullPath()), zap.Error(err)}
		if sc := trace.SpanFromContext(c.Request.Context()).SpanContext(); sc.IsValid() {
			fields = append(fields, zap.String("trace_id", sc.TraceID().String()))
		}
		a.Logger.Error("request failed", fields...)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "detail": err.Error()})
	}
}

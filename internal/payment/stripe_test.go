package payment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v81/webhook"

	"github.com/imrishuroy/sneakerstore/internal/money"
)

const testSecret = "whsec_test"

func sign(t *testing.T, payload string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func TestParseWebhook_CheckoutCompleted(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	payload := `{
		"id": "evt_1",
		"object": "event",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"object": "checkout.session",
			"payment_status": "paid",
			"amount_total": 9000,
			"currency": "eur",
			"payment_intent": "pi_1",
			"metadata": {"user_id": "u1", "cart_chunks": "1", "cart_0": "[]"},
			"customer_details": {
				"email": "ana@example.com",
				"name": "Ana",
				"address": {"line1": "Calle 1", "city": "Madrid", "postal_code": "28001", "country": "ES"}
			}
		}}
	}`

	ev, err := s.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)

	assert.Equal(t, "evt_1", ev.ID)
	assert.Equal(t, EventCheckoutCompleted, ev.Type)
	require.NotNil(t, ev.Session)
	assert.True(t, ev.Session.Paid)
	require.NotNil(t, ev.Session.AmountTotal)
	assert.Equal(t, money.Cents(9000), *ev.Session.AmountTotal)
	assert.Equal(t, "pi_1", ev.Session.PaymentIntentID)
	assert.Equal(t, "ana@example.com", ev.Session.CustomerEmail)
	assert.Equal(t, "u1", ev.Session.Metadata["user_id"])
	require.NotNil(t, ev.Session.Address)
	assert.Equal(t, "Madrid", ev.Session.Address.City)
}

func TestParseWebhook_UnpaidSessionHasNoTotal(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	payload := `{"id":"evt_2","object":"event","type":"checkout.session.completed",
		"data":{"object":{"id":"cs_2","object":"checkout.session","payment_status":"unpaid","amount_total":0}}}`

	ev, err := s.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	assert.False(t, ev.Session.Paid)
	assert.Nil(t, ev.Session.AmountTotal)
}

func TestParseWebhook_Refund(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	payload := `{"id":"evt_3","object":"event","type":"charge.refunded",
		"data":{"object":{"id":"ch_1","object":"charge","payment_intent":"pi_1","amount_refunded":2500,"refunded":false}}}`

	ev, err := s.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "pi_1", ev.PaymentIntentID)
	assert.Equal(t, money.Cents(2500), ev.AmountRefunded)
	assert.False(t, ev.FullyRefunded)
}

func TestParseWebhook_PaymentFailed(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	payload := `{"id":"evt_4","object":"event","type":"payment_intent.payment_failed",
		"data":{"object":{"id":"pi_9","object":"payment_intent","last_payment_error":{"message":"card declined"}}}}`

	ev, err := s.ParseWebhook([]byte(payload), sign(t, payload))
	require.NoError(t, err)
	assert.Equal(t, "pi_9", ev.PaymentIntentID)
	assert.Equal(t, "card declined", ev.FailureMessage)
}

func TestParseWebhook_BadSignature(t *testing.T) {
	s := NewStripe("sk_test", testSecret)
	payload := `{"id":"evt_5","object":"event","type":"charge.refunded","data":{"object":{}}}`

	_, err := s.ParseWebhook([]byte(payload), "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	other := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: []byte(payload), Secret: "whsec_other", Timestamp: time.Now()})
	_, err = s.ParseWebhook([]byte(payload), other.Header)
	assert.ErrorIs(t, err, ErrInvalidSignature)
}

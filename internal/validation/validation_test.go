package validation

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

func TestCartItemRequest_Valid(t *testing.T) {
	v := New()

	for _, size := range []string{"36", "42.5", "44 2/3"} {
		req := CartItemRequest{ProductID: "p1", Size: size, Quantity: 2}
		if err := v.Struct(req); err != nil {
			t.Fatalf("size %q: expected valid, got error: %v", size, err)
		}
	}
}

func TestCartItemRequest_InvalidSize(t *testing.T) {
	v := New()

	for _, size := range []string{"", "XL", "4", "42.7", "420"} {
		req := CartItemRequest{ProductID: "p1", Size: size, Quantity: 1}
		if err := v.Struct(req); err == nil {
			t.Fatalf("size %q: expected validation error, got nil", size)
		}
	}
}

func TestCartQuantityRequest_ZeroAllowed(t *testing.T) {
	v := New()

	if err := v.Struct(CartQuantityRequest{ProductID: "p1", Size: "42", Quantity: 0}); err != nil {
		t.Fatalf("expected zero quantity to be valid, got %v", err)
	}
	if err := v.Struct(CartQuantityRequest{ProductID: "p1", Size: "42", Quantity: -1}); err == nil {
		t.Fatal("expected negative quantity to fail")
	}
}

func TestCheckoutRequest(t *testing.T) {
	v := New()

	ok := CheckoutRequest{
		Items:      []CheckoutItem{{ProductID: "p1", Size: "42", Quantity: 1}},
		GuestEmail: "guest@example.com",
	}
	if err := v.Struct(ok); err != nil {
		t.Fatalf("expected valid, got error: %v", err)
	}

	// items come from the cart when omitted
	if err := v.Struct(CheckoutRequest{}); err != nil {
		t.Fatalf("expected empty request to be valid, got %v", err)
	}

	bad := CheckoutRequest{
		Items:      []CheckoutItem{{ProductID: "", Size: "42", Quantity: 0}},
		GuestEmail: "not-an-email",
	}
	err := v.Struct(bad)
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	fields := FieldErrors(err)
	for _, f := range []string{"product_id", "quantity", "guest_email"} {
		if _, ok := fields[f]; !ok {
			t.Fatalf("expected error for %s, got %v", f, fields)
		}
	}
}

func TestOrderStatusRequest(t *testing.T) {
	v := New()

	if err := v.Struct(OrderStatusRequest{Status: "shipped"}); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}
	if err := v.Struct(OrderStatusRequest{Status: "lost"}); err == nil {
		t.Fatal("expected unknown status to fail")
	}
}

func TestDiscountRequest_PercentageRange(t *testing.T) {
	v := New()

	req := DiscountRequest{Code: "SUMMER10", Type: "percentage", Value: decimal.NewFromInt(10)}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	req.Value = decimal.NewFromInt(120)
	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected percentage above 100 to fail")
	}
	if got := FieldErrors(err)["discount_value"]; got != "max_percent=100" {
		t.Fatalf("unexpected rule: %q", got)
	}

	req.Value = decimal.Zero
	if err := v.Struct(req); err == nil {
		t.Fatal("expected zero value to fail")
	}
}

func TestDiscountRequest_FixedWholeCents(t *testing.T) {
	v := New()

	req := DiscountRequest{Code: "TENOFF", Type: "fixed", Value: decimal.RequireFromString("1000.5")}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected fractional cents to fail")
	}
}

func TestDiscountRequest_Window(t *testing.T) {
	v := New()

	start := time.Now()
	end := start.Add(-time.Hour)
	req := DiscountRequest{Code: "X1", Type: "fixed", Value: decimal.NewFromInt(500), StartsAt: &start, ExpiresAt: &end}

	err := v.Struct(req)
	if err == nil {
		t.Fatal("expected expiry before start to fail")
	}
	if _, ok := FieldErrors(err)["expires_at"]; !ok {
		t.Fatalf("expected expires_at error, got %v", FieldErrors(err))
	}
}

func TestProductRequest_SizeKeys(t *testing.T) {
	v := New()

	req := ProductRequest{Name: "Runner", Brand: "Acme", PriceCents: 9000, SizesAvailable: map[string]int{"42": 3}}
	if err := v.Struct(req); err != nil {
		t.Fatalf("expected valid, got %v", err)
	}

	req.SizesAvailable = map[string]int{"big": 3}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected invalid size key to fail")
	}

	req.SizesAvailable = map[string]int{"42": -1}
	if err := v.Struct(req); err == nil {
		t.Fatal("expected negative stock to fail")
	}
}

func TestBindAndValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	v := New()

	cases := []struct {
		name  string
		body  string
		code  string
		valid bool
	}{
		{"valid", `{"email":"a@example.com"}`, "", true},
		{"malformed", `{"email":`, "invalid_request_body", false},
		{"invalid", `{"email":"nope"}`, "validation_failed", false},
	}

	for _, tc := range cases {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tc.body))
		c.Request.Header.Set("Content-Type", "application/json")

		var req EmailRequest
		err := BindAndValidate(c, &req, v)
		if tc.valid {
			if err != nil {
				t.Fatalf("%s: expected nil, got %v", tc.name, err)
			}
			continue
		}
		if err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
		if w.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tc.name, w.Code)
		}
		if !strings.Contains(w.Body.String(), tc.code) {
			t.Fatalf("%s: expected %q in body, got %s", tc.name, tc.code, w.Body.String())
		}
	}
}

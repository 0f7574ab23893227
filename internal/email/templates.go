package email

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/imrishuroy/sneakerstore/internal/cart"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/orders"
)

var funcs = template.FuncMap{
	"price": func(c money.Cents, currency string) string { return c.Format(currency) },
	"short": shortID,
}

var templates = template.Must(template.New("email").Funcs(funcs).Parse(`
{{define "items"}}<table>{{range .Items}}<tr><td>{{.Name}}</td><td>{{.Size}}</td><td>x{{.Quantity}}</td><td>{{price .LineTotal $.Currency}}</td></tr>{{end}}</table>{{end}}

{{define "confirmation"}}<h1>Thanks for your order</h1>
<p>Order <b>#{{short .OrderID}}</b> is confirmed.</p>
{{template "items" .}}
{{if .DiscountCode}}<p>Discount {{.DiscountCode}}: -{{price .DiscountCents .Currency}}</p>{{end}}
<p>Total: <b>{{price .TotalCents .Currency}}</b></p>{{end}}

{{define "operator"}}<h1>{{.Title}}</h1>
<p>Order <b>{{.Order.OrderID}}</b> from {{.Order.BillingEmail}} ({{.Order.Status}}).</p>
{{if .Reason}}<p>Reason: {{.Reason}}</p>{{end}}
{{template "items" .Order}}
<p>Total: {{price .Order.TotalCents .Order.Currency}}</p>{{end}}

{{define "refund"}}{{if .Refund}}{{if .Refund.Error}}<p>We could not refund your payment automatically. Our team will contact you.</p>{{else}}<p>A refund of {{price .Refund.AmountCents .Currency}} is on its way.</p>{{end}}{{end}}{{end}}

{{define "cancelled"}}<h1>Your order was cancelled</h1>
<p>Order <b>#{{short .OrderID}}</b> has been cancelled.</p>
{{template "refund" .}}{{end}}

{{define "returned"}}<h1>We received your return</h1>
<p>The return of order <b>#{{short .OrderID}}</b> is complete.</p>
{{template "items" .}}
{{template "refund" .}}{{end}}

{{define "shipped"}}<h1>Your order is on its way</h1>
<p>Order <b>#{{short .OrderID}}</b> has shipped.</p>
{{template "items" .}}{{end}}

{{define "newsletter"}}<h1>Welcome</h1><p>You are now subscribed to our newsletter.</p>{{end}}

{{define "vip"}}<h1>Welcome to VIP</h1>
<p>Your personal code <b>{{.Code}}</b> gives you {{.Percent}}% off your next order.</p>{{end}}

{{define "abandoned"}}<h1>You left something behind</h1>
<table>{{range .View.Items}}<tr><td>{{.Name}}</td><td>{{.Size}}</td><td>x{{.Quantity}}</td></tr>{{end}}</table>
<p><a href="{{.Link}}">Complete your order</a></p>{{end}}
`))

func render(name string, data any) string {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		// templates are static; a failure here is a programming error
		panic(fmt.Sprintf("render %s: %v", name, err))
	}
	return strings.TrimSpace(buf.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return strings.ToUpper(id[:8])
	}
	return strings.ToUpper(id)
}

func pdfAttachment(number string, pdf []byte) []Attachment {
	if len(pdf) == 0 {
		return nil
	}
	return []Attachment{{Filename: number + ".pdf", ContentType: "application/pdf", Content: pdf}}
}

// OrderConfirmation goes to the customer with the standard invoice attached.
func OrderConfirmation(o orders.Order, invoiceNumber string, pdf []byte) Message {
	return Message{
		To:          o.BillingEmail,
		ToName:      o.CustomerName,
		Subject:     fmt.Sprintf("Order #%s confirmed", shortID(o.OrderID)),
		Text:        fmt.Sprintf("Your order #%s is confirmed. Total %s.", shortID(o.OrderID), o.TotalCents.Format(o.Currency)),
		HTML:        render("confirmation", o),
		Attachments: pdfAttachment(invoiceNumber, pdf),
	}
}

// OperatorNotice tells the shop operator about an order event.
func OperatorNotice(to, title string, o orders.Order, reason string) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("%s: order %s", title, o.OrderID),
		Text:    fmt.Sprintf("%s: order %s from %s.", title, o.OrderID, o.BillingEmail),
		HTML: render("operator", struct {
			Title  string
			Order  orders.Order
			Reason string
		}{title, o, reason}),
	}
}

// OrderCancelled goes to the customer with the rectification invoice attached.
func OrderCancelled(o orders.Order, invoiceNumber string, pdf []byte) Message {
	return Message{
		To:          o.BillingEmail,
		ToName:      o.CustomerName,
		Subject:     fmt.Sprintf("Order #%s cancelled", shortID(o.OrderID)),
		Text:        fmt.Sprintf("Your order #%s has been cancelled.", shortID(o.OrderID)),
		HTML:        render("cancelled", o),
		Attachments: pdfAttachment(invoiceNumber, pdf),
	}
}

// OrderReturned confirms an accepted return, rectification invoice attached.
func OrderReturned(o orders.Order, invoiceNumber string, pdf []byte) Message {
	return Message{
		To:          o.BillingEmail,
		ToName:      o.CustomerName,
		Subject:     fmt.Sprintf("Return of order #%s accepted", shortID(o.OrderID)),
		Text:        fmt.Sprintf("The return of your order #%s is complete.", shortID(o.OrderID)),
		HTML:        render("returned", o),
		Attachments: pdfAttachment(invoiceNumber, pdf),
	}
}

func OrderShipped(o orders.Order) Message {
	return Message{
		To:      o.BillingEmail,
		ToName:  o.CustomerName,
		Subject: fmt.Sprintf("Order #%s shipped", shortID(o.OrderID)),
		Text:    fmt.Sprintf("Your order #%s is on its way.", shortID(o.OrderID)),
		HTML:    render("shipped", o),
	}
}

func NewsletterWelcome(to string) Message {
	return Message{
		To:      to,
		Subject: "Welcome to our newsletter",
		Text:    "You are now subscribed to our newsletter.",
		HTML:    render("newsletter", nil),
	}
}

func VIPWelcome(to, code string, percent decimal.Decimal) Message {
	return Message{
		To:      to,
		Subject: "Your VIP code",
		Text:    fmt.Sprintf("Your personal code %s gives you %s%% off your next order.", code, percent),
		HTML: render("vip", struct {
			Code    string
			Percent string
		}{code, percent.String()}),
	}
}

func AbandonedCart(to string, view cart.View, siteURL string) Message {
	link := strings.TrimRight(siteURL, "/") + "/cart"
	return Message{
		To:      to,
		Subject: "You left something in your cart",
		Text:    fmt.Sprintf("You have %d item(s) waiting in your cart: %s", view.Count, link),
		HTML: render("abandoned", struct {
			View cart.View
			Link string
		}{view, link}),
	}
}

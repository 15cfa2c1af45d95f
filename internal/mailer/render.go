package mailer

import (
	"fmt"
	"html/template"
	"strings"

	"github.com/pluteo/webshop/internal/orders"
)

const (
	SubjectConfirmed = "Your Pluteo order confirmation"
	SubjectFailed    = "Your Pluteo order could not be completed"
)

var confirmedTmpl = template.Must(template.New("confirmed").Parse(`
<h2>Thank you for your purchase{{if .Name}}, {{.Name}}{{end}}!</h2>
<p>Your order has been received and is being processed.</p>
<h3>Order Details</h3>
<ul>
{{range .Items}}<li>{{.Description}} (x{{.Quantity}}) - {{.Amount}}</li>
{{end}}</ul>
<p><strong>Total:</strong> {{.Total}}</p>
<h3>Shipping Address</h3>
<p>
{{.Address.Name}}<br>
{{.Address.Line1}}<br>
{{.Address.City}}, {{.Address.PostalCode}}<br>
{{.Address.Country}}
</p>
<p>We&rsquo;ll notify you once your order has shipped.</p>
`))

var failedTmpl = template.Must(template.New("failed").Parse(`
<h2>We are sorry{{if .Name}}, {{.Name}}{{end}}.</h2>
<p>Your order could not be completed and no payment has been taken.
Any hold on your card will be released by your bank shortly.</p>
<p><strong>Order total:</strong> {{.Total}} (not charged)</p>
<p>Feel free to try again, or contact us if the problem persists.</p>
`))

type itemView struct {
	Description string
	Quantity    int64
	Amount      string
}

type orderView struct {
	Name    string
	Items   []itemView
	Total   string
	Address orders.Address
}

// RenderOrderConfirmed builds the success email for an order.
func RenderOrderConfirmed(o orders.Order) (subject, htmlBody string) {
	return SubjectConfirmed, render(confirmedTmpl, o)
}

// RenderOrderFailed builds the no-charge failure email for an order.
func RenderOrderFailed(o orders.Order) (subject, htmlBody string) {
	return SubjectFailed, render(failedTmpl, o)
}

func render(t *template.Template, o orders.Order) string {
	view := orderView{
		Name:    o.CustomerName,
		Total:   FormatAmount(o.TotalCents, o.Currency),
		Address: o.ShippingAddress,
	}
	for _, it := range o.Items {
		view.Items = append(view.Items, itemView{
			Description: it.Description,
			Quantity:    it.Quantity,
			Amount:      FormatAmount(it.AmountCents, o.Currency),
		})
	}
	var b strings.Builder
	if err := t.Execute(&b, view); err != nil {
		// Templates are static and the view is plain data; treat a failure
		// as a programming error rather than a runtime condition.
		panic(err)
	}
	return b.String()
}

// FormatAmount renders integer minor units for human reading.
func FormatAmount(cents int64, currency string) string {
	major := float64(cents) / 100
	if strings.EqualFold(currency, "eur") {
		return fmt.Sprintf("€%.2f", major)
	}
	return fmt.Sprintf("%.2f %s", major, strings.ToUpper(currency))
}

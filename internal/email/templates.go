package email

import (
	"fmt"
	"html"
	"strconv"
	"strings"
)

// OrderItem represents an item in an order for email purposes
type OrderItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     int
}

// OrderSummary is what the confirmation mail shows.
type OrderSummary struct {
	OrderID      string
	Items        []OrderItem
	Subtotal     int
	DeliveryFee  int
	Tax          int
	Total        int
	Instructions string
}

// StatusChange is what a status update mail shows. Note is the seller's
// note or the cancellation reason.
type StatusChange struct {
	OrderID string
	Status  string
	Note    string
}

const layout = `<!DOCTYPE html>
<html>
<head>
	<meta charset="UTF-8">
	<meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px;">
	<div style="background: linear-gradient(135deg, #16a34a 0%%, #15803d 100%%); padding: 30px; border-radius: 10px 10px 0 0;">
		<h1 style="color: white; margin: 0; font-size: 24px;">%s</h1>
	</div>

	<div style="background: #fff; padding: 30px; border: 1px solid #eee; border-top: none; border-radius: 0 0 10px 10px;">
		<div style="background: #f8f9fa; padding: 15px; border-radius: 5px; margin: 0 0 20px 0;">
			<p style="margin: 0; font-size: 14px; color: #666;">Order number</p>
			<p style="margin: 5px 0 0 0; font-size: 18px; font-weight: bold; font-family: monospace;">%s</p>
		</div>
		%s
		<hr style="border: none; border-top: 1px solid #eee; margin: 30px 0;">

		<p style="font-size: 12px; color: #999; margin-bottom: 0;">
			This is an automated message from LocalMart. Reply to your store if anything looks wrong.
		</p>
	</div>
</body>
</html>`

// BuildOrderConfirmationBody builds the HTML body for order confirmation email
func BuildOrderConfirmationBody(s OrderSummary) string {
	var rows strings.Builder
	for _, item := range s.Items {
		name := item.Name
		if name == "" {
			name = item.ProductID
		}
		fmt.Fprintf(&rows, `
				<tr>
					<td style="padding: 12px; border-bottom: 1px solid #eee;">%s</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: center;">%d</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
					<td style="padding: 12px; border-bottom: 1px solid #eee; text-align: right;">%s</td>
				</tr>`,
			html.EscapeString(name),
			item.Quantity,
			FormatRupees(item.Price),
			FormatRupees(item.Price*item.Quantity),
		)
	}

	var content strings.Builder
	content.WriteString(`<p style="margin-top: 0;">Thanks for shopping local. Your order is being prepared.</p>`)
	fmt.Fprintf(&content, `
		<table style="width: 100%%; border-collapse: collapse; margin: 20px 0;">
			<thead>
				<tr style="background: #f8f9fa;">
					<th style="padding: 12px; text-align: left; font-weight: 600;">Item</th>
					<th style="padding: 12px; text-align: center; font-weight: 600;">Qty</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Price</th>
					<th style="padding: 12px; text-align: right; font-weight: 600;">Subtotal</th>
				</tr>
			</thead>
			<tbody>%s
			</tbody>
		</table>`, rows.String())

	content.WriteString(`
		<div style="text-align: right; padding: 20px; background: #f8f9fa; border-radius: 5px;">`)
	summaryLine(&content, "Subtotal", s.Subtotal)
	summaryLine(&content, "Delivery fee", s.DeliveryFee)
	if s.Tax > 0 {
		summaryLine(&content, "Tax", s.Tax)
	}
	fmt.Fprintf(&content, `
			<p style="margin: 10px 0 0 0;"><span style="font-size: 14px; color: #666;">Total</span>
			<span style="font-size: 24px; font-weight: bold; color: #16a34a; margin-left: 10px;">%s</span></p>
		</div>`, FormatRupees(s.Total))

	if s.Instructions != "" {
		fmt.Fprintf(&content, `
		<p style="margin-top: 20px;"><strong>Delivery instructions:</strong> %s</p>`, html.EscapeString(s.Instructions))
	}

	return fmt.Sprintf(layout, "Thank you for your order", html.EscapeString(s.OrderID), content.String())
}

func summaryLine(b *strings.Builder, label string, amount int) {
	fmt.Fprintf(b, `
			<p style="margin: 0; font-size: 14px; color: #666;">%s: %s</p>`, label, FormatRupees(amount))
}

// BuildStatusUpdateBody builds the HTML body for a status change email
func BuildStatusUpdateBody(c StatusChange) string {
	var content strings.Builder
	fmt.Fprintf(&content, `<p style="margin-top: 0;">%s</p>`, statusSentence(c.Status))
	if c.Note != "" {
		fmt.Fprintf(&content, `
		<p style="background: #f8f9fa; padding: 15px; border-radius: 5px; font-style: italic;">%s</p>`, html.EscapeString(c.Note))
	}
	return fmt.Sprintf(layout, "Order "+html.EscapeString(strings.ToLower(c.Status)), html.EscapeString(c.OrderID), content.String())
}

func statusSentence(status string) string {
	switch status {
	case "Out for Delivery":
		return "Good news! Your order has left the store and a delivery partner is on the way."
	case "Delivered":
		return "Your order has been delivered. Enjoy!"
	case "Cancelled":
		return "Your order has been cancelled. You have not been charged."
	default:
		return "Your order is now " + html.EscapeString(status) + "."
	}
}

// FormatRupees formats whole rupees with Indian digit grouping, for
// example 123456 as ₹1,23,456.
func FormatRupees(n int) string {
	sign := ""
	if n < 0 {
		sign = "-"
		n = -n
	}
	str := strconv.Itoa(n)
	if len(str) <= 3 {
		return sign + "₹" + str
	}

	head, tail := str[:len(str)-3], str[len(str)-3:]
	var groups []string
	for len(head) > 2 {
		groups = append([]string{head[len(head)-2:]}, groups...)
		head = head[:len(head)-2]
	}
	if head != "" {
		groups = append([]string{head}, groups...)
	}
	return sign + "₹" + strings.Join(groups, ",") + "," + tail
}

// Package notify renders the WhatsApp messages sent for checkouts and
// status changes. Every function here is pure: the caller passes the
// timestamp and nothing reads the clock or touches I/O.
package notify

import (
	"fmt"
	"strings"
	"time"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
)

// FormatError reports a message that cannot be rendered
type FormatError struct {
	Field  string
	Reason string
}

func (e *FormatError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot format message: %s: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("cannot format message: missing %s", e.Field)
}

// Line is one purchased item
type Line struct {
	ProductName  string
	VariantLabel string
	Quantity     int
	UnitPrice    decimal.Decimal
	TotalPrice   decimal.Decimal
}

// Message is everything a new-order message shows
type Message struct {
	StoreName   string
	OrderNumber string
	Customer    models.Customer
	Notes       string
	Reseller    *models.Reseller
	Lines       []Line
}

// StatusUpdate is everything a status-change message shows
type StatusUpdate struct {
	OrderNumber string
	Line        Line
	From        models.TransactionStatus
	To          models.TransactionStatus
	Notes       string
}

// LineFromTransaction copies the display fields of a committed line
func LineFromTransaction(t *models.Transaction) Line {
	return Line{
		ProductName:  t.ProductName,
		VariantLabel: t.VariantLabel,
		Quantity:     t.Quantity,
		UnitPrice:    t.UnitPrice,
		TotalPrice:   t.TotalPrice,
	}
}

// LineFromEvent copies the display fields of an event line
func LineFromEvent(d models.TransactionData) Line {
	return Line{
		ProductName:  d.ProductName,
		VariantLabel: d.VariantLabel,
		Quantity:     d.Quantity,
		UnitPrice:    d.UnitPrice,
		TotalPrice:   d.TotalPrice,
	}
}

// Total sums the line totals
func (m Message) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range m.Lines {
		total = total.Add(l.TotalPrice)
	}
	return total
}

func validateLine(l Line, field string) error {
	if strings.TrimSpace(l.ProductName) == "" {
		return &FormatError{Field: field + ".product_name"}
	}
	if l.Quantity <= 0 {
		return &FormatError{Field: field + ".quantity", Reason: "must be positive"}
	}
	return nil
}

func (l Line) describe() string {
	if l.VariantLabel == "" {
		return l.ProductName
	}
	return fmt.Sprintf("%s (%s)", l.ProductName, l.VariantLabel)
}

// Format renders a new-order message. now is printed as the order time.
func Format(msg Message, localeCode string, now time.Time) (string, error) {
	loc, err := lookupLocale(localeCode)
	if err != nil {
		return "", err
	}
	if len(msg.Lines) == 0 {
		return "", &FormatError{Field: "lines"}
	}
	for i, l := range msg.Lines {
		if err := validateLine(l, fmt.Sprintf("lines[%d]", i)); err != nil {
			return "", err
		}
	}
	if now.IsZero() {
		return "", &FormatError{Field: "now"}
	}

	lb := loc.labels
	var b strings.Builder

	title := lb.newOrder
	if msg.StoreName != "" {
		title = fmt.Sprintf("%s - %s", lb.newOrder, msg.StoreName)
	}
	fmt.Fprintf(&b, "*%s*\n", title)
	if msg.OrderNumber != "" {
		fmt.Fprintf(&b, "%s: %s\n", lb.orderNumber, msg.OrderNumber)
	}
	fmt.Fprintf(&b, "%s: %s\n\n", lb.date, now.Format(loc.timeLayout))

	fmt.Fprintf(&b, "%s:\n", lb.products)
	for i, l := range msg.Lines {
		fmt.Fprintf(&b, "%d. %s x%d @ %s = %s\n",
			i+1, l.describe(), l.Quantity, loc.money(l.UnitPrice), loc.money(l.TotalPrice))
	}
	fmt.Fprintf(&b, "\n*%s: %s*\n", lb.total, loc.money(msg.Total()))

	customer := [][2]string{
		{lb.name, msg.Customer.Name},
		{lb.phone, msg.Customer.Phone},
		{lb.email, msg.Customer.Email},
		{lb.address, msg.Customer.Address},
		{lb.notes, msg.Notes},
	}
	wroteCustomer := false
	for _, kv := range customer {
		if strings.TrimSpace(kv[1]) == "" {
			continue
		}
		if !wroteCustomer {
			b.WriteString("\n")
			wroteCustomer = true
		}
		fmt.Fprintf(&b, "%s: %s\n", kv[0], kv[1])
	}

	reseller := lb.direct
	if msg.Reseller != nil {
		reseller = fmt.Sprintf("%s (%s)", msg.Reseller.Name, msg.Reseller.UniqueID)
	}
	fmt.Fprintf(&b, "\n%s: %s", lb.reseller, reseller)

	return b.String(), nil
}

// FormatStatusUpdate renders a status-change message
func FormatStatusUpdate(update StatusUpdate, localeCode string, now time.Time) (string, error) {
	loc, err := lookupLocale(localeCode)
	if err != nil {
		return "", err
	}
	if err := validateLine(update.Line, "line"); err != nil {
		return "", err
	}
	if !update.To.Valid() {
		return "", &FormatError{Field: "to", Reason: "unknown status"}
	}
	if now.IsZero() {
		return "", &FormatError{Field: "now"}
	}

	lb := loc.labels
	var b strings.Builder

	title := lb.statusTitle
	if update.OrderNumber != "" {
		title = fmt.Sprintf("%s %s", lb.statusTitle, update.OrderNumber)
	}
	fmt.Fprintf(&b, "*%s*\n", title)
	fmt.Fprintf(&b, "%s: %s x%d\n", lb.product, update.Line.describe(), update.Line.Quantity)
	if update.From != "" {
		fmt.Fprintf(&b, "%s: %s -> %s\n", lb.status, loc.statusLabel(update.From), loc.statusLabel(update.To))
	} else {
		fmt.Fprintf(&b, "%s: %s\n", lb.status, loc.statusLabel(update.To))
	}
	if strings.TrimSpace(update.Notes) != "" {
		fmt.Fprintf(&b, "%s: %s\n", lb.notes, update.Notes)
	}
	fmt.Fprintf(&b, "%s: %s", lb.date, now.Format(loc.timeLayout))

	return b.String(), nil
}

// ResellerName returns the attribution name shown to shoppers
func ResellerName(r *models.Reseller) string {
	if r == nil {
		return "Direct"
	}
	return r.Name
}

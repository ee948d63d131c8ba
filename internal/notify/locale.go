package notify

import (
	"fmt"
	"strings"

	"storefront-service/internal/models"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultLocale is used when no locale is given
const DefaultLocale = "id"

type labels struct {
	newOrder    string
	statusTitle string
	orderNumber string
	date        string
	products    string
	total       string
	name        string
	phone       string
	email       string
	address     string
	notes       string
	reseller    string
	direct      string
	status      string
	product     string
	statuses    map[models.TransactionStatus]string
}

type locale struct {
	tag        language.Tag
	printer    *message.Printer
	decimalSep string
	timeLayout string
	labels     labels
}

var locales = map[string]*locale{
	"id": {
		tag:        language.Indonesian,
		printer:    message.NewPrinter(language.Indonesian),
		decimalSep: ",",
		timeLayout: "02/01/2006 15:04",
		labels: labels{
			newOrder:    "Pesanan Baru",
			statusTitle: "Update Pesanan",
			orderNumber: "No. Pesanan",
			date:        "Tanggal",
			products:    "Produk",
			total:       "Total",
			name:        "Nama",
			phone:       "Telepon",
			email:       "Email",
			address:     "Alamat",
			notes:       "Catatan",
			reseller:    "Reseller",
			direct:      "Langsung",
			status:      "Status",
			product:     "Produk",
			statuses: map[models.TransactionStatus]string{
				models.StatusPending:   "Menunggu",
				models.StatusConfirmed: "Dikonfirmasi",
				models.StatusShipped:   "Dikirim",
				models.StatusCompleted: "Selesai",
				models.StatusCancelled: "Dibatalkan",
				models.StatusRefunded:  "Dikembalikan",
			},
		},
	},
	"en": {
		tag:        language.English,
		printer:    message.NewPrinter(language.English),
		decimalSep: ".",
		timeLayout: "Jan 2, 2006 15:04",
		labels: labels{
			newOrder:    "New Order",
			statusTitle: "Order Update",
			orderNumber: "Order No.",
			date:        "Date",
			products:    "Items",
			total:       "Total",
			name:        "Name",
			phone:       "Phone",
			email:       "Email",
			address:     "Address",
			notes:       "Notes",
			reseller:    "Reseller",
			direct:      "Direct",
			status:      "Status",
			product:     "Product",
			statuses: map[models.TransactionStatus]string{
				models.StatusPending:   "Pending",
				models.StatusConfirmed: "Confirmed",
				models.StatusShipped:   "Shipped",
				models.StatusCompleted: "Completed",
				models.StatusCancelled: "Cancelled",
				models.StatusRefunded:  "Refunded",
			},
		},
	},
}

// SupportedLocales lists the accepted locale codes
func SupportedLocales() []string {
	return []string{"id", "en"}
}

func lookupLocale(code string) (*locale, error) {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		code = DefaultLocale
	}
	l, ok := locales[code]
	if !ok {
		return nil, &FormatError{Field: "locale", Reason: fmt.Sprintf("unsupported locale %q", code)}
	}
	return l, nil
}

// money renders an amount as "Rp 1.250.000" (id) or "Rp 1,250,000" (en),
// adding two fraction digits only when the amount has cents
func (l *locale) money(d decimal.Decimal) string {
	d = d.Round(2)
	whole := d.Truncate(0)
	cents := d.Sub(whole).Abs().Shift(2).IntPart()

	s := l.printer.Sprintf("%d", whole.IntPart())
	if cents != 0 {
		s += fmt.Sprintf("%s%02d", l.decimalSep, cents)
	}
	return "Rp " + s
}

func (l *locale) statusLabel(s models.TransactionStatus) string {
	if label, ok := l.labels.statuses[s]; ok {
		return label
	}
	return string(s)
}

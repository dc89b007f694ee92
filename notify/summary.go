package notify

import (
	"strings"

	"github.com/mmdatafocus/billing_backend/models"
	"github.com/mmdatafocus/billing_backend/utils"
)

// ResolveDeliveryAddress picks the customer's email when valid, otherwise the
// phone number in E.164 form. ok is false when neither is usable.
func ResolveDeliveryAddress(customer models.CustomerRef, region string) (channel string, address string, ok bool) {
	if email := strings.TrimSpace(customer.Email); email != "" && utils.IsValidEmail(email) {
		return ChannelEmail, email, true
	}
	phone := strings.TrimSpace(customer.Phone)
	if phone == "" {
		return "", "", false
	}
	if err := utils.ValidatePhoneNumber(phone, region); err != nil {
		return "", "", false
	}
	formatted, err := utils.FormatPhoneNumber(phone, region)
	if err != nil {
		return "", "", false
	}
	return ChannelPhone, formatted, true
}

const invoiceSummaryTemplate = `Invoice {{.Number}}
Customer: {{.Customer}}
Issued: {{.Issued}}{{if .Due}}
Due: {{.Due}}{{end}}

{{range .Lines}}{{.Name}}  {{.Quantity}} x {{.UnitPrice}} = {{.Total}}
{{end}}
Subtotal: {{.Subtotal}}
Total due: {{.Grand}}
`

type summaryLine struct {
	Name      string
	Quantity  string
	UnitPrice string
	Total     string
}

type summaryData struct {
	Number   string
	Customer string
	Issued   string
	Due      string
	Lines    []summaryLine
	Subtotal string
	Grand    string
}

// RenderInvoiceSummary renders the plain-text summary sent with generated
// invoices. Amounts are rounded to two places here and nowhere earlier.
func RenderInvoiceSummary(inv *models.Invoice) (string, error) {
	totals := models.InvoiceTotals(inv).Rounded()
	data := summaryData{
		Number:   inv.Number,
		Customer: inv.Customer.Name,
		Issued:   inv.CreatedAt.Format("2006-01-02"),
		Subtotal: totals.Subtotal.StringFixed(2),
		Grand:    totals.Grand.StringFixed(2),
	}
	if data.Customer == "" {
		data.Customer = inv.Customer.ID
	}
	if inv.DueDate != nil {
		data.Due = inv.DueDate.Format("2006-01-02")
	}
	for _, item := range inv.Items {
		data.Lines = append(data.Lines, summaryLine{
			Name:      item.Name,
			Quantity:  item.Quantity.String(),
			UnitPrice: utils.RoundMoney(item.UnitPrice).StringFixed(2),
			Total:     utils.RoundMoney(item.Total()).StringFixed(2),
		})
	}
	return utils.ExecTemplate(invoiceSummaryTemplate, data)
}

// BuildInvoiceMessage wraps the summary into a message with the summary also
// attached as a text file.
func BuildInvoiceMessage(inv *models.Invoice, channel string, address string) (Message, error) {
	summary, err := RenderInvoiceSummary(inv)
	if err != nil {
		return Message{}, err
	}
	msg := Message{
		Channel:   channel,
		To:        []string{address},
		Subject:   "Invoice " + inv.Number,
		Body:      summary,
		InvoiceId: inv.ID,
		Attachments: []Attachment{{
			Filename:    inv.Number + ".txt",
			ContentType: "text/plain; charset=utf-8",
			Data:        []byte(summary),
		}},
	}
	if inv.RecurringTemplateId != nil {
		msg.TemplateId = *inv.RecurringTemplateId
	}
	return msg, nil
}

// Package notify delivers buyer and holder emails through Resend.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/http"
	"strings"
	"time"

	"ticketing-service/internal/credential"
	"ticketing-service/internal/models"
	"ticketing-service/internal/util"

	"github.com/resend/resend-go/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Mailer renders and sends transactional email
type Mailer struct {
	emails emailSender
	from   string
	qrSize int
	logger *zap.Logger
}

// NewMailer creates a Resend-backed mailer
func NewMailer(apiKey, from string, timeout time.Duration, qrSize int) *Mailer {
	client := resend.NewCustomClient(&http.Client{Timeout: timeout}, apiKey)
	return newMailer(client.Emails, from, qrSize)
}

func newMailer(emails emailSender, from string, qrSize int) *Mailer {
	return &Mailer{
		emails: emails,
		from:   from,
		qrSize: qrSize,
		logger: util.GetLogger(),
	}
}

// currencies without a minor unit
var zeroDecimal = map[string]bool{
	"bif": true, "clp": true, "djf": true, "gnf": true, "jpy": true, "kmf": true,
	"krw": true, "mga": true, "pyg": true, "rwf": true, "ugx": true, "vnd": true,
	"vuv": true, "xaf": true, "xof": true, "xpf": true,
}

// FormatAmount renders a minor-unit amount, e.g. 1250 usd -> "12.50 USD"
func FormatAmount(amount int64, currency string) string {
	code := strings.ToLower(currency)
	if zeroDecimal[code] {
		return fmt.Sprintf("%s %s", decimal.New(amount, 0).StringFixed(0), strings.ToUpper(code))
	}
	return fmt.Sprintf("%s %s", decimal.New(amount, -2).StringFixed(2), strings.ToUpper(code))
}

var funcs = template.FuncMap{"money": FormatAmount}

var receiptTmpl = template.Must(template.New("receipt").Funcs(funcs).Parse(`<h1>Your tickets for {{.EventTitle}}</h1>
<p>Hi {{.BillingName}}, thanks for your order #{{.OrderID}}.</p>
<table>
{{- range .Items}}
<tr><td>{{.Quantity}} x {{.TierName}}</td><td>{{money .UnitPrice $.Currency}}</td></tr>
{{- end}}
<tr><td><strong>Total</strong></td><td><strong>{{money .TotalAmount .Currency}}</strong></td></tr>
</table>
<p>Each attached QR code admits one person. Show it at the door.</p>
<ul>
{{- range .Tickets}}
<li>Ticket #{{.TicketID}}: {{.AttendeeName}}</li>
{{- end}}
</ul>
`))

var transferTmpl = template.Must(template.New("transfer").Funcs(funcs).Parse(`<h1>A ticket for {{.EventTitle}} is yours</h1>
<p>Hi {{.AttendeeName}}, ticket #{{.TicketID}} has been transferred to you.</p>
<p>The attached QR code is your entry credential. Any earlier copy of this ticket no longer works.</p>
`))

var refundTmpl = template.Must(template.New("refund").Funcs(funcs).Parse(`<h1>Refund for order #{{.OrderID}}</h1>
<p>We refunded {{money .Amount .Currency}} to your original payment method.</p>
{{- if .FullRefund}}
<p>Your order has been fully refunded and its tickets are no longer valid.</p>
{{- else}}
<p>Total refunded so far: {{money .RefundedAmount .Currency}}.</p>
{{- end}}
`))

func render(tmpl *template.Template, data interface{}) (string, error) {
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render %s email: %w", tmpl.Name(), err)
	}
	return buf.String(), nil
}

func (m *Mailer) qrAttachment(t models.TicketDelivery) (*resend.Attachment, error) {
	png, err := credential.RenderQR(t.Credential, m.qrSize)
	if err != nil {
		return nil, err
	}
	return &resend.Attachment{
		Content:     png,
		Filename:    fmt.Sprintf("ticket-%d.png", t.TicketID),
		ContentType: "image/png",
	}, nil
}

func (m *Mailer) send(ctx context.Context, req *resend.SendEmailRequest) error {
	ctx, span := util.StartSpan(ctx, "Mailer.send")
	defer span.End()

	sent, err := m.emails.SendWithContext(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	m.logger.Debug("Email sent", zap.String("id", sent.Id), zap.Strings("to", req.To))
	return nil
}

// SendReceipt mails the order summary with one QR code per ticket
func (m *Mailer) SendReceipt(ctx context.Context, event *models.OrderCompletedEvent) error {
	body, err := render(receiptTmpl, event)
	if err != nil {
		return err
	}

	attachments := make([]*resend.Attachment, 0, len(event.Tickets))
	for _, t := range event.Tickets {
		a, err := m.qrAttachment(t)
		if err != nil {
			return err
		}
		attachments = append(attachments, a)
	}

	return m.send(ctx, &resend.SendEmailRequest{
		From:        m.from,
		To:          []string{event.BillingEmail},
		Subject:     fmt.Sprintf("Your tickets for %s", event.EventTitle),
		Html:        body,
		Attachments: attachments,
	})
}

// SendTransferNotice mails the new holder their fresh credential
func (m *Mailer) SendTransferNotice(ctx context.Context, event *models.TicketTransferredEvent) error {
	body, err := render(transferTmpl, event)
	if err != nil {
		return err
	}
	a, err := m.qrAttachment(event.TicketDelivery)
	if err != nil {
		return err
	}

	return m.send(ctx, &resend.SendEmailRequest{
		From:        m.from,
		To:          []string{event.AttendeeEmail},
		Subject:     fmt.Sprintf("Your ticket for %s", event.EventTitle),
		Html:        body,
		Attachments: []*resend.Attachment{a},
	})
}

func (m *Mailer) SendRefundNotice(ctx context.Context, event *models.OrderRefundedEvent) error {
	body, err := render(refundTmpl, event)
	if err != nil {
		return err
	}

	return m.send(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{event.BillingEmail},
		Subject: fmt.Sprintf("Refund for order #%d", event.OrderID),
		Html:    body,
	})
}

package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"

	"github.com/shopspring/decimal"
)

//go:embed templates/*.html
var templateFiles embed.FS

type Settings struct {
	SMTPHost     string
	SMTPPort     string
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string
	EventName    string
	AppURL       string
}

type EmailService struct {
	smtpHost     string
	smtpPort     string
	smtpUsername string
	smtpPassword string
	fromEmail    string
	fromName     string
	eventName    string
	appURL       string
	templates    map[string]*template.Template
	sendMail     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

type EmailData struct {
	To          string
	Subject     string
	TemplateKey string
	Data        interface{}
}

func NewEmailService(settings Settings) (*EmailService, error) {
	service := &EmailService{
		smtpHost:     settings.SMTPHost,
		smtpPort:     settings.SMTPPort,
		smtpUsername: settings.SMTPUsername,
		smtpPassword: settings.SMTPPassword,
		fromEmail:    settings.FromEmail,
		fromName:     settings.FromName,
		eventName:    settings.EventName,
		appURL:       settings.AppURL,
		templates:    make(map[string]*template.Template),
		sendMail:     smtp.SendMail,
	}

	if err := service.loadTemplates(); err != nil {
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}

	return service, nil
}

func (s *EmailService) loadTemplates() error {
	templates := map[string]string{
		"purchase_confirmation": "templates/purchase_confirmation.html",
		"payment_failed":        "templates/payment_failed.html",
	}

	for key, path := range templates {
		tmpl, err := template.ParseFS(templateFiles, path)
		if err != nil {
			return fmt.Errorf("template %s: %w", key, err)
		}
		s.templates[key] = tmpl
	}

	return nil
}

// Enabled is false when no SMTP host is configured; sends become no-ops.
func (s *EmailService) Enabled() bool {
	return s.smtpHost != ""
}

func (s *EmailService) SendEmail(data EmailData) error {
	tmpl, ok := s.templates[data.TemplateKey]
	if !ok {
		return fmt.Errorf("template %s not found", data.TemplateKey)
	}

	var body bytes.Buffer
	if err := tmpl.Execute(&body, data.Data); err != nil {
		return fmt.Errorf("failed to execute template: %w", err)
	}

	if !s.Enabled() {
		return nil
	}

	message := fmt.Sprintf("From: %s <%s>\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"MIME-Version: 1.0\r\n"+
		"Content-Type: text/html; charset=UTF-8\r\n"+
		"\r\n"+
		"%s", s.fromName, s.fromEmail, data.To, data.Subject, body.String())

	auth := smtp.PlainAuth("", s.smtpUsername, s.smtpPassword, s.smtpHost)
	addr := fmt.Sprintf("%s:%s", s.smtpHost, s.smtpPort)

	err := s.sendMail(addr, auth, s.fromEmail, []string{data.To}, []byte(message))
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	return nil
}

type TicketSummary struct {
	Name     string
	Quantity int
}

type PurchaseConfirmationData struct {
	AttendeeName string
	EventName    string
	Reference    string
	Amount       string
	Method       string
	PaidAt       string
	Tickets      []TicketSummary
}

type Receipt struct {
	AttendeeName string
	Reference    string
	Amount       decimal.Decimal
	Method       string
	PaidAt       string
	Tickets      []TicketSummary
}

func (s *EmailService) SendPurchaseConfirmation(to string, receipt Receipt) error {
	return s.SendEmail(EmailData{
		To:          to,
		Subject:     fmt.Sprintf("Your %s tickets - %s", s.eventName, receipt.Reference),
		TemplateKey: "purchase_confirmation",
		Data: PurchaseConfirmationData{
			AttendeeName: receipt.AttendeeName,
			EventName:    s.eventName,
			Reference:    receipt.Reference,
			Amount:       FormatNaira(receipt.Amount),
			Method:       methodLabel(receipt.Method),
			PaidAt:       receipt.PaidAt,
			Tickets:      receipt.Tickets,
		},
	})
}

type PaymentFailedData struct {
	AttendeeName string
	EventName    string
	Reference    string
	Reason       string
	RetryURL     string
}

func (s *EmailService) SendPaymentFailed(to, attendeeName, reference, reason string) error {
	return s.SendEmail(EmailData{
		To:          to,
		Subject:     "Your payment was not completed",
		TemplateKey: "payment_failed",
		Data: PaymentFailedData{
			AttendeeName: attendeeName,
			EventName:    s.eventName,
			Reference:    reference,
			Reason:       reason,
			RetryURL:     s.appURL,
		},
	})
}

// FormatNaira renders 53750 as "₦53,750" and 150.5 as "₦150.50".
func FormatNaira(amount decimal.Decimal) string {
	fixed := amount.StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	out := "₦" + b.String()
	if frac != "00" {
		out += "." + frac
	}
	if negative {
		out = "-" + out
	}
	return out
}

func methodLabel(method string) string {
	switch method {
	case "paystack":
		return "Paystack"
	case "etegram":
		return "Etegram bank transfer"
	default:
		return method
	}
}

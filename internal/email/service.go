package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

// Message is a rendered e-mail ready to send.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers rendered messages.
type Sender interface {
	Send(msg Message) error
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service handles email sending via SMTP
type Service struct {
	host     string
	port     string
	from     string
	sendMail SendFunc
}

// NewService creates a new email service
func NewService(host, port, from string) *Service {
	return &Service{
		host:     host,
		port:     port,
		from:     from,
		sendMail: smtp.SendMail,
	}
}

// WithSendFunc replaces the SMTP transport.
func (s *Service) WithSendFunc(fn SendFunc) *Service {
	s.sendMail = fn
	return s
}

func (s *Service) Send(msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("send %q: no recipient", msg.Subject)
	}
	raw := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		s.from, msg.To, sanitizeHeader(msg.Subject), msg.HTML)
	addr := fmt.Sprintf("%s:%s", s.host, s.port)
	if err := s.sendMail(addr, nil, s.from, []string{msg.To}, []byte(raw)); err != nil {
		return fmt.Errorf("send mail to %s: %w", msg.To, err)
	}
	return nil
}

func sanitizeHeader(v string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(v)
}

// shortID trims an order id for subject lines.
func shortID(orderID string) string {
	if len(orderID) > 12 {
		return orderID[:12]
	}
	return orderID
}

// OrderConfirmation renders the mail sent when an order is placed.
func OrderConfirmation(to string, summary OrderSummary) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Order confirmed (%s)", shortID(summary.OrderID)),
		HTML:    BuildOrderConfirmationBody(summary),
	}
}

// StatusUpdate renders the mail sent when an order changes status.
func StatusUpdate(to string, update StatusChange) Message {
	return Message{
		To:      to,
		Subject: fmt.Sprintf("Your order %s is %s", shortID(update.OrderID), strings.ToLower(update.Status)),
		HTML:    BuildStatusUpdateBody(update),
	}
}

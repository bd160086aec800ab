package services

import (
	"fmt"
	"html"

	"gopkg.in/gomail.v2"
)

type EmailService interface {
	SendPasswordResetCode(email, username, code string) error
}

type emailService struct {
	dialer *gomail.Dialer
	from   string
}

func NewEmailService(smtpHost string, smtpPort int, smtpUser, smtpPassword, fromEmail string) EmailService {
	dialer := gomail.NewDialer(smtpHost, smtpPort, smtpUser, smtpPassword)
	return &emailService{
		dialer: dialer,
		from:   fromEmail,
	}
}

func passwordResetBody(username, code string, ttlMinutes int) string {
	return fmt.Sprintf(`
		<h3>Password reset requested</h3>
		<p>Hello %s, we received a request to reset your password.</p>
		<p>Your reset code is: <strong>%s</strong></p>
		<p>The code expires in %d minutes. If you did not request this, you can ignore this email.</p>
	`, html.EscapeString(username), code, ttlMinutes)
}

func (s *emailService) SendPasswordResetCode(email, username, code string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", email)
	m.SetHeader("Subject", "Your YPG Reset Code")
	m.SetBody("text/html", passwordResetBody(username, code, int(passwordResetTTL.Minutes())))

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send password reset email: %w", err)
	}
	return nil
}

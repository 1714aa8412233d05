package mailer

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"golang.org/x/sync/errgroup"
)

// Signup describes one waitlist registration.
type Signup struct {
	Email    string
	Platform string
	Existing bool
	At       time.Time
}

var confirmationTmpl = template.Must(template.New("confirmation").Parse(`<!DOCTYPE html>
<html>
<head>
  <meta charset="utf-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
</head>
<body style="margin: 0; padding: 0; background-color: #f5f5f7; font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;">
  <div style="max-width: 560px; margin: 0 auto; padding: 40px 20px;">
    <div style="background: white; border-radius: 16px; padding: 40px;">
      <h1 style="margin: 0 0 24px; font-size: 24px; color: #1a1a1a; text-align: center;">You're on the list!</h1>
      <p style="color: #4a4a4a; font-size: 16px; line-height: 1.6;">Thanks for your interest in Codiris Voice for iOS! We're working hard to bring the same voice-to-text experience to your iPhone.</p>
      <p style="color: #4a4a4a; font-size: 16px; line-height: 1.6;">You'll be among the first to know when we launch. In the meantime, you can try Codiris Voice on Mac today.</p>
      <p style="text-align: center; margin: 32px 0;"><a href="{{.Origin}}/install" style="background: #3b82f6; color: white; text-decoration: none; padding: 14px 28px; border-radius: 8px; font-weight: 600;">Try on Mac</a></p>
      <p style="color: #888; font-size: 14px; text-align: center;">Questions? Just reply to this email.</p>
    </div>
    <p style="color: #888; font-size: 12px; text-align: center; margin-top: 24px;">&copy; {{.Year}} Codiris. All rights reserved.</p>
  </div>
</body>
</html>
`))

var adminTmpl = template.Must(template.New("admin").Parse(`<!DOCTYPE html>
<html>
<body style="font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; padding: 20px;">
  <h2 style="color: #3b82f6;">New Waitlist Signup!</h2>
  <p><strong>Email:</strong> {{.Email}}</p>
  <p><strong>Platform:</strong> {{.Platform}}</p>
  <p><strong>Time:</strong> {{.At.Format "2006-01-02 15:04:05 MST"}}</p>
  <p><strong>Existing user:</strong> {{if .Existing}}Yes{{else}}No{{end}}</p>
  <hr style="border: none; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #888; font-size: 14px;"><a href="https://dashboard.stripe.com/customers" style="color: #3b82f6;">View all customers in Stripe</a></p>
</body>
</html>
`))

// Confirmation builds the mail thanking s.Email for joining.
func Confirmation(s Signup, origin string) (Message, error) {
	var buf bytes.Buffer
	err := confirmationTmpl.Execute(&buf, struct {
		Origin string
		Year   int
	}{origin, s.At.Year()})
	if err != nil {
		return Message{}, fmt.Errorf("mailer: render confirmation: %w", err)
	}
	return Message{
		To:      []string{s.Email},
		Subject: "You're on the Codiris Voice iOS waitlist!",
		HTML:    buf.String(),
	}, nil
}

// AdminNotification builds the mail telling admin about s.
func AdminNotification(s Signup, admin string) (Message, error) {
	var buf bytes.Buffer
	if err := adminTmpl.Execute(&buf, s); err != nil {
		return Message{}, fmt.Errorf("mailer: render notification: %w", err)
	}
	return Message{
		To:      []string{admin},
		Subject: "New iOS Waitlist Signup: " + s.Email,
		HTML:    buf.String(),
	}, nil
}

// SendWaitlist sends the confirmation to the signup and the notification to
// admin concurrently. Both are attempted; the first error is returned.
func SendWaitlist(ctx context.Context, sender Sender, s Signup, origin, admin string) error {
	confirm, err := Confirmation(s, origin)
	if err != nil {
		return err
	}
	notify, err := AdminNotification(s, admin)
	if err != nil {
		return err
	}

	var eg errgroup.Group
	eg.Go(func() error {
		if _, err := sender.Send(ctx, confirm); err != nil {
			return fmt.Errorf("mailer: confirmation to %s: %w", s.Email, err)
		}
		return nil
	})
	if admin != "" {
		eg.Go(func() error {
			if _, err := sender.Send(ctx, notify); err != nil {
				return fmt.Errorf("mailer: admin notification: %w", err)
			}
			return nil
		})
	}
	return eg.Wait()
}

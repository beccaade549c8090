package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"time"

	"github.com/computer-anything/blog-backend/internal/metrics"
)

// Template names.
const (
	TemplateVerification  = "verification"
	TemplateTwoFactor     = "two_factor"
	TemplateLoginNotice   = "login_notice"
	TemplatePasswordReset = "password_reset"
	TemplatePasswordSaved = "password_changed"
	TemplateSecurityAlert = "security_alert"
)

const layout = `{{define "layout"}}<!DOCTYPE html>
<html><body style="font-family:Arial,sans-serif;max-width:600px;margin:0 auto;padding:20px;color:#222">
<h2>{{.Title}}</h2>
{{template "body" .}}
<p style="color:#888;font-size:12px">This is an automated message from Computer Anything.</p>
</body></html>{{end}}`

var bodies = map[string]string{
	TemplateVerification: `{{define "body"}}<p>Hi {{.Username}},</p>
<p>Your verification code is:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>Enter it on the sign-up page or <a href="{{.Link}}">verify your email</a>.</p>
<p>The code expires in {{.Minutes}} minutes.</p>{{end}}`,
	TemplateTwoFactor: `{{define "body"}}<p>Hi {{.Username}},</p>
<p>Your login code is:</p>
<p style="font-size:28px;font-weight:bold;letter-spacing:4px">{{.Code}}</p>
<p>The code expires in {{.Minutes}} minutes. If you did not try to sign in, change your password.</p>{{end}}`,
	TemplateLoginNotice: `{{define "body"}}<p>Hi {{.Username}},</p>
<p>A new sign-in to your account was detected.</p>
<ul>
<li>Time: {{.Time}}</li>
<li>IP address: {{.IP}}</li>
<li>Location: {{.Location}}</li>
<li>Browser: {{.Browser}}</li>
<li>Device: {{.Device}}</li>
</ul>
<p>If this was not you, reset your password immediately.</p>{{end}}`,
	TemplatePasswordReset: `{{define "body"}}<p>Hi {{.Username}},</p>
<p>We received a request to reset your password.</p>
<p><a href="{{.Link}}">Reset your password</a></p>
<p>The link expires in one hour. If you did not request this, ignore this email.</p>{{end}}`,
	TemplatePasswordSaved: `{{define "body"}}<p>Hi {{.Username}},</p>
<p>Your password was changed at {{.Time}}. All other sessions have been signed out.</p>
<p>If you did not make this change, reset your password immediately.</p>{{end}}`,
	TemplateSecurityAlert: `{{define "body"}}<p>{{.Summary}}</p>
<table>{{range .Details}}<tr><td><b>{{.Name}}</b></td><td>{{.Value}}</td></tr>{{end}}</table>{{end}}`,
}

// Detail is a labelled value rendered in alert tables.
type Detail struct {
	Name  string
	Value string
}

// Renderer holds the parsed templates.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses every template once.
func NewRenderer() (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(bodies))}
	for name, body := range bodies {
		tmpl, err := template.New(name).Parse(layout)
		if err == nil {
			_, err = tmpl.Parse(body)
		}
		if err != nil {
			return nil, fmt.Errorf("mail: parse template %s: %w", name, err)
		}
		r.templates[name] = tmpl
	}
	return r, nil
}

// Render executes the named template with data.
func (r *Renderer) Render(name string, data any) (string, error) {
	tmpl, ok := r.templates[name]
	if !ok {
		return "", fmt.Errorf("mail: unknown template %s", name)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		return "", fmt.Errorf("mail: execute template %s: %w", name, err)
	}
	return buf.String(), nil
}

// Mailer renders and sends the account emails.
type Mailer struct {
	sender      Sender
	renderer    *Renderer
	frontendURL string
	timeout     time.Duration
}

// NewMailer constructs a Mailer. Each send is bounded by timeout.
func NewMailer(sender Sender, renderer *Renderer, frontendURL string, timeout time.Duration) *Mailer {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Mailer{sender: sender, renderer: renderer, frontendURL: frontendURL, timeout: timeout}
}

// LoginNotice describes a successful sign-in.
type LoginNotice struct {
	Username string
	Time     time.Time
	IP       string
	Location string
	Browser  string
	Device   string
}

// SendVerificationCode emails a registration verification code.
func (m *Mailer) SendVerificationCode(ctx context.Context, to, username, code string, ttl time.Duration) error {
	return m.send(ctx, TemplateVerification, []string{to}, "Verify your email address", map[string]any{
		"Title": "Verify your email", "Username": username, "Code": code, "Minutes": int(ttl.Minutes()),
		"Link": m.VerifyLink(to, code),
	})
}

// SendTwoFactorCode emails a login code.
func (m *Mailer) SendTwoFactorCode(ctx context.Context, to, username, code string, ttl time.Duration) error {
	return m.send(ctx, TemplateTwoFactor, []string{to}, "Your login verification code", map[string]any{
		"Title": "Login verification", "Username": username, "Code": code, "Minutes": int(ttl.Minutes()),
	})
}

// SendLoginNotice emails a new sign-in notification.
func (m *Mailer) SendLoginNotice(ctx context.Context, to string, notice LoginNotice) error {
	return m.send(ctx, TemplateLoginNotice, []string{to}, "New sign-in to your account", map[string]any{
		"Title":    "New sign-in detected",
		"Username": notice.Username,
		"Time":     notice.Time.UTC().Format("2006-01-02 15:04:05 UTC"),
		"IP":       notice.IP,
		"Location": notice.Location,
		"Browser":  notice.Browser,
		"Device":   notice.Device,
	})
}

// SendPasswordReset emails a reset link for token.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, username, token string) error {
	return m.send(ctx, TemplatePasswordReset, []string{to}, "Reset your password", map[string]any{
		"Title": "Password reset", "Username": username, "Link": m.ResetLink(token),
	})
}

// SendPasswordChanged emails a password change confirmation.
func (m *Mailer) SendPasswordChanged(ctx context.Context, to, username string, at time.Time) error {
	return m.send(ctx, TemplatePasswordSaved, []string{to}, "Your password was changed", map[string]any{
		"Title": "Password changed", "Username": username, "Time": at.UTC().Format("2006-01-02 15:04:05 UTC"),
	})
}

// SendSecurityAlert emails an alert to the administrator.
func (m *Mailer) SendSecurityAlert(ctx context.Context, to, subject, summary string, details []Detail) error {
	return m.send(ctx, TemplateSecurityAlert, []string{to}, subject, map[string]any{
		"Title": subject, "Summary": summary, "Details": details,
	})
}

// VerifyLink builds the frontend URL that submits a registration code.
func (m *Mailer) VerifyLink(email, code string) string {
	return m.frontendURL + "/verify-email?" + url.Values{"email": {email}, "code": {code}}.Encode()
}

// ResetLink builds the frontend URL for a reset token.
func (m *Mailer) ResetLink(token string) string {
	return m.frontendURL + "/reset-password/" + token
}

func (m *Mailer) send(ctx context.Context, name string, to []string, subject string, data any) error {
	html, errRender := m.renderer.Render(name, data)
	if errRender != nil {
		metrics.EmailsSent.WithLabelValues(name, "error").Inc()
		return errRender
	}
	ctxSend, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	if errSend := m.sender.Send(ctxSend, to, subject, html); errSend != nil {
		metrics.EmailsSent.WithLabelValues(name, "error").Inc()
		return errSend
	}
	metrics.EmailsSent.WithLabelValues(name, "sent").Inc()
	return nil
}

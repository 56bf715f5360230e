package notify

import (
	"bytes"
	"fmt"
	htmltpl "html/template"
	texttpl "text/template"
	"time"
)

type otpVars struct {
	Brand     string
	Area      string
	Code      string
	Name      string
	ExpiresIn string
	Year      int
}

type resetVars struct {
	Brand     string
	Area      string
	Link      string
	Name      string
	ExpiresIn string
	Year      int
}

const otpHTML = `<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #e0e0e0; border-radius: 10px;">
  <h2 style="color: #333; text-align: center;">Security Verification</h2>
  <p>Hello{{if .Name}} {{.Name}}{{end}},</p>
  <p>Your one-time password for signing in to the {{.Area}} is:</p>
  <div style="text-align: center; margin: 30px 0;">
    <div style="display: inline-block; padding: 15px 30px; background-color: #f4f4f4; color: #DAA520; font-family: monospace; font-size: 32px; font-weight: bold; letter-spacing: 5px; border-radius: 5px;">{{.Code}}</div>
  </div>
  <p style="color: #666; font-size: 14px;">This code is valid for {{.ExpiresIn}}. Do not share it with anyone.</p>
  <hr style="border: 0; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px; text-align: center;">&copy; {{.Year}} {{.Brand}}. All rights reserved.</p>
</div>
`

const otpText = `Hello{{if .Name}} {{.Name}}{{end}},

Your one-time password for signing in to the {{.Area}} is: {{.Code}}

This code is valid for {{.ExpiresIn}}. Do not share it with anyone.

{{.Brand}}
`

const resetHTML = `<div style="font-family: sans-serif; max-width: 600px; margin: 0 auto; padding: 20px; border: 1px solid #e0e0e0; border-radius: 10px;">
  <h2 style="color: #333; text-align: center;">Password Reset Request</h2>
  <p>Hello{{if .Name}} {{.Name}}{{end}},</p>
  <p>We received a request to reset your password for the {{.Area}}. Click the button below to set a new password:</p>
  <div style="text-align: center; margin: 30px 0;">
    <a href="{{.Link}}" style="display: inline-block; padding: 12px 24px; background-color: #DAA520; color: black; text-decoration: none; border-radius: 5px; font-weight: bold; font-size: 16px;">Reset Password</a>
  </div>
  <p style="color: #666; font-size: 14px;">This link will expire in {{.ExpiresIn}}. If you didn't request this, you can safely ignore this email.</p>
  <hr style="border: 0; border-top: 1px solid #eee; margin: 20px 0;">
  <p style="color: #999; font-size: 12px; text-align: center;">&copy; {{.Year}} {{.Brand}}. All rights reserved.</p>
</div>
`

const resetText = `Hello{{if .Name}} {{.Name}}{{end}},

We received a request to reset your password for the {{.Area}}.
Open this link to set a new password:

{{.Link}}

This link will expire in {{.ExpiresIn}}. If you didn't request this, you can ignore this email.

{{.Brand}}
`

var (
	otpHTMLTemplate   = htmltpl.Must(htmltpl.New("otp_html").Parse(otpHTML))
	otpTextTemplate   = texttpl.Must(texttpl.New("otp_txt").Parse(otpText))
	resetHTMLTemplate = htmltpl.Must(htmltpl.New("reset_html").Parse(resetHTML))
	resetTextTemplate = texttpl.Must(texttpl.New("reset_txt").Parse(resetText))
)

func render(html *htmltpl.Template, text *texttpl.Template, data any) (string, string, error) {
	var hb, tb bytes.Buffer
	if err := html.Execute(&hb, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", html.Name(), err)
	}
	if err := text.Execute(&tb, data); err != nil {
		return "", "", fmt.Errorf("render %s: %w", text.Name(), err)
	}
	return hb.String(), tb.String(), nil
}

// humanTTL turns the remaining validity into "10 minutes" or "1 hour".
func humanTTL(d time.Duration) string {
	if d < time.Minute {
		return "less than a minute"
	}
	minutes := int((d + 30*time.Second) / time.Minute)
	if minutes%60 == 0 {
		return plural(minutes/60, "hour")
	}
	return plural(minutes, "minute")
}

func plural(n int, unit string) string {
	if n == 1 {
		return "1 " + unit
	}
	return fmt.Sprintf("%d %ss", n, unit)
}

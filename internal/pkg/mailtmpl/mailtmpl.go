// Package mailtmpl renders the plain-text and HTML bodies of outbound account emails.
package mailtmpl

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	texttemplate "text/template"

	"github.com/go-auth-nosql/internal/domain"
)

type layout struct {
	Intro       string
	Instruction string
	Button      string
	Outro       string
}

var layouts = map[string]layout{
	domain.TemplateVerifyEmail: {
		Intro:       "Welcome to our app! We're very excited to have you on board.",
		Instruction: "To verify your email please click on the following button:",
		Button:      "Verify your email",
		Outro:       "Need help, or have questions? Just reply to this email, we'd love to help.",
	},
	domain.TemplateResetPassword: {
		Intro:       "We got a request to reset the password of your account.",
		Instruction: "To reset your password click on the following button or link:",
		Button:      "Reset password",
		Outro:       "Need help, or have questions? Just reply to this email, we'd love to help.",
	},
}

type view struct {
	layout
	domain.NotificationData
}

const textBody = `Hi {{.Username}},

{{.Intro}}

{{.Instruction}}
{{.Link}}

This link expires in {{.ExpiresIn}}.

{{.Outro}}
{{if .Product}}
{{.Product}}{{end}}
`

const htmlBody = `<!DOCTYPE html>
<html><body>
<p>Hi {{.Username}},</p>
<p>{{.Intro}}</p>
<p>{{.Instruction}}</p>
<p><a href="{{.Link}}" style="background:#22BC66;color:#fff;padding:10px 16px;text-decoration:none">{{.Button}}</a></p>
<p>This link expires in {{.ExpiresIn}}.</p>
<p>{{.Outro}}</p>
{{if .Product}}<p>{{.Product}}</p>{{end}}
</body></html>
`

var (
	textTmpl = texttemplate.Must(texttemplate.New("text").Parse(textBody))
	htmlTmpl = htmltemplate.Must(htmltemplate.New("html").Parse(htmlBody))
)

// Render returns the text and HTML bodies for n.
func Render(n domain.Notification) (text, html string, err error) {
	l, ok := layouts[n.Template]
	if !ok {
		return "", "", fmt.Errorf("unknown template %q", n.Template)
	}
	v := view{layout: l, NotificationData: n.Data}

	var tb, hb bytes.Buffer
	if err := textTmpl.Execute(&tb, v); err != nil {
		return "", "", fmt.Errorf("render text: %w", err)
	}
	if err := htmlTmpl.Execute(&hb, v); err != nil {
		return "", "", fmt.Errorf("render html: %w", err)
	}
	return tb.String(), hb.String(), nil
}

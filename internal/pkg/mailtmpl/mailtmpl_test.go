package mailtmpl

import (
	"testing"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_VerifyEmail(t *testing.T) {
	text, html, err := Render(domain.Notification{
		Template: domain.TemplateVerifyEmail,
		Data: domain.NotificationData{
			Username:  "alice",
			Link:      "https://app.test/verify-email/abc",
			ExpiresIn: "10m0s",
		},
	})
	require.NoError(t, err)
	assert.Contains(t, text, "Hi alice,")
	assert.Contains(t, text, "https://app.test/verify-email/abc")
	assert.Contains(t, html, `href="https://app.test/verify-email/abc"`)
	assert.Contains(t, html, "Verify your email")
}

func TestRender_EscapesHTML(t *testing.T) {
	_, html, err := Render(domain.Notification{
		Template: domain.TemplateResetPassword,
		Data:     domain.NotificationData{Username: "<b>eve</b>", Link: "https://x/y"},
	})
	require.NoError(t, err)
	assert.NotContains(t, html, "<b>eve</b>")
	assert.Contains(t, html, "&lt;b&gt;eve&lt;/b&gt;")
}

func TestRender_UnknownTemplate(t *testing.T) {
	_, _, err := Render(domain.Notification{Template: "nope"})
	assert.ErrorContains(t, err, "unknown template")
}

package domain

// Template names understood by every notifier driver.
const (
	TemplateVerifyEmail   = "verify_email"
	TemplateResetPassword = "reset_password"
)

// Notification is an outbound message carrying a single-use secret link.
type Notification struct {
	To       string           `json:"to"`
	Subject  string           `json:"subject"`
	Template string           `json:"template"`
	Data     NotificationData `json:"data"`
}

type NotificationData struct {
	Product   string `json:"product"`
	Username  string `json:"username"`
	Link      string `json:"link"`
	ExpiresIn string `json:"expires_in"`
}

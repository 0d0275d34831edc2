package notify

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/domain"
	"github.com/go-auth-nosql/internal/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockSender struct{ mock.Mock }

func (m *mockSender) Send(ctx context.Context, n domain.Notification) error {
	return m.Called(ctx, n).Error(0)
}

func newTestDispatcher(s Sender, m *metrics.Metrics) *Dispatcher {
	return NewDispatcher(DispatcherDeps{
		Sender:           s,
		Product:          "authd",
		VerifyEmailURL:   "http://localhost:8080/v1/auth/verify-email/",
		PasswordResetURL: "http://localhost:3000/reset-password",
		Timeout:          time.Second,
		Logger:           slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
		Metrics:          m,
	})
}

var alice = &domain.Account{AccountID: "a1", Username: "alice", Email: "alice@example.com"}

func TestVerifyEmail_BuildsLink(t *testing.T) {
	s := &mockSender{}
	s.On("Send", mock.Anything, mock.MatchedBy(func(n domain.Notification) bool {
		return n.To == "alice@example.com" &&
			n.Template == domain.TemplateVerifyEmail &&
			n.Data.Link == "http://localhost:8080/v1/auth/verify-email/s3cr3t" &&
			n.Data.ExpiresIn == "10 minutes" &&
			n.Data.Username == "alice"
	})).Return(nil)

	newTestDispatcher(s, nil).VerifyEmail(context.Background(), alice, "s3cr3t", 10*time.Minute)
	s.AssertExpectations(t)
}

func TestPasswordReset_AppliesTimeoutAndSurvivesCancel(t *testing.T) {
	s := &mockSender{}
	s.On("Send", mock.MatchedBy(func(ctx context.Context) bool {
		_, hasDeadline := ctx.Deadline()
		return hasDeadline && ctx.Err() == nil
	}), mock.MatchedBy(func(n domain.Notification) bool {
		return n.Data.Link == "http://localhost:3000/reset-password/xyz" && n.Template == domain.TemplateResetPassword
	})).Return(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	newTestDispatcher(s, nil).PasswordReset(ctx, alice, "xyz", time.Hour)
	s.AssertExpectations(t)
}

func TestDispatch_FailureIsCounted(t *testing.T) {
	s := &mockSender{}
	s.On("Send", mock.Anything, mock.Anything).Return(errors.New("smtp down"))
	m := metrics.New()

	d := newTestDispatcher(s, m)
	d.VerifyEmail(context.Background(), alice, "s", time.Minute)
	d.VerifyEmail(context.Background(), alice, "s", time.Minute)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.NotificationFailures.WithLabelValues(domain.TemplateVerifyEmail)))
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "10 minutes", humanize(10*time.Minute))
	assert.Equal(t, "1 minute", humanize(time.Minute))
	assert.Equal(t, "2 hours", humanize(2*time.Hour))
	assert.Equal(t, "1m30s", humanize(90*time.Second))
}

func TestLogSender(t *testing.T) {
	var buf bytes.Buffer
	err := LogSender{Logger: slog.New(slog.NewTextHandler(&buf, nil))}.Send(context.Background(), domain.Notification{
		To: "a@example.com", Template: domain.TemplateVerifyEmail, Data: domain.NotificationData{Link: "http://x/1"},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "template=verify_email")
	assert.Contains(t, buf.String(), "link=http://x/1")
}

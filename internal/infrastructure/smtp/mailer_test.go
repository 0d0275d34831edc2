package smtp

import (
	"context"
	"net"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-auth-nosql/internal/config"
	"github.com/go-auth-nosql/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivery struct {
	from, to string
	data     string
}

// startFakeSMTP accepts a single session and reports what it received.
func startFakeSMTP(t *testing.T) (host, port string, got <-chan delivery) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan delivery, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		tp := textproto.NewConn(conn)
		var d delivery
		_ = tp.PrintfLine("220 localhost ESMTP")
		for {
			line, err := tp.ReadLine()
			if err != nil {
				return
			}
			upper := strings.ToUpper(line)
			switch {
			case strings.HasPrefix(upper, "EHLO"), strings.HasPrefix(upper, "HELO"):
				_ = tp.PrintfLine("250 localhost")
			case strings.HasPrefix(upper, "MAIL FROM:"):
				d.from = line[len("MAIL FROM:"):]
				_ = tp.PrintfLine("250 OK")
			case strings.HasPrefix(upper, "RCPT TO:"):
				d.to = line[len("RCPT TO:"):]
				_ = tp.PrintfLine("250 OK")
			case upper == "DATA":
				_ = tp.PrintfLine("354 go ahead")
				data, err := tp.ReadDotBytes()
				if err != nil {
					return
				}
				d.data = string(data)
				_ = tp.PrintfLine("250 OK")
			case upper == "QUIT":
				_ = tp.PrintfLine("221 bye")
				ch <- d
				return
			default:
				_ = tp.PrintfLine("502 not implemented")
			}
		}
	}()

	host, port, err = net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	return host, port, ch
}

func verifyNotification() domain.Notification {
	return domain.Notification{
		To:       "alice@example.com",
		Subject:  "Please verify your email",
		Template: domain.TemplateVerifyEmail,
		Data: domain.NotificationData{
			Product:   "authd",
			Username:  "alice",
			Link:      "http://localhost:8080/v1/auth/verify-email/abc123",
			ExpiresIn: "10 minutes",
		},
	}
}

func TestSend_DeliversMultipartMessage(t *testing.T) {
	host, port, got := startFakeSMTP(t)
	m := NewMailer(&config.Config{SMTPHost: host, SMTPPort: port, SMTPFrom: "noreply@example.com"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, m.Send(ctx, verifyNotification()))

	select {
	case d := <-got:
		assert.Equal(t, "<noreply@example.com>", d.from)
		assert.Equal(t, "<alice@example.com>", d.to)
		assert.Contains(t, d.data, "Content-Type: multipart/alternative")
		assert.Contains(t, d.data, "text/plain; charset=UTF-8")
		assert.Contains(t, d.data, "text/html; charset=UTF-8")
		assert.Contains(t, d.data, "http://localhost:8080/v1/auth/verify-email/abc123")
	case <-time.After(5 * time.Second):
		t.Fatal("fake smtp server received nothing")
	}
}

func TestSend_UnknownTemplate(t *testing.T) {
	m := NewMailer(&config.Config{SMTPHost: "127.0.0.1", SMTPPort: "1"})
	n := verifyNotification()
	n.Template = "welcome"
	assert.ErrorContains(t, m.Send(context.Background(), n), "unknown template")
}

func TestSend_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	host, port, _ := net.SplitHostPort(ln.Addr().String())
	ln.Close()

	m := NewMailer(&config.Config{SMTPHost: host, SMTPPort: port})
	assert.ErrorContains(t, m.Send(context.Background(), verifyNotification()), "dial smtp")
}

func TestBuildMessage_Headers(t *testing.T) {
	m := NewMailer(&config.Config{SMTPFrom: "noreply@example.com"})
	msg, err := m.buildMessage(verifyNotification())
	require.NoError(t, err)
	s := string(msg)
	assert.True(t, strings.HasPrefix(s, "From: noreply@example.com\r\nTo: alice@example.com\r\n"))
	assert.Contains(t, s, "Subject: Please verify your email\r\n")
	assert.Contains(t, s, "MIME-Version: 1.0\r\n")
}

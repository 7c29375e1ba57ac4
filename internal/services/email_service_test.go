package services

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/example/obaatanpa/internal/models"
)

func TestVerificationEmail(t *testing.T) {
	user := &models.User{FirstName: "Ama", Email: "ama@x.com"}

	msg, err := verificationEmail("https://app.example.com/", user, "abc123", 24*time.Hour)
	require.NoError(t, err)

	assert.Equal(t, "ama@x.com", msg.To)
	assert.Equal(t, "Verify Your Email - Obaatanpa", msg.Subject)
	assert.Equal(t, "https://app.example.com/verify-email?token=abc123", msg.Link)
	assert.Contains(t, msg.HTML, "Hello Ama,")
	assert.Contains(t, msg.HTML, `href="https://app.example.com/verify-email?token=abc123"`)
	assert.Contains(t, msg.HTML, "expire in 24 hours")
}

func TestPasswordResetEmailEscapesName(t *testing.T) {
	user := &models.User{FirstName: "<b>Ama</b>", Email: "ama@x.com"}

	msg, err := passwordResetEmail("http://localhost:3000", user, "tok", 10*time.Minute)
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:3000/reset-password?token=tok", msg.Link)
	assert.NotContains(t, msg.HTML, "<b>Ama</b>")
	assert.Contains(t, msg.HTML, "&lt;b&gt;Ama&lt;/b&gt;")
	assert.Contains(t, msg.HTML, "expire in 10 minutes")
}

func TestHumanDuration(t *testing.T) {
	assert.Equal(t, "1 hour", humanDuration(time.Hour))
	assert.Equal(t, "24 hours", humanDuration(24*time.Hour))
	assert.Equal(t, "1 minute", humanDuration(time.Minute))
	assert.Equal(t, "90 minutes", humanDuration(90*time.Minute))
	assert.Equal(t, "45s", humanDuration(45*time.Second))
}

func TestSMTPMailerCompose(t *testing.T) {
	m := NewSMTPMailer("smtp.example.com", "587", "user", "pass", "Obaatanpa", "no-reply@obaatanpa.com")

	raw := string(m.compose(EmailMessage{To: "ama@x.com", Subject: "Hi", HTML: "<p>body</p>"}))
	head, body, ok := strings.Cut(raw, "\r\n\r\n")
	require.True(t, ok)
	assert.Contains(t, head, "From: Obaatanpa <no-reply@obaatanpa.com>\r\n")
	assert.Contains(t, head, "To: ama@x.com\r\n")
	assert.Contains(t, head, "Subject: Hi\r\n")
	assert.Contains(t, head, `Content-Type: text/html; charset="utf-8"`)
	assert.Equal(t, "<p>body</p>", body)

	addr, ok := extractAddress(m.from)
	require.True(t, ok)
	assert.Equal(t, "no-reply@obaatanpa.com", addr)
}

func TestLogMailerLogsLink(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	m := NewLogMailer(zap.New(core))

	err := m.Send(context.Background(), EmailMessage{To: "ama@x.com", Subject: "Hi", Link: "http://x/verify-email?token=t"})
	require.NoError(t, err)

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "http://x/verify-email?token=t", entries[0].ContextMap()["link"])
}

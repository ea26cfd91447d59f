package mail

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"gopkg.in/gomail.v2"
)

type captureSender struct {
	msgs []*gomail.Message
	err  error
}

func (c *captureSender) DialAndSend(m ...*gomail.Message) error {
	c.msgs = append(c.msgs, m...)
	return c.err
}

func TestSend_BuildsPlainTextMessage(t *testing.T) {
	cs := &captureSender{}
	m := &SMTPMailer{from: "gate@example.com", dialer: cs}

	if err := m.Send(context.Background(), "alice@example.com", "Access granted", "hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(cs.msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(cs.msgs))
	}
	msg := cs.msgs[0]
	if got := msg.GetHeader("To"); len(got) != 1 || got[0] != "alice@example.com" {
		t.Errorf("To = %v", got)
	}
	if got := msg.GetHeader("From"); len(got) != 1 || got[0] != "gate@example.com" {
		t.Errorf("From = %v", got)
	}
	var buf bytes.Buffer
	if _, err := msg.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if !strings.Contains(buf.String(), "text/plain") {
		t.Errorf("expected text/plain body, got:\n%s", buf.String())
	}
}

func TestSend_PropagatesTransportError(t *testing.T) {
	boom := errors.New("relay down")
	m := &SMTPMailer{from: "gate@example.com", dialer: &captureSender{err: boom}}
	if err := m.Send(context.Background(), "a@example.com", "s", "b"); !errors.Is(err, boom) {
		t.Fatalf("expected relay error, got %v", err)
	}
}

func TestSend_CancelledContext(t *testing.T) {
	cs := &captureSender{}
	m := &SMTPMailer{from: "gate@example.com", dialer: cs}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, "a@example.com", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if len(cs.msgs) != 0 {
		t.Errorf("nothing should be sent on a cancelled context")
	}
}

package mail

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message"
	gomail "github.com/emersion/go-message/mail"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/helpers"
)

// Compose renders a message in RFC 5322 wire format with a text/plain body.
// The tier is carried in the X-Priority header so it survives a round trip
// through ReadMessage.
func Compose(m *Message) ([]byte, error) {
	var buf bytes.Buffer
	var h message.Header
	h.Set("From", m.From)
	h.Set("To", m.To)
	h.Set("Subject", m.Subject)
	h.Set("Date", m.Date.Format(time.RFC1123Z))
	h.Set("Message-ID", fmt.Sprintf("<%s@palomar>", m.ID))
	h.Set("X-Priority", xPriority(m.Tier))
	h.Set("Content-Type", "text/plain; charset=utf-8")

	w, err := message.CreateWriter(&buf, h)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
	}
	if _, err := w.Write([]byte(m.Body)); err != nil {
		w.Close()
		return nil, err
	}
	w.Close()

	return buf.Bytes(), nil
}

// ReadMessage parses an RFC 5322 message into a Message value. The first
// From/To addresses are used; a missing Date falls back to the current time;
// the body is the first text/plain part, with text/html converted when no
// plain part exists. A fresh ID is assigned; wire-format input always enters
// the platform as a new message.
func ReadMessage(raw []byte) (*Message, error) {
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
	}

	header := gomail.Header{Header: entity.Header}

	from := firstAddress(header, "From")
	to := firstAddress(header, "To")

	subject, _ := header.Subject()

	body, err := helpers.ExtractPlaintextBody(entity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", consts.ErrMalformedMessage, err)
	}

	m, err := NewMessage(from, to, subject, body, parseXPriority(entity.Header.Get("X-Priority")))
	if err != nil {
		return nil, err
	}

	if date, derr := header.Date(); derr == nil && !date.IsZero() {
		m.Date = date.UTC()
	}
	return m, nil
}

func firstAddress(header gomail.Header, field string) string {
	addrs, err := header.AddressList(field)
	if err != nil || len(addrs) == 0 {
		return strings.TrimSpace(header.Get(field))
	}
	return addrs[0].Address
}

// xPriority maps a tier to the conventional X-Priority header value.
func xPriority(t Tier) string {
	switch t {
	case TierHigh:
		return "1 (Highest)"
	case TierLow:
		return "5 (Lowest)"
	default:
		return "3 (Normal)"
	}
}

// parseXPriority maps an X-Priority header back to a tier. Values 1 and 2
// are high, 4 and 5 low, everything else (including absence) medium.
func parseXPriority(value string) Tier {
	value = strings.TrimSpace(value)
	if value == "" {
		return TierMedium
	}
	switch value[0] {
	case '1', '2':
		return TierHigh
	case '4', '5':
		return TierLow
	default:
		return TierMedium
	}
}

// Package mail defines the message value type that flows through the
// platform: folder trees store messages, filters classify them, and the
// delivery queue orders them by tier.
package mail

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/helpers"
)

// Message is an immutable mail message. Once constructed its fields must not
// be mutated; reclassification produces a derived copy (WithTier) and the
// sender's Sent copy is an independent value (Clone). A message is owned by
// exactly one folder at a time: moving it between folders transfers the
// pointer, never duplicates it.
type Message struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	Date        time.Time `json:"date"`
	Tier        Tier      `json:"tier"`
	ContentHash string    `json:"content_hash"`
	Snippet     string    `json:"snippet"`
}

// NewMessage builds a message with a fresh ID and the current timestamp.
// The recipient must be non-empty; an out-of-range tier is coerced to
// TierMedium. Subject and body are sanitized so they are safe to log and
// serialize.
func NewMessage(from, to, subject, body string, tier Tier) (*Message, error) {
	if strings.TrimSpace(to) == "" {
		return nil, fmt.Errorf("%w: empty recipient", consts.ErrMalformedMessage)
	}
	if !tier.Valid() {
		tier = TierMedium
	}

	subject = helpers.SanitizeUTF8(subject)
	body = helpers.SanitizeUTF8(body)

	m := &Message{
		ID:      uuid.New().String(),
		From:    helpers.NormalizeAddress(from),
		To:      helpers.NormalizeAddress(to),
		Subject: subject,
		Body:    body,
		Date:    time.Now().UTC(),
		Tier:    tier,
		Snippet: helpers.Snippet(body),
	}
	m.ContentHash = hashMessageContent(m)
	return m, nil
}

// WithTier returns a copy of m carrying the given tier. The ID is preserved:
// the result is the same logical message reclassified by a filter.
func (m *Message) WithTier(tier Tier) *Message {
	if !tier.Valid() || tier == m.Tier {
		return m
	}
	c := *m
	c.Tier = tier
	return &c
}

// Clone returns an independent copy of m under a new ID, used for the
// sender's Sent folder so that each folder tree owns its own message value.
func (m *Message) Clone() *Message {
	c := *m
	c.ID = uuid.New().String()
	return &c
}

// hashMessageContent derives the content hash from the fields that define a
// message's content. The hash is shared by clones but not affected by tier
// reclassification, so the Sent copy and the delivered original stay
// correlatable.
func hashMessageContent(m *Message) string {
	content := strings.Join([]string{m.From, m.To, m.Subject, m.Body}, "\x00")
	return helpers.HashContent([]byte(content))
}

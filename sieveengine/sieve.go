package sieveengine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/foxcpp/go-sieve"
	"github.com/foxcpp/go-sieve/interp"
	"github.com/lightningnetwork/lnd/fn/v2"

	"github.com/palomarmail/palomar/filter"
	"github.com/palomarmail/palomar/mail"
)

// SupportedExtensions lists the SIEVE extensions account scripts may require.
// Scripts requiring anything else fail at compile time.
//
// NOTE: Core RFC 5228 commands (require, if/elsif/else, stop, redirect, keep,
// discard) are always available and don't need to be in this list.
var SupportedExtensions = []string{
	// Core extensions from RFC 5228
	"fileinto",          // RFC 5228 - Store messages in a specified folder
	"envelope",          // RFC 5228 - Test envelope addresses
	"encoded-character", // RFC 5228 - Encoded character support

	// Comparators
	"comparator-i;octet",           // RFC 4790 - Octet comparator
	"comparator-i;ascii-casemap",   // RFC 4790 - ASCII case-insensitive
	"comparator-i;ascii-numeric",   // RFC 4790 - ASCII numeric
	"comparator-i;unicode-casemap", // RFC 4790 - Unicode case-insensitive

	// Common extensions
	"variables",  // RFC 5229 - Variable support
	"relational", // RFC 5231 - Relational tests (gt, lt, etc.)
	"regex",      // draft-murchison-sieve-regex - Regular expression match type
}

// Context carries the message view a script evaluates against.
type Context struct {
	EnvelopeFrom string
	EnvelopeTo   string
	Header       map[string][]string
	Body         string
}

// ContextFromMessage builds the evaluation context for a platform message.
func ContextFromMessage(msg *mail.Message) Context {
	return Context{
		EnvelopeFrom: msg.From,
		EnvelopeTo:   msg.To,
		Header: map[string][]string{
			"From":    {msg.From},
			"To":      {msg.To},
			"Subject": {msg.Subject},
		},
		Body: msg.Body,
	}
}

// Executor evaluates a compiled script against messages.
type Executor interface {
	Evaluate(evalCtx context.Context, ctx Context) (filter.Outcome, error)
}

// SieveExecutor implements the Executor interface using the go-sieve library
type SieveExecutor struct {
	script *sieve.Script
}

// NewExecutor compiles the script content and returns an executor for it.
func NewExecutor(scriptContent string) (Executor, error) {
	script, err := compile(scriptContent)
	if err != nil {
		return nil, err
	}
	return &SieveExecutor{script: script}, nil
}

// Validate compiles the script content and reports any error without
// retaining the compiled form. Used by the script upload surfaces.
func Validate(scriptContent string) error {
	_, err := compile(scriptContent)
	return err
}

func compile(scriptContent string) (*sieve.Script, error) {
	options := sieve.DefaultOptions()
	options.EnabledExtensions = SupportedExtensions
	script, err := sieve.Load(strings.NewReader(scriptContent), options)
	if err != nil {
		return nil, fmt.Errorf("sieve script: %w", err)
	}
	return script, nil
}

// Evaluate runs the script against the given context and maps the verdict to
// a filter outcome. An execution error returns the empty outcome (keep) along
// with the error; callers decide whether to deliver anyway.
func (e *SieveExecutor) Evaluate(evalCtx context.Context, ctx Context) (filter.Outcome, error) {
	envelope := &sieveEnvelope{from: ctx.EnvelopeFrom, to: ctx.EnvelopeTo}
	message := newSieveMessage(ctx.Header, ctx.Body)
	policy := &sievePolicy{}

	data := sieve.NewRuntimeData(e.script, policy, envelope, message)

	if err := e.script.Execute(evalCtx, data); err != nil {
		return filter.Outcome{}, err
	}

	var outcome filter.Outcome
	switch {
	case len(data.Mailboxes) > 0:
		// fileinto: the first target folder wins.
		outcome.Folder = fn.Some(data.Mailboxes[0])
	case len(data.RedirectAddr) > 0:
		// Address forwarding needs an outbound transport the platform does
		// not have; deliver normally instead.
	case !data.Keep && !data.ImplicitKeep:
		// Explicit discard, or a script that cancelled the implicit keep.
		outcome.Discard = true
	}
	return outcome, nil
}

// sievePolicy implements the PolicyReader interface. Redirects are allowed
// through the interpreter (the outcome mapping neutralizes them); vacation
// can never trigger because the extension is not offered.
type sievePolicy struct{}

func (p *sievePolicy) RedirectAllowed(ctx context.Context, d *interp.RuntimeData, addr string) (bool, error) {
	return true, nil
}

func (p *sievePolicy) VacationResponseAllowed(ctx context.Context, d *interp.RuntimeData,
	originalSender, handle string, duration time.Duration) (bool, error) {
	return false, nil
}

func (p *sievePolicy) SendVacationResponse(ctx context.Context, d *interp.RuntimeData,
	recipient, from, subject, body string, isMime bool) error {
	return nil
}

// sieveEnvelope implements the Envelope interface
type sieveEnvelope struct {
	from string
	to   string
}

func (e *sieveEnvelope) EnvelopeFrom() string {
	return e.from
}

func (e *sieveEnvelope) EnvelopeTo() string {
	return e.to
}

func (e *sieveEnvelope) AuthUsername() string {
	return ""
}

// sieveMessage implements the Message interface. Header names are folded to
// lower case so scripts match regardless of the caller's key casing.
type sieveMessage struct {
	headers map[string][]string
	size    int
}

func newSieveMessage(header map[string][]string, body string) *sieveMessage {
	headers := make(map[string][]string, len(header))
	for key, values := range header {
		lower := strings.ToLower(key)
		headers[lower] = append(headers[lower], values...)
	}
	return &sieveMessage{headers: headers, size: len(body)}
}

func (m *sieveMessage) HeaderGet(key string) ([]string, error) {
	return m.headers[strings.ToLower(key)], nil
}

func (m *sieveMessage) MessageSize() int {
	return m.size
}

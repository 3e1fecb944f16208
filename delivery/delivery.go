// Package delivery implements the message delivery pipeline shared by the
// admin API and the CLI facade: filter evaluation, per-account script
// evaluation, routing across the server graph, folder storage, and dispatch
// queueing.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/deliveryqueue"
	"github.com/palomarmail/palomar/filter"
	"github.com/palomarmail/palomar/logger"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/pkg/idgen"
	"github.com/palomarmail/palomar/pkg/metrics"
	"github.com/palomarmail/palomar/sieveengine"
	"github.com/palomarmail/palomar/topology"
)

// Recipient is the delivery-relevant view of an account.
type Recipient interface {
	// Address returns the account's normalized address.
	Address() string
	// ServerID returns the identifier of the account's home server.
	ServerID() string
	// ScriptExecutor returns the account's compiled filtering script, or nil.
	ScriptExecutor() sieveengine.Executor
	// Deliver stores the message into the folder at folderPath under the
	// account's lock, creating the folder if it does not exist yet.
	Deliver(folderPath string, msg *mail.Message) error
}

// Directory resolves recipient addresses to accounts.
type Directory interface {
	// LookupRecipient returns the account registered under address.
	// Returns ErrAccountNotFound when no such account exists.
	LookupRecipient(address string) (Recipient, error)
}

// Controller runs the delivery pipeline. All fields except Notify are
// required.
type Controller struct {
	Directory Directory
	Graph     *topology.Graph
	Queue     *deliveryqueue.Queue
	Filters   *filter.Engine

	// DispatchTier is the lowest-priority tier that still enters the
	// dispatch queue. With the default of TierMedium, high and medium
	// messages queue and low messages do not.
	DispatchTier mail.Tier

	// Notify nudges the dispatch worker after an enqueue. Optional.
	Notify func()
}

// Result describes one successful delivery.
type Result struct {
	DeliveryID string    `json:"delivery_id"`
	MessageID  string    `json:"message_id"`
	Recipient  string    `json:"recipient"`
	Folder     string    `json:"folder"`
	Tier       mail.Tier `json:"tier"`
	Route      []string  `json:"route,omitempty"`
	Queued     bool      `json:"queued"`
	Discarded  bool      `json:"discarded"`
}

// DeliverMessage runs the full pipeline for one message:
//
//  1. Resolve the recipient account.
//  2. Evaluate platform filter rules, then the recipient's script; the
//     script's outcome is merged over the rules' outcome.
//  3. A discard verdict ends the pipeline with Result.Discarded set and
//     nothing stored.
//  4. Resolve the effective tier (outcome override or the message's own) and
//     the target folder (outcome override or INBOX).
//  5. Compute the route from sourceServerID to the recipient's server.
//     sourceServerID may be empty for messages injected from outside the
//     topology; those are treated as arriving directly at the recipient's
//     server. No route means nothing is stored.
//  6. Store the message in the recipient's tree, creating the folder when the
//     filters redirected to one that does not exist yet.
//  7. Queue the message for dispatch when its tier is at or above
//     DispatchTier.
func (c *Controller) DeliverMessage(ctx context.Context, sourceServerID string, msg *mail.Message) (*Result, error) {
	start := time.Now()
	deliveryID := idgen.New()

	logger.Debug("Delivery: pipeline started", "delivery_id", deliveryID,
		"message_id", msg.ID, "from", msg.From, "to", msg.To, "tier", msg.Tier)

	rcpt, err := c.Directory.LookupRecipient(msg.To)
	if err != nil {
		c.observe(msg.Tier, "rejected", start)
		logger.Info("Delivery: recipient rejected", "delivery_id", deliveryID, "to", msg.To, "error", err)
		return nil, err
	}

	outcome := c.Filters.Evaluate(msg)
	if exec := rcpt.ScriptExecutor(); exec != nil {
		scriptOutcome, err := exec.Evaluate(ctx, sieveengine.ContextFromMessage(msg))
		if err != nil {
			// A broken script must not lose mail; deliver as if it kept.
			logger.Warn("Delivery: script evaluation failed, keeping message",
				"delivery_id", deliveryID, "recipient", rcpt.Address(), "error", err)
		} else {
			outcome.Merge(scriptOutcome)
		}
	}

	if outcome.Discard {
		c.observe(msg.Tier, "discarded", start)
		logger.Info("Delivery: message discarded by filter", "delivery_id", deliveryID,
			"message_id", msg.ID, "recipient", rcpt.Address())
		return &Result{
			DeliveryID: deliveryID,
			MessageID:  msg.ID,
			Recipient:  rcpt.Address(),
			Tier:       msg.Tier,
			Discarded:  true,
		}, nil
	}

	tier := outcome.Tier.UnwrapOr(msg.Tier)
	if tier != msg.Tier {
		logger.Debug("Delivery: tier overridden by filter", "delivery_id", deliveryID,
			"from_tier", msg.Tier, "to_tier", tier)
		msg = msg.WithTier(tier)
	}
	folderPath := outcome.Folder.UnwrapOr(consts.FolderInbox)

	route, err := c.resolveRoute(sourceServerID, rcpt.ServerID())
	if err != nil {
		c.observe(tier, "route_unavailable", start)
		logger.Info("Delivery: no route to recipient server", "delivery_id", deliveryID,
			"source", sourceServerID, "target", rcpt.ServerID(), "error", err)
		return nil, err
	}

	if err := rcpt.Deliver(folderPath, msg); err != nil {
		c.observe(tier, "error", start)
		return nil, fmt.Errorf("storing message for %s: %w", rcpt.Address(), err)
	}

	result := &Result{
		DeliveryID: deliveryID,
		MessageID:  msg.ID,
		Recipient:  rcpt.Address(),
		Folder:     folderPath,
		Tier:       tier,
		Route:      route,
	}

	if tier <= c.DispatchTier {
		entry := c.Queue.Enqueue(msg.ID, rcpt.Address(), tier)
		result.Queued = true
		if c.Notify != nil {
			c.Notify()
		}
		logger.Debug("Delivery: queued for dispatch", "delivery_id", deliveryID, "entry_id", entry.ID)
	}

	c.observe(tier, "delivered", start)
	logger.Info("Delivery: message delivered", "delivery_id", deliveryID,
		"message_id", msg.ID, "recipient", result.Recipient, "folder", result.Folder,
		"tier", tier, "route", result.Route, "queued", result.Queued)
	return result, nil
}

// resolveRoute computes the hop path to the target server. An empty source
// means the message entered at the target itself.
func (c *Controller) resolveRoute(sourceServerID, targetServerID string) ([]string, error) {
	if sourceServerID == "" || sourceServerID == targetServerID {
		return []string{targetServerID}, nil
	}

	route, err := c.Graph.ShortestPath(sourceServerID, targetServerID)
	if err != nil {
		if errors.Is(err, consts.ErrServerUnreachable) {
			return nil, fmt.Errorf("%w: no path from %q to %q",
				consts.ErrRouteUnavailable, sourceServerID, targetServerID)
		}
		return nil, err
	}
	return route, nil
}

func (c *Controller) observe(tier mail.Tier, status string, start time.Time) {
	metrics.DeliveryAttempts.WithLabelValues(tier.String(), status).Inc()
	metrics.DeliveryDuration.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

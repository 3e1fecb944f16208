// Package platform ties the pieces together: the account registry, the server
// topology, the platform filter rules, the dispatch queue, and the delivery
// pipeline, behind one facade used by the admin API and the CLI.
package platform

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/delivery"
	"github.com/palomarmail/palomar/deliveryqueue"
	"github.com/palomarmail/palomar/filter"
	"github.com/palomarmail/palomar/folder"
	"github.com/palomarmail/palomar/helpers"
	"github.com/palomarmail/palomar/logger"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/pkg/metrics"
	"github.com/palomarmail/palomar/topology"
)

// Platform is the top-level registry and facade. One RWMutex guards the
// account and server maps; each account guards its own tree.
type Platform struct {
	mu       sync.RWMutex
	accounts map[string]*Account
	servers  map[string]*MailServer

	graph      *topology.Graph
	filters    *filter.Engine
	queue      *deliveryqueue.Queue
	controller *delivery.Controller

	startedAt time.Time
}

// New builds an empty platform. dispatchTier is the lowest-priority tier that
// still enters the dispatch queue (TierMedium queues high and medium traffic).
func New(dispatchTier mail.Tier) *Platform {
	p := &Platform{
		accounts:  make(map[string]*Account),
		servers:   make(map[string]*MailServer),
		graph:     topology.NewGraph(),
		filters:   filter.NewEngine(),
		queue:     deliveryqueue.New(),
		startedAt: time.Now(),
	}
	p.controller = &delivery.Controller{
		Directory:    p,
		Graph:        p.graph,
		Queue:        p.queue,
		Filters:      p.filters,
		DispatchTier: dispatchTier,
	}
	return p
}

// SetDispatchNotifier installs the dispatch worker's nudge, called after
// every enqueue. Set it during startup, before traffic arrives.
func (p *Platform) SetDispatchNotifier(notify func()) {
	p.controller.Notify = notify
}

// Graph exposes the server topology.
func (p *Platform) Graph() *topology.Graph { return p.graph }

// Filters exposes the platform-wide rule engine.
func (p *Platform) Filters() *filter.Engine { return p.filters }

// Queue exposes the dispatch queue.
func (p *Platform) Queue() *deliveryqueue.Queue { return p.queue }

// RegisterServer adds a server to the topology and the registry.
// Returns ErrServerExists on duplicates.
func (p *Platform) RegisterServer(id string) error {
	id = strings.TrimSpace(id)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.graph.AddServer(id); err != nil {
		return err
	}
	p.servers[id] = newMailServer(id)
	return nil
}

// LinkServers records a symmetric link between two registered servers.
func (p *Platform) LinkServers(a, b string) error {
	return p.graph.AddLink(strings.TrimSpace(a), strings.TrimSpace(b))
}

// ServerInfo describes one server for the topology listing.
type ServerInfo struct {
	ID        string   `json:"id"`
	Neighbors []string `json:"neighbors"`
	Accounts  int      `json:"accounts"`
}

// Servers returns every registered server sorted by ID, with its direct
// neighbors and account count.
func (p *Platform) Servers() []ServerInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()

	infos := make([]ServerInfo, 0, len(p.servers))
	for id, srv := range p.servers {
		neighbors, err := p.graph.Neighbors(id)
		if err != nil {
			continue
		}
		infos = append(infos, ServerInfo{ID: id, Neighbors: neighbors, Accounts: srv.AccountCount()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// RegisterAccount creates an account homed on the given server. The address
// is normalized to lower case and must be unique across the platform.
// Returns ErrAccountExists on duplicates and ErrServerUnknown when the server
// is not registered.
func (p *Platform) RegisterAccount(address, serverID string) error {
	if !helpers.ValidAddress(address) {
		return fmt.Errorf("invalid account address %q", address)
	}
	address = helpers.NormalizeAddress(address)
	serverID = strings.TrimSpace(serverID)

	p.mu.Lock()
	defer p.mu.Unlock()

	srv, ok := p.servers[serverID]
	if !ok {
		return fmt.Errorf("%w: %q", consts.ErrServerUnknown, serverID)
	}
	if _, exists := p.accounts[address]; exists {
		return fmt.Errorf("%w: %q", consts.ErrAccountExists, address)
	}

	account := newAccount(address, serverID)
	p.accounts[address] = account
	srv.accounts[address] = account
	metrics.AccountsTotal.Set(float64(len(p.accounts)))

	logger.Info("Platform: registered account", "address", address, "server", serverID)
	return nil
}

// DeregisterAccount removes an account and its folder tree.
func (p *Platform) DeregisterAccount(address string) error {
	address = helpers.NormalizeAddress(address)

	p.mu.Lock()
	defer p.mu.Unlock()

	account, ok := p.accounts[address]
	if !ok {
		return fmt.Errorf("%w: %q", consts.ErrAccountNotFound, address)
	}
	delete(p.accounts, address)
	if srv, ok := p.servers[account.serverID]; ok {
		delete(srv.accounts, address)
	}
	metrics.AccountsTotal.Set(float64(len(p.accounts)))

	logger.Info("Platform: deregistered account", "address", address, "server", account.serverID)
	return nil
}

// AccountInfo describes one account for listings.
type AccountInfo struct {
	Address   string `json:"address"`
	Server    string `json:"server"`
	Messages  int    `json:"messages"`
	HasScript bool   `json:"has_script"`
}

// Accounts returns every account sorted by address.
func (p *Platform) Accounts() []AccountInfo {
	p.mu.RLock()
	accounts := make([]*Account, 0, len(p.accounts))
	for _, a := range p.accounts {
		accounts = append(accounts, a)
	}
	p.mu.RUnlock()

	infos := make([]AccountInfo, 0, len(accounts))
	for _, a := range accounts {
		infos = append(infos, AccountInfo{
			Address:   a.address,
			Server:    a.serverID,
			Messages:  a.TotalMessages(),
			HasScript: a.HasScript(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Address < infos[j].Address })
	return infos
}

func (p *Platform) account(address string) (*Account, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	account, ok := p.accounts[helpers.NormalizeAddress(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", consts.ErrAccountNotFound, address)
	}
	return account, nil
}

// LookupRecipient implements delivery.Directory.
func (p *Platform) LookupRecipient(address string) (delivery.Recipient, error) {
	return p.account(address)
}

// SetAccountScript compiles and installs a filtering script for the account.
// An empty script removes the current one.
func (p *Platform) SetAccountScript(address, script string) error {
	account, err := p.account(address)
	if err != nil {
		return err
	}
	if err := account.SetScript(script); err != nil {
		return err
	}
	logger.Info("Platform: account script updated", "address", account.address,
		"installed", account.HasScript())
	return nil
}

// SendMessage composes and delivers a message from one registered account to
// another, then places an independent copy in the sender's Sent folder. The
// Sent copy has its own ID, is not filtered, not queued, and not routed.
// A failed delivery stores nothing anywhere.
func (p *Platform) SendMessage(ctx context.Context, from, to, subject, body string, tier mail.Tier) (*delivery.Result, error) {
	sender, err := p.account(from)
	if err != nil {
		return nil, fmt.Errorf("sender: %w", err)
	}

	msg, err := mail.NewMessage(sender.address, helpers.NormalizeAddress(to), subject, body, tier)
	if err != nil {
		return nil, err
	}

	result, err := p.controller.DeliverMessage(ctx, sender.serverID, msg)
	if err != nil {
		return nil, err
	}

	// The sender keeps a Sent copy even when the recipient's script
	// discarded the delivery.
	if err := sender.Deliver(consts.FolderSent, msg.Clone()); err != nil {
		return nil, fmt.Errorf("storing sent copy for %s: %w", sender.address, err)
	}
	return result, nil
}

// IngestMessage parses an RFC 5322 message and delivers it as traffic
// arriving from outside the topology, or from the sender's home server when
// the sender happens to be a registered account. recipientOverride, when
// non-empty, replaces the parsed To address. No Sent copy is made.
func (p *Platform) IngestMessage(ctx context.Context, raw []byte, recipientOverride string) (*delivery.Result, error) {
	msg, err := mail.ReadMessage(raw)
	if err != nil {
		return nil, err
	}

	if override := helpers.NormalizeAddress(recipientOverride); override != "" && override != msg.To {
		msg, err = mail.NewMessage(msg.From, override, msg.Subject, msg.Body, msg.Tier)
		if err != nil {
			return nil, err
		}
	}

	sourceServerID := ""
	if sender, err := p.account(msg.From); err == nil {
		sourceServerID = sender.serverID
	}
	return p.controller.DeliverMessage(ctx, sourceServerID, msg)
}

// ListMessages returns the messages directly in the account's folder at
// folderPath, in insertion order.
func (p *Platform) ListMessages(address, folderPath string) ([]*mail.Message, error) {
	account, err := p.account(address)
	if err != nil {
		return nil, err
	}
	return account.List(folderPath)
}

// SearchMessages returns the account's messages whose subject or sender
// contains the query, case-insensitively.
func (p *Platform) SearchMessages(address, query string) ([]SearchResult, error) {
	account, err := p.account(address)
	if err != nil {
		return nil, err
	}
	return account.SearchMessages(query), nil
}

// GetMessage locates a message by ID anywhere in the account's tree.
func (p *Platform) GetMessage(address, messageID string) (string, *mail.Message, error) {
	account, err := p.account(address)
	if err != nil {
		return "", nil, err
	}
	return account.FindMessage(messageID)
}

// MoveMessage transfers a message between two folders of the account.
func (p *Platform) MoveMessage(address, fromPath, toPath, messageID string) error {
	account, err := p.account(address)
	if err != nil {
		return err
	}
	return account.Move(fromPath, toPath, messageID)
}

// CreateFolder creates a child folder under parentPath in the account's tree.
func (p *Platform) CreateFolder(address, parentPath, name string) error {
	account, err := p.account(address)
	if err != nil {
		return err
	}
	return account.CreateFolder(parentPath, name)
}

// FolderTree renders the account's folder hierarchy with message counts.
func (p *Platform) FolderTree(address string) (*folder.Node, error) {
	account, err := p.account(address)
	if err != nil {
		return nil, err
	}
	return account.TreeView(), nil
}

// QueueStats reports the dispatch queue's depth per tier and its next entry.
func (p *Platform) QueueStats() deliveryqueue.Stats {
	return p.queue.GetStats()
}

// Dispatch is the terminal step for a queued entry. The platform has no
// outbound transport; dispatching confirms the recipient still exists and the
// message is still present in their tree, and records the completion.
func (p *Platform) Dispatch(ctx context.Context, entry *deliveryqueue.Entry) error {
	account, err := p.account(entry.Recipient)
	if err != nil {
		return fmt.Errorf("dispatching entry %s: %w", entry.ID, err)
	}
	folderPath, _, err := account.FindMessage(entry.MessageID)
	if err != nil {
		return fmt.Errorf("dispatching entry %s: %w", entry.ID, err)
	}
	logger.Info("Platform: entry dispatched", "entry_id", entry.ID,
		"message_id", entry.MessageID, "recipient", entry.Recipient,
		"tier", entry.Tier, "folder", folderPath)
	return nil
}

// DispatchBatch drains up to max entries from the queue in priority order,
// dispatching each, and returns the drained entries. Dispatch failures are
// recorded but do not stop the batch; failed entries are never requeued.
func (p *Platform) DispatchBatch(ctx context.Context, max int) []*deliveryqueue.Entry {
	if max <= 0 {
		max = 1
	}

	var drained []*deliveryqueue.Entry
	for len(drained) < max {
		entry, err := p.queue.Dequeue()
		if err != nil {
			break
		}
		if err := p.Dispatch(ctx, entry); err != nil {
			logger.Warn("Platform: dispatch failed", "entry_id", entry.ID, "error", err)
		}
		drained = append(drained, entry)
	}
	return drained
}

// HealthInfo is the health endpoint's payload.
type HealthInfo struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Servers       int    `json:"servers"`
	Accounts      int    `json:"accounts"`
	QueueDepth    int    `json:"queue_depth"`
}

// Health summarizes the platform state.
func (p *Platform) Health() HealthInfo {
	p.mu.RLock()
	servers := len(p.servers)
	accounts := len(p.accounts)
	p.mu.RUnlock()

	return HealthInfo{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(p.startedAt).Seconds()),
		Servers:       servers,
		Accounts:      accounts,
		QueueDepth:    p.queue.Len(),
	}
}

package platform

import (
	"fmt"
	"strings"
	"sync"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/folder"
	"github.com/palomarmail/palomar/mail"
	"github.com/palomarmail/palomar/sieveengine"
)

// Account is one mailbox owner: an address, a home server, and a folder tree.
// One mutex guards the tree and the script; the admin API and the dispatch
// worker call in concurrently.
type Account struct {
	address  string
	serverID string

	mu     sync.Mutex
	tree   *folder.Tree
	script string
	exec   sieveengine.Executor
}

func newAccount(address, serverID string) *Account {
	a := &Account{
		address:  address,
		serverID: serverID,
		tree:     folder.NewTree(),
	}
	for _, name := range consts.DefaultFolders {
		// The names are distinct constants; seeding cannot fail.
		a.tree.EnsureFolder(name)
	}
	return a
}

// Address returns the account's normalized address.
func (a *Account) Address() string { return a.address }

// ServerID returns the identifier of the account's home server.
func (a *Account) ServerID() string { return a.serverID }

// ScriptExecutor returns the account's compiled filtering script, or nil when
// the account has none.
func (a *Account) ScriptExecutor() sieveengine.Executor {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exec
}

// SetScript compiles and installs the given script source. An empty source
// removes the script.
func (a *Account) SetScript(script string) error {
	if strings.TrimSpace(script) == "" {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.script = ""
		a.exec = nil
		return nil
	}

	exec, err := sieveengine.NewExecutor(script)
	if err != nil {
		return fmt.Errorf("compiling script for %s: %w", a.address, err)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.script = script
	a.exec = exec
	return nil
}

// HasScript reports whether a filtering script is installed.
func (a *Account) HasScript() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.exec != nil
}

// Deliver stores the message into the folder at folderPath, creating the
// folder when it does not exist yet.
func (a *Account) Deliver(folderPath string, msg *mail.Message) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := a.tree.EnsureFolder(folderPath); err != nil {
		return err
	}
	return a.tree.AddMessage(folderPath, msg)
}

// List returns the messages directly in the folder at folderPath.
func (a *Account) List(folderPath string) ([]*mail.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.ListMessages(folderPath)
}

// CreateFolder creates a child folder named name under parentPath.
func (a *Account) CreateFolder(parentPath, name string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.CreateFolder(parentPath, name)
}

// Move transfers the message with the given ID from one folder to another.
func (a *Account) Move(fromPath, toPath, messageID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.MoveMessage(fromPath, toPath, messageID)
}

// SearchResult is one search hit: the message and the folder holding it.
type SearchResult struct {
	Folder  string        `json:"folder"`
	Message *mail.Message `json:"message"`
}

// SearchMessages returns every message whose subject or sender contains the
// query, case-insensitively, in tree pre-order. An empty query matches all.
func (a *Account) SearchMessages(query string) []SearchResult {
	needle := strings.ToLower(query)
	match := func(m *mail.Message) bool {
		return strings.Contains(strings.ToLower(m.Subject), needle) ||
			strings.Contains(strings.ToLower(m.From), needle)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	var results []SearchResult
	for path, msg := range a.tree.Search(match) {
		results = append(results, SearchResult{Folder: path, Message: msg})
	}
	return results
}

// FindMessage locates a message by ID anywhere in the tree and returns the
// holding folder's path alongside it.
func (a *Account) FindMessage(messageID string) (string, *mail.Message, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for path, msg := range a.tree.Search(func(m *mail.Message) bool { return m.ID == messageID }) {
		return path, msg, nil
	}
	return "", nil, fmt.Errorf("%w: %q", consts.ErrMessageNotFound, messageID)
}

// TreeView renders the account's folder hierarchy with message counts.
func (a *Account) TreeView() *folder.Node {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.Snapshot()
}

// TotalMessages counts the messages across all folders.
func (a *Account) TotalMessages() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tree.TotalMessages()
}

// MailServer is one node of the topology with the accounts homed on it.
type MailServer struct {
	ID       string
	accounts map[string]*Account
}

func newMailServer(id string) *MailServer {
	return &MailServer{ID: id, accounts: make(map[string]*Account)}
}

// AccountCount returns the number of accounts homed on the server.
func (s *MailServer) AccountCount() int { return len(s.accounts) }

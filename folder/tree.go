package folder

import (
	"fmt"
	"iter"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/helpers"
	"github.com/palomarmail/palomar/mail"
)

// Tree is a rooted folder tree addressed by delimiter-separated paths
// ("INBOX/Work/2025"). The empty path is the unnamed root. A Tree is not
// safe for concurrent use; the owning account serializes access.
type Tree struct {
	root *Folder
}

// NewTree returns an empty tree containing only the root.
func NewTree() *Tree {
	return &Tree{root: newFolder("")}
}

// Root returns the root folder.
func (t *Tree) Root() *Folder {
	return t.root
}

// Resolve walks the path and returns the folder it names.
// Returns ErrFolderNotFound when any component is missing.
func (t *Tree) Resolve(path string) (*Folder, error) {
	current := t.root
	for _, name := range helpers.SplitFolderPath(path) {
		next, ok := current.child(name)
		if !ok {
			return nil, fmt.Errorf("%w: %q", consts.ErrFolderNotFound, path)
		}
		current = next
	}
	return current, nil
}

// CreateFolder creates a child named name under the folder at parentPath.
// Returns ErrFolderNotFound when the parent path does not resolve and
// ErrFolderExists when a sibling of that name already exists.
func (t *Tree) CreateFolder(parentPath, name string) error {
	parent, err := t.Resolve(parentPath)
	if err != nil {
		return err
	}
	_, err = parent.addChild(name)
	return err
}

// EnsureFolder walks the path, creating any missing components, and returns
// the folder at its end. Existing folders are never disturbed.
func (t *Tree) EnsureFolder(path string) (*Folder, error) {
	current := t.root
	for _, name := range helpers.SplitFolderPath(path) {
		next, ok := current.child(name)
		if !ok {
			var err error
			next, err = current.addChild(name)
			if err != nil {
				return nil, err
			}
		}
		current = next
	}
	return current, nil
}

// AddMessage appends the message to the folder at path.
func (t *Tree) AddMessage(path string, msg *mail.Message) error {
	f, err := t.Resolve(path)
	if err != nil {
		return err
	}
	f.messages = append(f.messages, msg)
	return nil
}

// ListMessages returns the messages directly in the folder at path, in
// insertion order. It never recurses.
func (t *Tree) ListMessages(path string) ([]*mail.Message, error) {
	f, err := t.Resolve(path)
	if err != nil {
		return nil, err
	}
	return f.Messages(), nil
}

// Search traverses the whole tree in pre-order (a folder's own messages
// first, then each child folder in creation order) and yields the
// (path, message) pairs matching pred. The sequence is lazy and restartable;
// every message is visited exactly once per traversal. The tree must not be
// mutated while a traversal is in progress.
func (t *Tree) Search(pred func(*mail.Message) bool) iter.Seq2[string, *mail.Message] {
	return func(yield func(string, *mail.Message) bool) {
		searchFolder(t.root, "", pred, yield)
	}
}

func searchFolder(f *Folder, path string, pred func(*mail.Message) bool, yield func(string, *mail.Message) bool) bool {
	for _, m := range f.messages {
		if pred(m) {
			if !yield(path, m) {
				return false
			}
		}
	}
	for _, name := range f.order {
		childPath := name
		if path != "" {
			childPath = helpers.JoinFolderPath(path, name)
		}
		if !searchFolder(f.children[name], childPath, pred, yield) {
			return false
		}
	}
	return true
}

// MoveMessage transfers the message with the given ID from the folder at
// fromPath to the folder at toPath. The message value is unchanged; only
// ownership moves. Both paths are resolved before anything is unlinked, so a
// failed move leaves the tree untouched. Returns ErrFolderNotFound when
// either path is missing and ErrMessageNotFound when the source folder does
// not hold the message.
func (t *Tree) MoveMessage(fromPath, toPath, messageID string) error {
	src, err := t.Resolve(fromPath)
	if err != nil {
		return err
	}
	dst, err := t.Resolve(toPath)
	if err != nil {
		return err
	}

	msg, ok := src.removeMessage(messageID)
	if !ok {
		return fmt.Errorf("%w: %q in %q", consts.ErrMessageNotFound, messageID, fromPath)
	}
	dst.messages = append(dst.messages, msg)
	return nil
}

// TotalMessages counts every message in the tree.
func (t *Tree) TotalMessages() int {
	return countMessages(t.root)
}

func countMessages(f *Folder) int {
	n := len(f.messages)
	for _, name := range f.order {
		n += countMessages(f.children[name])
	}
	return n
}

// Node is a serializable view of one folder, used by the tree listing
// surfaces.
type Node struct {
	Name     string  `json:"name"`
	Path     string  `json:"path"`
	Messages int     `json:"messages"`
	Children []*Node `json:"children,omitempty"`
}

// Snapshot renders the whole tree as nested Nodes. The root node carries an
// empty name and path.
func (t *Tree) Snapshot() *Node {
	return snapshotFolder(t.root, "")
}

func snapshotFolder(f *Folder, path string) *Node {
	n := &Node{
		Name:     f.Name,
		Path:     path,
		Messages: len(f.messages),
	}
	for _, name := range f.order {
		childPath := name
		if path != "" {
			childPath = helpers.JoinFolderPath(path, name)
		}
		n.Children = append(n.Children, snapshotFolder(f.children[name], childPath))
	}
	return n
}

// Package folder implements the recursive folder tree that backs each
// account's mailbox: an unbounded-arity rooted tree whose nodes hold an
// ordered message sequence and named child folders.
package folder

import (
	"errors"
	"fmt"
	"strings"

	"github.com/palomarmail/palomar/consts"
	"github.com/palomarmail/palomar/mail"
)

// ErrInvalidName is returned for folder names that are empty or contain the
// path delimiter.
var ErrInvalidName = errors.New("invalid folder name")

// Folder is a single node of the tree. Name is fixed at creation; messages
// keep insertion order; children are unique by name and iterated in the
// order they were created.
type Folder struct {
	Name string

	messages []*mail.Message
	children map[string]*Folder
	order    []string
}

func newFolder(name string) *Folder {
	return &Folder{
		Name:     name,
		children: make(map[string]*Folder),
	}
}

// Messages returns the folder's own messages in insertion order. The slice
// is a copy; the message values are shared and must not be mutated.
func (f *Folder) Messages() []*mail.Message {
	out := make([]*mail.Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// Children returns the direct child folders in creation order.
func (f *Folder) Children() []*Folder {
	out := make([]*Folder, 0, len(f.order))
	for _, name := range f.order {
		out = append(out, f.children[name])
	}
	return out
}

// MessageCount returns the number of messages directly in this folder.
func (f *Folder) MessageCount() int {
	return len(f.messages)
}

func (f *Folder) child(name string) (*Folder, bool) {
	c, ok := f.children[name]
	return c, ok
}

func (f *Folder) addChild(name string) (*Folder, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, exists := f.children[name]; exists {
		return nil, fmt.Errorf("%w: %q", consts.ErrFolderExists, name)
	}
	c := newFolder(name)
	f.children[name] = c
	f.order = append(f.order, name)
	return c, nil
}

// removeMessage unlinks the message with the given ID, preserving the order
// of the remaining messages.
func (f *Folder) removeMessage(id string) (*mail.Message, bool) {
	for i, m := range f.messages {
		if m.ID == id {
			f.messages = append(f.messages[:i], f.messages[i+1:]...)
			return m, true
		}
	}
	return nil, false
}

func validateName(name string) error {
	if name == "" || strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsRune(name, consts.FolderDelimiter) {
		return fmt.Errorf("%w: %q contains %q", ErrInvalidName, name, consts.FolderDelimiter)
	}
	return nil
}

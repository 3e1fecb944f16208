package consts

const FolderDelimiter = '/'

const (
	FolderInbox = "INBOX"
	FolderSent  = "Sent"
)

var DefaultFolders = []string{
	FolderInbox,
	FolderSent,
	"Drafts",
	"Archive",
	"Junk",
	"Trash",
}

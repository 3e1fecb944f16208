package commands

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/palomarmail/palomar/folder"
	"github.com/palomarmail/palomar/mail"
)

// formatMessage formats a message summary for list output.
func formatMessage(msg *mail.Message) string {
	var sb strings.Builder

	// Tier indicator.
	switch msg.Tier {
	case mail.TierHigh:
		sb.WriteString("[HIGH] ")
	case mail.TierLow:
		sb.WriteString("[low] ")
	}

	sb.WriteString(fmt.Sprintf("%s: %s\n", msg.ID, msg.Subject))
	sb.WriteString(fmt.Sprintf("  From: %s | %s\n",
		msg.From, msg.Date.Format(time.RFC3339)))

	if msg.Snippet != "" {
		sb.WriteString(fmt.Sprintf("  %s\n", msg.Snippet))
	}

	return sb.String()
}

// formatMessageFull formats a message with full body for reading.
func formatMessageFull(folderPath string, msg *mail.Message) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Message %s\n", msg.ID))
	sb.WriteString(strings.Repeat("=", 60) + "\n")
	sb.WriteString(fmt.Sprintf("Subject: %s\n", msg.Subject))
	sb.WriteString(fmt.Sprintf("From: %s\n", msg.From))
	sb.WriteString(fmt.Sprintf("To: %s\n", msg.To))
	sb.WriteString(fmt.Sprintf("Folder: %s\n", folderPath))
	sb.WriteString(fmt.Sprintf("Tier: %s\n", msg.Tier))
	sb.WriteString(fmt.Sprintf("Date: %s\n", msg.Date.Format(time.RFC3339)))
	sb.WriteString(strings.Repeat("-", 60) + "\n")
	sb.WriteString(msg.Body + "\n")

	return sb.String()
}

// formatTree renders a folder tree with two-space indentation per level. The
// root node itself is not printed.
func formatTree(root *folder.Node) string {
	var sb strings.Builder
	for _, child := range root.Children {
		writeTreeNode(&sb, child, 0)
	}
	return sb.String()
}

func writeTreeNode(sb *strings.Builder, node *folder.Node, depth int) {
	sb.WriteString(strings.Repeat("  ", depth))
	sb.WriteString(fmt.Sprintf("%s (%d)\n", node.Name, node.Messages))
	for _, child := range node.Children {
		writeTreeNode(sb, child, depth+1)
	}
}

// outputJSON outputs data as JSON.
func outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

package helpers

import (
	"io"
	"strings"

	"github.com/emersion/go-message"
	"github.com/k3a/html2text"
)

// ExtractPlaintextBody walks the MIME structure of a parsed message and
// returns its plain-text body. The first text/plain part wins; when only
// text/html parts exist the first one is converted to plain text.
func ExtractPlaintextBody(entity *message.Entity) (string, error) {
	var plaintext, html *string

	var walk func(*message.Entity) error
	walk = func(e *message.Entity) error {
		mediaType, _, _ := e.Header.ContentType()

		if strings.HasPrefix(mediaType, "multipart/") {
			mr := e.MultipartReader()
			if mr == nil {
				return nil
			}
			for {
				part, err := mr.NextPart()
				if err == io.EOF {
					break
				}
				if err != nil {
					return err
				}
				if err := walk(part); err != nil {
					return err
				}
			}
			return nil
		}

		content, err := io.ReadAll(e.Body)
		if err != nil {
			return err
		}

		switch mediaType {
		case "text/plain", "":
			if plaintext == nil {
				s := string(content)
				plaintext = &s
			}
		case "text/html":
			if html == nil {
				s := string(content)
				html = &s
			}
		}
		return nil
	}

	if err := walk(entity); err != nil {
		return "", err
	}

	if plaintext != nil {
		return *plaintext, nil
	}
	if html != nil {
		return html2text.HTML2Text(*html), nil
	}
	return "", nil
}

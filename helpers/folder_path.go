package helpers

import (
	"strings"

	"github.com/palomarmail/palomar/consts"
)

// SplitFolderPath splits a delimiter-separated folder path into its
// components. Leading, trailing and doubled delimiters are tolerated; an
// empty path yields no components (the tree root).
func SplitFolderPath(path string) []string {
	parts := strings.Split(path, string(consts.FolderDelimiter))
	components := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		components = append(components, p)
	}
	return components
}

// JoinFolderPath joins folder name components into a path.
func JoinFolderPath(components ...string) string {
	return strings.Join(components, string(consts.FolderDelimiter))
}

package helpers

import "strings"

// SplitAddress splits an email address into its local part and domain.
// The address is lowercased first so lookups are case-insensitive.
// A missing domain is returned as "".
func SplitAddress(address string) (string, string) {
	address = NormalizeAddress(address)
	at := strings.LastIndex(address, "@")
	if at < 0 {
		return address, ""
	}
	return address[:at], address[at+1:]
}

// NormalizeAddress lowercases and trims an address for use as a lookup key.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// ValidAddress reports whether the address has a non-empty local part and domain.
func ValidAddress(address string) bool {
	local, domain := SplitAddress(address)
	return local != "" && domain != ""
}

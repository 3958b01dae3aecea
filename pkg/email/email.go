// Package email splits mail addresses without validating the domain part.
package email

import "strings"

// Split returns the local part and the lower-cased domain of addr. ok is false
// when addr does not hold exactly one "@" with text on both sides.
func Split(addr string) (local, domain string, ok bool) {
	local, domain, found := strings.Cut(strings.TrimSpace(addr), "@")
	if !found || local == "" || domain == "" || strings.Contains(domain, "@") {
		return "", "", false
	}
	return local, strings.ToLower(domain), true
}

// Domain returns the lower-cased domain of addr, or "" when addr is malformed.
func Domain(addr string) string {
	_, domain, _ := Split(addr)
	return domain
}

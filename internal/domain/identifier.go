package domain

import (
	"net"
	"strings"

	dErrors "zahori/pkg/domain-errors"
	"zahori/pkg/email"
)

// IdentifierKind is the kind of value an investigator asks intelligence about.
type IdentifierKind string

const (
	KindIP     IdentifierKind = "ip"
	KindDomain IdentifierKind = "domain"
	KindEmail  IdentifierKind = "email"
	KindPhone  IdentifierKind = "phone"
)

// Kinds lists every enrichable identifier kind.
var Kinds = []IdentifierKind{KindIP, KindDomain, KindEmail, KindPhone}

func (k IdentifierKind) String() string {
	return string(k)
}

// IsValid reports whether k is a supported kind.
func (k IdentifierKind) IsValid() bool {
	switch k {
	case KindIP, KindDomain, KindEmail, KindPhone:
		return true
	}
	return false
}

// EchoKey is the attribute key that carries the raw identifier in a record.
func (k IdentifierKind) EchoKey() string {
	switch k {
	case KindPhone:
		return "number"
	default:
		return string(k)
	}
}

// ParseIdentifierKind parses a kind string, case-insensitively.
func ParseIdentifierKind(s string) (IdentifierKind, error) {
	k := IdentifierKind(strings.ToLower(strings.TrimSpace(s)))
	if !k.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unsupported identifier type: "+s)
	}
	return k, nil
}

// Identifier is an immutable typed value supplied by the caller.
type Identifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

// ParseIdentifier validates value for kind and normalizes it.
func ParseIdentifier(kind IdentifierKind, value string) (Identifier, error) {
	if !kind.IsValid() {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "unsupported identifier type: "+string(kind))
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return Identifier{}, dErrors.New(dErrors.CodeValidation, "searchValue is required")
	}

	switch kind {
	case KindIP:
		ip := net.ParseIP(value)
		if ip == nil {
			return Identifier{}, dErrors.New(dErrors.CodeValidation, "invalid IP address")
		}
		value = ip.String()
	case KindDomain:
		value = strings.TrimSuffix(strings.ToLower(value), ".")
		if !IsDomainName(value) {
			return Identifier{}, dErrors.New(dErrors.CodeValidation, "invalid domain name")
		}
	case KindEmail:
		local, host, ok := email.Split(value)
		if !ok || !IsDomainName(host) {
			return Identifier{}, dErrors.New(dErrors.CodeValidation, "invalid email address")
		}
		value = local + "@" + host
	case KindPhone:
		if n := len(PhoneDigits(value)); n < 6 || n > 15 {
			return Identifier{}, dErrors.New(dErrors.CodeValidation, "invalid phone number")
		}
	}
	return Identifier{Kind: kind, Value: value}, nil
}

func (id Identifier) String() string {
	return string(id.Kind) + ":" + id.Value
}

// IsDomainName reports whether s is a syntactically valid multi-label host name.
func IsDomainName(s string) bool {
	if len(s) == 0 || len(s) > 253 {
		return false
	}
	labels := strings.Split(s, ".")
	if len(labels) < 2 {
		return false
	}
	for _, label := range labels {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for _, r := range label {
			isAlnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
			if !isAlnum && r != '-' && r != '_' {
				return false
			}
		}
	}
	return true
}

// PhoneDigits strips formatting from a phone string, keeping digits only.
func PhoneDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

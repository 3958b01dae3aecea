package domain

import (
	dErrors "zahori/pkg/domain-errors"
)

// EntityType is the type of a graph node.
type EntityType string

const (
	EntityTarget   EntityType = "target"
	EntityIP       EntityType = "ip"
	EntityEmail    EntityType = "email"
	EntityPhone    EntityType = "phone"
	EntityDomain   EntityType = "domain"
	EntityCrypto   EntityType = "crypto"
	EntityIdentity EntityType = "identity"
	EntityBank     EntityType = "bank"
	EntityLocation EntityType = "location"
	EntityCompany  EntityType = "company"
	EntityServer   EntityType = "server"
)

// entityFields is the catalog of attribute keys each type is expected to carry.
// It is informational: nothing rejects a node carrying other keys.
var entityFields = map[EntityType][]string{
	EntityTarget: {"name", "alias", "dob", "cob", "national_id", "nationality", "gender",
		"occupation", "employer", "notes", "risk_score", "last_seen", "status", "tags"},
	EntityIP: {"ip", "version", "asn", "isp", "organization", "country", "city", "lat", "lon",
		"timezone", "ports", "os", "vulns", "reverse_dns", "proxy", "tor", "risk_score"},
	EntityEmail: {"email", "provider", "disposable", "breached", "last_breach", "password_hash",
		"social_profiles", "gravatar", "domain_age"},
	EntityPhone:  {"number", "country_code", "carrier", "line_type", "whatsapp", "telegram", "cnam", "location"},
	EntityDomain: {"domain", "registrar", "creation_date", "expiry_date", "servers", "whois_privacy", "subdomains", "ssl_issuer", "mx_records"},
	EntityCrypto: {"address", "currency", "balance", "total_received", "total_sent", "first_tx", "last_tx", "risk_level", "entity"},
	EntityIdentity: {"platform", "username", "userid", "url", "bio", "followers", "following",
		"creation_date", "verified"},
	EntityBank:     {"iban", "swift", "bank_name", "holder", "country", "currency", "branch"},
	EntityLocation: {"city", "country", "lat", "lon", "zip", "timezone"},
	EntityCompany:  {"name", "asn", "isp", "domain", "registry"},
	EntityServer:   {"ports", "os", "vulns", "banner", "cpe"},
}

// EntityTypes lists every entity type in display order.
var EntityTypes = []EntityType{
	EntityTarget, EntityIP, EntityEmail, EntityPhone, EntityDomain, EntityCrypto,
	EntityIdentity, EntityBank, EntityLocation, EntityCompany, EntityServer,
}

func (t EntityType) String() string {
	return string(t)
}

// IsValid reports whether t is a known entity type.
func (t EntityType) IsValid() bool {
	_, ok := entityFields[t]
	return ok
}

// Fields returns the recognized attribute keys for t.
func (t EntityType) Fields() []string {
	fields := entityFields[t]
	out := make([]string, len(fields))
	copy(out, fields)
	return out
}

// ParseEntityType parses a type string.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.IsValid() {
		return "", dErrors.New(dErrors.CodeValidation, "unknown entity type: "+s)
	}
	return t, nil
}

// EntityTypeForKind maps an identifier kind to the node type that represents it.
func EntityTypeForKind(k IdentifierKind) EntityType {
	switch k {
	case KindIP:
		return EntityIP
	case KindDomain:
		return EntityDomain
	case KindEmail:
		return EntityEmail
	case KindPhone:
		return EntityPhone
	}
	return ""
}

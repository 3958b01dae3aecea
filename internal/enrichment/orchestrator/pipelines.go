package orchestrator

import (
	"zahori/internal/domain"
	"zahori/pkg/email"
)

// VerificationUnavailable marks an email lookup that had no mailbox verifier.
const VerificationUnavailable = "deep verification unavailable"

// IPPipeline runs the paid sources first, then the public geolocation
// fallback, strictly in order.
func IPPipeline(reputation, abuse, geo Caller) Pipeline {
	return Pipeline{
		Kind:       domain.KindIP,
		SourceType: domain.EntityIP,
		Stages:     []Stage{Sequential(reputation), Sequential(abuse), Sequential(geo)},
	}
}

// DomainPipeline runs record resolution and registration data concurrently.
func DomainPipeline(records, registration Caller) Pipeline {
	return Pipeline{
		Kind:       domain.KindDomain,
		SourceType: domain.EntityDomain,
		Stages:     []Stage{Concurrent(records, registration)},
	}
}

// EmailPipeline verifies the mailbox and always proposes the mail domain.
func EmailPipeline(verifier Caller) Pipeline {
	return Pipeline{
		Kind:       domain.KindEmail,
		SourceType: domain.EntityEmail,
		Stages:     []Stage{Sequential(verifier)},
		Finalize:   finalizeEmail,
	}
}

// PhonePipeline validates the number and falls back to a calling code guess.
func PhonePipeline(validator Caller) Pipeline {
	name := validator.Descriptor().Name
	return Pipeline{
		Kind:       domain.KindPhone,
		SourceType: domain.EntityPhone,
		Stages:     []Stage{Sequential(validator)},
		Finalize: func(d *Draft) {
			finalizePhone(d, name)
		},
	}
}

func finalizeEmail(d *Draft) {
	mailDomain := email.Domain(d.Identifier.Value)
	if mailDomain == "" {
		return
	}
	d.SetDefault("email_domain", mailDomain)
	if !d.Attributes.Has("verification_score") {
		d.Attributes["verification"] = VerificationUnavailable
	}
	d.Propose(domain.ProposedNode{
		Ref:   "email.domain",
		Type:  domain.EntityDomain,
		Data:  map[string]any{"domain": mailDomain},
		Label: mailDomain,
	})
}

func finalizePhone(d *Draft, validator string) {
	if d.Status(validator) == domain.ProviderOK && d.Attributes["valid"] == true {
		d.Attributes["confidence"] = "high"
		return
	}
	if code, country, ok := GuessCallingCode(d.Identifier.Value); ok {
		d.SetDefault("country_code", "+"+code)
		d.SetDefault("country", country)
	}
	d.Attributes["confidence"] = "low"
}

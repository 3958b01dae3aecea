// Package rdap looks up domain registration data over RDAP, the registry
// protocol that replaced WHOIS.
package rdap

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"zahori/internal/domain"
	"zahori/internal/enrichment/providers"
)

const (
	Name = "rdap"
	// DefaultBaseURL is a bootstrap redirector that forwards to the
	// authoritative registry for the TLD.
	DefaultBaseURL = "https://rdap.org"
)

type event struct {
	Action string `json:"eventAction"`
	Date   string `json:"eventDate"`
}

type entity struct {
	Roles      []string `json:"roles"`
	VCardArray []any    `json:"vcardArray"`
	Handle     string   `json:"handle"`
}

type domainResponse struct {
	LDHName     string   `json:"ldhName"`
	Status      []string `json:"status"`
	Events      []event  `json:"events"`
	Entities    []entity `json:"entities"`
	Nameservers []struct {
		LDHName string `json:"ldhName"`
	} `json:"nameservers"`
}

// Registration is the decoded registry answer.
type Registration struct {
	Registrar    string
	CreationDate string
	ExpiryDate   string
	UpdatedDate  string
	Status       []string
	Nameservers  []string
}

type Adapter struct {
	baseURL string
	http    *providers.HTTPClient
}

func New(baseURL string, client *http.Client) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    providers.NewHTTPClient(Name, client),
	}
}

func (a *Adapter) Descriptor() providers.Descriptor {
	return providers.Descriptor{
		Name:     Name,
		Kinds:    []domain.IdentifierKind{domain.KindDomain},
		Protocol: providers.ProtocolRDAP,
	}
}

func (a *Adapter) Lookup(ctx context.Context, id domain.Identifier, _ string) (providers.Result, error) {
	reg, err := a.Register(ctx, id.Value)
	if err != nil {
		return providers.Result{}, err
	}

	attrs := domain.Attributes{
		"registrar":     reg.Registrar,
		"creation_date": reg.CreationDate,
		"expiry_date":   reg.ExpiryDate,
		"updated_date":  reg.UpdatedDate,
		"status":        strings.Join(reg.Status, ", "),
		"servers":       strings.Join(reg.Nameservers, ", "),
	}
	res := providers.Result{Attributes: attrs}
	res.Nodes, res.Edges = RegistrarNodes(reg)
	return res, nil
}

// Register fetches the registration record for name.
func (a *Adapter) Register(ctx context.Context, name string) (Registration, error) {
	var resp domainResponse
	if err := a.http.GetJSON(ctx, a.baseURL+"/domain/"+url.PathEscape(name), nil, &resp); err != nil {
		return Registration{}, err
	}
	if resp.LDHName == "" && len(resp.Events) == 0 {
		return Registration{}, providers.NewProviderError(providers.ErrorContractMismatch, Name, "not a domain object", nil)
	}

	reg := Registration{Status: resp.Status}
	for _, ev := range resp.Events {
		switch ev.Action {
		case "registration":
			reg.CreationDate = ev.Date
		case "expiration":
			reg.ExpiryDate = ev.Date
		case "last changed":
			reg.UpdatedDate = ev.Date
		}
	}
	for _, ent := range resp.Entities {
		for _, role := range ent.Roles {
			if role == "registrar" {
				reg.Registrar = vcardName(ent.VCardArray)
				if reg.Registrar == "" {
					reg.Registrar = ent.Handle
				}
			}
		}
	}
	for _, ns := range resp.Nameservers {
		reg.Nameservers = append(reg.Nameservers, strings.ToLower(ns.LDHName))
	}
	return reg, nil
}

// RegistrarNodes proposes a company node for the registrar.
func RegistrarNodes(reg Registration) ([]domain.ProposedNode, []domain.ProposedEdge) {
	if reg.Registrar == "" {
		return nil, nil
	}
	node := domain.ProposedNode{
		Ref:   "registrar",
		Type:  domain.EntityCompany,
		Data:  map[string]any{"name": reg.Registrar, "registry": "registrar"},
		Label: reg.Registrar,
	}
	edge := domain.ProposedEdge{Source: domain.Origin(), Target: domain.ByRef("registrar")}
	return []domain.ProposedNode{node}, []domain.ProposedEdge{edge}
}

// vcardName extracts the fn property from a jCard array:
// ["vcard", [["version", {}, "text", "4.0"], ["fn", {}, "text", "Name"]]]
func vcardName(card []any) string {
	if len(card) < 2 {
		return ""
	}
	props, ok := card[1].([]any)
	if !ok {
		return ""
	}
	for _, p := range props {
		prop, ok := p.([]any)
		if !ok || len(prop) < 4 {
			continue
		}
		if name, _ := prop[0].(string); name == "fn" {
			value, _ := prop[3].(string)
			return value
		}
	}
	return ""
}

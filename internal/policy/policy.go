// Package policy decides which link hosts may be trusted for a given run.
package policy

import (
	"net/url"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/petvoyage/regsync/internal/model"
)

// Policy is the static allowlist configuration, loaded once at startup.
type Policy struct {
	// Domains maps a regulation domain (country, airline) to its trusted
	// host configuration.
	Domains map[string]DomainPolicy `yaml:"domains"`
}

// DomainPolicy holds the trusted hosts for one regulation domain.
type DomainPolicy struct {
	// Hosts are exact trusted hosts. Subdomains of a listed host are also
	// trusted.
	Hosts []string `yaml:"hosts"`

	// GovPatterns are generic government-domain substrings (".gov",
	// ".gob.", ".gouv.") matched against the host.
	GovPatterns []string `yaml:"gov_patterns"`

	// SupplementalAuthority is the one named trusted authority outside the
	// host list (e.g. aphis.usda.gov for countries, iata.org for airlines).
	SupplementalAuthority string `yaml:"supplemental_authority"`
}

// Default returns the built-in policy used when no policy file is configured.
func Default() *Policy {
	return &Policy{
		Domains: map[string]DomainPolicy{
			string(model.DomainCountry): {
				GovPatterns:           []string{".gov", ".gob.", ".gouv.", ".gv.", ".govt."},
				SupplementalAuthority: "aphis.usda.gov",
			},
			string(model.DomainAirline): {
				GovPatterns:           []string{".gov"},
				SupplementalAuthority: "iata.org",
			},
		},
	}
}

// Load reads a policy yaml file. Missing path falls back to Default.
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "policy: read %s", path)
	}
	var p Policy
	if err := yaml.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrapf(err, "policy: parse %s", path)
	}
	if len(p.Domains) == 0 {
		return nil, eris.Errorf("policy: %s defines no domains", path)
	}
	return &p, nil
}

// HostSet is the per-run set of trusted hosts: static policy hosts, hosts of
// the existing record's own links, and hosts of caller-supplied manual URLs.
type HostSet struct {
	hosts                 map[string]bool
	govPatterns           []string
	supplementalAuthority string
}

// NewHostSet computes the AllowedHostSet for one run.
func NewHostSet(pol *Policy, domain model.Domain, existing *model.Record, manualURLs []string) *HostSet {
	hs := &HostSet{hosts: make(map[string]bool)}

	if pol != nil {
		if dp, ok := pol.Domains[string(domain)]; ok {
			for _, h := range dp.Hosts {
				hs.add(h)
			}
			hs.govPatterns = dp.GovPatterns
			hs.supplementalAuthority = strings.ToLower(dp.SupplementalAuthority)
		}
	}

	if existing != nil {
		for _, l := range existing.OfficialLinks {
			hs.addURL(l.URL)
		}
		for _, c := range existing.Categories {
			for _, l := range c.Links {
				hs.addURL(l.URL)
			}
		}
	}

	for _, raw := range manualURLs {
		hs.addURL(raw)
	}

	return hs
}

func (hs *HostSet) add(host string) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host != "" {
		hs.hosts[host] = true
	}
}

func (hs *HostSet) addURL(raw string) {
	if h := hostOf(raw); h != "" {
		hs.hosts[h] = true
	}
}

// Allowed reports whether the URL's host is trusted: an exact member, a
// subdomain of a member, a government-pattern match, or the supplemental
// authority. Malformed URLs are always rejected, never an error.
func (hs *HostSet) Allowed(rawURL string) bool {
	host := hostOf(rawURL)
	if host == "" {
		return false
	}

	if hs.hosts[host] {
		return true
	}
	for member := range hs.hosts {
		if strings.HasSuffix(host, "."+member) {
			return true
		}
	}

	// Patterns with a trailing dot (".gob.") match anywhere in the host;
	// the rest (".gov") match as a suffix only.
	for _, pat := range hs.govPatterns {
		pat = strings.ToLower(pat)
		if strings.HasSuffix(pat, ".") {
			if strings.Contains(host, pat) {
				return true
			}
		} else if strings.HasSuffix(host, pat) {
			return true
		}
	}

	if hs.supplementalAuthority != "" {
		if host == hs.supplementalAuthority || strings.HasSuffix(host, "."+hs.supplementalAuthority) {
			return true
		}
	}

	return false
}

// Hosts returns the explicit member hosts, for logging.
func (hs *HostSet) Hosts() []string {
	out := make([]string, 0, len(hs.hosts))
	for h := range hs.hosts {
		out = append(out, h)
	}
	return out
}

// hostOf extracts the lowercased host from an absolute URL, or "" if the URL
// is malformed or relative.
func hostOf(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || !u.IsAbs() || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

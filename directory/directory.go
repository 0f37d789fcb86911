// Package directory implements C7: publishing certificates and CRLs
// into the mirrored LDAP directory tree, at a DN that is a pure
// function of fingerprint, type and country.
package directory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ldap/ldap/v3"

	"github.com/icao-pkd/trustdir/core"
	pkderrors "github.com/icao-pkd/trustdir/errors"
	"github.com/icao-pkd/trustdir/log"
)

// Conn is the subset of *ldap.Conn the publisher needs, so tests can
// fake the wire without a real directory server.
type Conn interface {
	Add(req *ldap.AddRequest) error
	Del(req *ldap.DelRequest) error
	Search(req *ldap.SearchRequest) (*ldap.SearchResult, error)
}

// Publisher is C7, backed by an LDAP connection to the mirrored tree.
type Publisher struct {
	conn   Conn
	baseDN string
	log    log.Logger

	mu        sync.Mutex
	ensured   map[string]bool
}

// New constructs a Publisher rooted at baseDN (e.g. "dc=pkd,dc=example").
func New(conn Conn, baseDN string, logger log.Logger) *Publisher {
	return &Publisher{conn: conn, baseDN: baseDN, log: logger, ensured: map[string]bool{}}
}

func ouFor(certType core.CertType) string {
	switch certType {
	case core.CertTypeCSCA:
		return "csca"
	case core.CertTypeDSCNC:
		return "dsc_nc"
	default:
		return "dsc"
	}
}

func containerFor(certType core.CertType) string {
	if certType == core.CertTypeDSCNC {
		return "dc=nc-data"
	}
	return "dc=data"
}

// BuildDN constructs the canonical certificate DN: pure function of
// fingerprint, type, and country, per spec §4.7.
func (p *Publisher) BuildDN(certType core.CertType, country, fingerprint string) string {
	return fmt.Sprintf("cn=%s,o=%s,c=%s,%s,%s", fingerprint, ouFor(certType), strings.ToLower(country), containerFor(certType), p.baseDN)
}

// BuildCRLDN constructs the canonical CRL DN.
func (p *Publisher) BuildCRLDN(country, fingerprint string) string {
	return fmt.Sprintf("cn=%s,o=crl,c=%s,dc=data,%s", fingerprint, strings.ToLower(country), p.baseDN)
}

// AddCertificate publishes one certificate, lazily provisioning its
// parent containers first.
func (p *Publisher) AddCertificate(ctx context.Context, cert core.Certificate) error {
	if err := p.EnsureParentDNExists(ctx, cert.Type, cert.Country); err != nil {
		return err
	}
	dn := p.BuildDN(cert.Type, cert.Country, cert.Fingerprint)
	req := ldap.NewAddRequest(dn, nil)
	req.Attribute("objectClass", []string{"top", "pkdDownload"})
	req.Attribute("cn", []string{cert.Fingerprint})
	req.Attribute("userCertificate;binary", []string{string(cert.DER)})
	if err := p.conn.Add(req); err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return pkderrors.DirectoryError("add certificate %s: %s", dn, err)
	}
	return nil
}

// AddCRL publishes one CRL, lazily provisioning its crl container.
func (p *Publisher) AddCRL(ctx context.Context, crl core.CRL) error {
	parentDN := fmt.Sprintf("o=crl,c=%s,dc=data,%s", strings.ToLower(crl.Country), p.baseDN)
	if err := p.ensurePath(ctx, parentDN); err != nil {
		return err
	}
	dn := p.BuildCRLDN(crl.Country, crl.Fingerprint)
	req := ldap.NewAddRequest(dn, nil)
	req.Attribute("objectClass", []string{"top", "cRLDistributionPoint"})
	req.Attribute("cn", []string{crl.Fingerprint})
	req.Attribute("certificateRevocationList;binary", []string{string(crl.DER)})
	if err := p.conn.Add(req); err != nil {
		if isAlreadyExists(err) {
			return nil
		}
		return pkderrors.DirectoryError("add CRL %s: %s", dn, err)
	}
	return nil
}

// DeleteCertificate removes one leaf entry by DN.
func (p *Publisher) DeleteCertificate(ctx context.Context, dn string) error {
	if err := p.conn.Del(ldap.NewDelRequest(dn, nil)); err != nil {
		if isNoSuchObject(err) {
			return nil
		}
		return pkderrors.DirectoryError("delete %s: %s", dn, err)
	}
	return nil
}

// EnsureParentDNExists idempotently provisions the country/ou container
// path for certType+country. Concurrent callers converge: a duplicate
// create is swallowed, not surfaced as an error.
func (p *Publisher) EnsureParentDNExists(ctx context.Context, certType core.CertType, country string) error {
	country = strings.ToLower(country)
	container := containerFor(certType)
	countryDN := fmt.Sprintf("c=%s,%s,%s", country, container, p.baseDN)
	ouDN := fmt.Sprintf("o=%s,c=%s,%s,%s", ouFor(certType), country, container, p.baseDN)
	if err := p.ensurePath(ctx, countryDN); err != nil {
		return err
	}
	return p.ensurePath(ctx, ouDN)
}

func (p *Publisher) ensurePath(ctx context.Context, dn string) error {
	p.mu.Lock()
	if p.ensured[dn] {
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	if p.exists(dn) {
		p.markEnsured(dn)
		return nil
	}

	rdn, objectClass := rdnAttrAndClass(dn)
	req := ldap.NewAddRequest(dn, nil)
	req.Attribute("objectClass", []string{"top", objectClass})
	req.Attribute(rdn.attr, []string{rdn.value})
	if err := p.conn.Add(req); err != nil && !isAlreadyExists(err) {
		return pkderrors.DirectoryError("provision parent %s: %s", dn, err)
	}
	p.markEnsured(dn)
	return nil
}

func (p *Publisher) markEnsured(dn string) {
	p.mu.Lock()
	p.ensured[dn] = true
	p.mu.Unlock()
}

func (p *Publisher) exists(dn string) bool {
	req := ldap.NewSearchRequest(dn, ldap.ScopeBaseObject, ldap.NeverDerefAliases, 1, 0, false, "(objectClass=*)", []string{"cn"}, nil)
	_, err := p.conn.Search(req)
	return err == nil
}

type rdn struct {
	attr  string
	value string
}

func rdnAttrAndClass(dn string) (rdn, string) {
	first := strings.SplitN(dn, ",", 2)[0]
	parts := strings.SplitN(first, "=", 2)
	attr, value := parts[0], parts[1]
	switch attr {
	case "c":
		return rdn{attr, value}, "country"
	case "o":
		return rdn{attr, value}, "organization"
	default:
		return rdn{attr, value}, "organizationalUnit"
	}
}

func isAlreadyExists(err error) bool {
	var ldapErr *ldap.Error
	if le, ok := asLDAPError(err); ok {
		ldapErr = le
		return ldapErr.ResultCode == ldap.LDAPResultEntryAlreadyExists
	}
	return false
}

func isNoSuchObject(err error) bool {
	if le, ok := asLDAPError(err); ok {
		return le.ResultCode == ldap.LDAPResultNoSuchObject
	}
	return false
}

func asLDAPError(err error) (*ldap.Error, bool) {
	le, ok := err.(*ldap.Error)
	return le, ok
}

// CountByType and CountByCountry reconcile against the DB-side counts
// by searching the mirrored tree; both are used by C8's gather step.
// Per BuildDN, a type's entries live at "o=<type>,c=<country>,<container>,
// baseDN" -- a separate o=<type> node under every country -- so counting
// them means a subtree search over the whole container, filtered by the
// o= RDN each matching leaf's DN carries, not a single fixed "o=<type>"
// base.
func (p *Publisher) CountByType(ctx context.Context) (map[core.CertType]int, error) {
	counts := map[core.CertType]int{}
	for _, t := range []core.CertType{core.CertTypeCSCA, core.CertTypeDSC, core.CertTypeDSCNC} {
		entries, err := p.listEntriesOfType(t)
		if err != nil {
			continue
		}
		counts[t] = len(entries)
	}
	return counts, nil
}

// CountByCountry buckets the same subtree searches CountByType runs by
// the c=<country> RDN each matching entry's DN carries, so it reports
// the same LDAP-side counts CountByType does, broken down per country
// instead of summed across all of them.
func (p *Publisher) CountByCountry(ctx context.Context) (map[string]map[core.CertType]int, error) {
	out := map[string]map[core.CertType]int{}
	for _, t := range []core.CertType{core.CertTypeCSCA, core.CertTypeDSC, core.CertTypeDSCNC} {
		entries, err := p.listEntriesOfType(t)
		if err != nil {
			continue
		}
		for _, e := range entries {
			country, ok := countryRDN(e.DN)
			if !ok {
				continue
			}
			if out[country] == nil {
				out[country] = map[core.CertType]int{}
			}
			out[country][t]++
		}
	}
	return out, nil
}

// countryRDN extracts the value of a DN's c=<country> RDN, the third
// component of the cn=<fp>,o=<type>,c=<country>,... DNs BuildDN emits,
// upper-cased back to the form core.Certificate.Country is stored in
// (BuildDN itself lower-cases it for the directory entry).
func countryRDN(dn string) (string, bool) {
	for _, part := range strings.Split(dn, ",") {
		if strings.HasPrefix(part, "c=") {
			return strings.ToUpper(strings.TrimPrefix(part, "c=")), true
		}
	}
	return "", false
}

// CountCRLs reports how many CRL entries the mirrored tree holds.
// BuildCRLDN puts each CRL under its own country's o=crl node in
// dc=data, so the dc=data subtree is searched and only entries whose DN
// carries an "o=crl," RDN are counted.
func (p *Publisher) CountCRLs(ctx context.Context) (int, error) {
	entries, err := p.listUnder(fmt.Sprintf("dc=data,%s", p.baseDN))
	if err != nil {
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if strings.Contains(e.DN, "o=crl,") {
			n++
		}
	}
	return n, nil
}

func (p *Publisher) countUnder(baseDN string) (int, error) {
	entries, err := p.listUnder(baseDN)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}

// listEntriesOfType subtree-searches the container holding certType
// (dc=data or dc=nc-data) and keeps only the leaf entries whose DN
// carries an "o=<type>" RDN, since every country has its own such node.
func (p *Publisher) listEntriesOfType(certType core.CertType) ([]*ldap.Entry, error) {
	containerDN := fmt.Sprintf("%s,%s", containerFor(certType), p.baseDN)
	entries, err := p.listUnder(containerDN)
	if err != nil {
		return nil, err
	}
	ouRDN := "o=" + ouFor(certType) + ","
	var matched []*ldap.Entry
	for _, e := range entries {
		if strings.Contains(e.DN, ouRDN) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// ListFingerprintsByType enumerates the cn (fingerprint) RDN of every
// leaf entry the mirrored tree holds for certType, across all countries.
// Used by the orphan-detection pass to find directory entries with no
// corresponding Trust Store row.
func (p *Publisher) ListFingerprintsByType(ctx context.Context, certType core.CertType) ([]string, error) {
	entries, err := p.listEntriesOfType(certType)
	if err != nil {
		return nil, err
	}
	fingerprints := make([]string, 0, len(entries))
	for _, e := range entries {
		fingerprints = append(fingerprints, e.GetAttributeValue("cn"))
	}
	return fingerprints, nil
}

func (p *Publisher) listUnder(baseDN string) ([]*ldap.Entry, error) {
	req := ldap.NewSearchRequest(baseDN, ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false, "(cn=*)", []string{"cn"}, nil)
	res, err := p.conn.Search(req)
	if err != nil {
		return nil, err
	}
	return res.Entries, nil
}

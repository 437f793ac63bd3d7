package chunker

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"

	kerrors "github.com/faanross/simulacra_lsb/internal/errors"
)

// QueryKind is what a relay query name asks for.
type QueryKind int

const (
	QueryManifest QueryKind = iota + 1
	QueryChunk
	QueryList
	QueryAck
)

// Query is a parsed relay query name.
type Query struct {
	Kind     QueryKind
	ID       MessageID
	Sequence uint16
	Client   string
}

// Naming builds and parses relay query names under a zone. Labels:
//
//	m-<id>.<zone>         manifest
//	c-<seq>-<id>.<zone>   fragment
//	list.<client>.<zone>  pending message ids for client
//	ack.<id>.<client>.<zone>  client finished with a message
//
// With CacheBust, manifest and fragment labels carry a "t<minutes>-" prefix
// so resolvers do not serve stale answers; parsing strips it.
type Naming struct {
	Zone      string
	CacheBust bool
}

// NewNaming returns a Naming for zone, which is made fully qualified.
func NewNaming(zone string) Naming {
	return Naming{Zone: dns.Fqdn(strings.ToLower(zone))}
}

func (n Naming) prefix() string {
	if !n.CacheBust {
		return ""
	}
	return fmt.Sprintf("t%d-", time.Now().Unix()/60)
}

// Manifest is the query name for a message manifest.
func (n Naming) Manifest(id MessageID) string {
	return fmt.Sprintf("%sm-%s.%s", n.prefix(), id, n.Zone)
}

// Chunk is the query name for one fragment.
func (n Naming) Chunk(id MessageID, seq uint16) string {
	return fmt.Sprintf("%sc-%d-%s.%s", n.prefix(), seq, id, n.Zone)
}

// List is the query name for a client's pending messages.
func (n Naming) List(client string) string {
	return fmt.Sprintf("list.%s.%s", SanitizeLabel(client), n.Zone)
}

// Ack is the query name a client sends after consuming a message.
func (n Naming) Ack(id MessageID, client string) string {
	return fmt.Sprintf("ack.%s.%s.%s", id, SanitizeLabel(client), n.Zone)
}

// Parse decodes a query name under the zone.
func (n Naming) Parse(qname string) (Query, error) {
	name := strings.ToLower(dns.Fqdn(qname))
	if !dns.IsSubDomain(n.Zone, name) || name == n.Zone {
		return Query{}, fmt.Errorf("%s is outside %s: %w", qname, n.Zone, kerrors.ErrInvalidChunk)
	}
	labels := dns.SplitDomainName(strings.TrimSuffix(name, "."+n.Zone))

	if len(labels) == 2 && labels[0] == "list" {
		return Query{Kind: QueryList, Client: labels[1]}, nil
	}
	if len(labels) == 3 && labels[0] == "ack" {
		id, err := ParseMessageID(labels[1])
		if err != nil {
			return Query{}, err
		}
		return Query{Kind: QueryAck, ID: id, Client: labels[2]}, nil
	}
	if len(labels) != 1 {
		return Query{}, fmt.Errorf("unexpected name %s: %w", qname, kerrors.ErrInvalidChunk)
	}

	label := labels[0]
	if label[0] == 't' {
		if i := strings.IndexByte(label, '-'); i > 0 {
			label = label[i+1:]
		}
	}

	switch {
	case strings.HasPrefix(label, "m-"):
		id, err := ParseMessageID(label[2:])
		if err != nil {
			return Query{}, err
		}
		return Query{Kind: QueryManifest, ID: id}, nil

	case strings.HasPrefix(label, "c-"):
		parts := strings.SplitN(label[2:], "-", 2)
		if len(parts) != 2 {
			return Query{}, fmt.Errorf("chunk label %q: %w", label, kerrors.ErrInvalidChunk)
		}
		seq, err := strconv.ParseUint(parts[0], 10, 16)
		if err != nil {
			return Query{}, fmt.Errorf("chunk label %q: %w", label, kerrors.ErrInvalidChunk)
		}
		id, err := ParseMessageID(parts[1])
		if err != nil {
			return Query{}, err
		}
		return Query{Kind: QueryChunk, ID: id, Sequence: uint16(seq)}, nil
	}

	return Query{}, fmt.Errorf("unknown label %q: %w", label, kerrors.ErrInvalidChunk)
}

// Manifest describes a stored message: its fragment count and the CRC32 of
// the reassembled bytes. On the wire it is "<total>:<crc32 hex>".
type Manifest struct {
	Total    uint16
	Checksum uint32
}

func (m Manifest) String() string {
	return fmt.Sprintf("%d:%08x", m.Total, m.Checksum)
}

// ParseManifest parses the TXT form produced by Manifest.String.
func ParseManifest(s string) (Manifest, error) {
	total, sum, ok := strings.Cut(s, ":")
	if !ok {
		return Manifest{}, fmt.Errorf("manifest %q: %w", s, kerrors.ErrInvalidChunk)
	}
	t, err := strconv.ParseUint(total, 10, 16)
	if err != nil || t == 0 {
		return Manifest{}, fmt.Errorf("manifest total %q: %w", total, kerrors.ErrInvalidChunk)
	}
	c, err := strconv.ParseUint(sum, 16, 32)
	if err != nil {
		return Manifest{}, fmt.Errorf("manifest checksum %q: %w", sum, kerrors.ErrInvalidChunk)
	}
	return Manifest{Total: uint16(t), Checksum: uint32(c)}, nil
}

var (
	invalidLabelChars = regexp.MustCompile(`[^a-z0-9-]`)
	repeatedHyphens   = regexp.MustCompile(`-+`)
)

// SanitizeLabel lowercases s and reduces it to a valid DNS label.
func SanitizeLabel(s string) string {
	s = invalidLabelChars.ReplaceAllString(strings.ToLower(s), "-")
	s = repeatedHyphens.ReplaceAllString(s, "-")
	s = strings.Trim(s, "-")
	if len(s) > 63 {
		s = strings.TrimRight(s[:63], "-")
	}
	if s == "" {
		return "anon"
	}
	return s
}

// ZoneFile renders msg as BIND TXT records, manifest first.
func (n Naming) ZoneFile(msg *Message, ttl uint32) string {
	plain := Naming{Zone: n.Zone}
	var b strings.Builder
	fmt.Fprintf(&b, "; simulacra relay message %s\n", msg.ID)
	fmt.Fprintf(&b, "; %d bytes in %d records\n", len(msg.Data), len(msg.Chunks)+1)

	manifest := Manifest{Total: uint16(len(msg.Chunks)), Checksum: msg.Checksum}
	fmt.Fprintf(&b, "%s %d IN TXT %q\n", plain.Manifest(msg.ID), ttl, manifest.String())
	for _, ch := range msg.Chunks {
		fmt.Fprintf(&b, "%s %d IN TXT %q\n", plain.Chunk(msg.ID, ch.Metadata.Sequence), ttl, ch.Encoded)
	}
	return b.String()
}

// Package pathcodec translates between the three coordinate systems a
// sync run juggles: the local filesystem path, the canonical
// vault-relative name, and the provider-specific remote key.
//
// Grounded on internal/drivers/local.go's path.Join-based key building
// and generalized to the per-provider encoding rules each wire
// protocol requires.
package pathcodec

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloudsync/cloudsync/internal/model"
)

// Provider selects which remote key/percent-encoding rules apply.
type Provider string

const (
	S3    Provider = "s3"
	Azure Provider = "azure"
	GCS   Provider = "gcs"
)

// Codec encodes and decodes names for one provider under one vault
// prefix. It is immutable once built.
type Codec struct {
	provider Provider
	prefix   model.VaultPrefix
}

// New derives the vault prefix for provider from the vault's folder
// name and returns a Codec for it.
func New(provider Provider, vaultFolderName string) *Codec {
	return &Codec{
		provider: provider,
		prefix:   derivePrefix(provider, vaultFolderName),
	}
}

// Prefix returns the codec's vault prefix.
func (c *Codec) Prefix() model.VaultPrefix { return c.prefix }

// LocalToRemote prepends the vault prefix to name and applies the
// provider's percent-encoding rules.
func (c *Codec) LocalToRemote(name string) string {
	name = strings.TrimPrefix(strings.ReplaceAll(name, "\\", "/"), "/")
	switch c.provider {
	case S3, GCS:
		segments := strings.Split(name, "/")
		for i, seg := range segments {
			segments[i] = encodeSegment(seg)
		}
		return fmt.Sprintf("%s/%s", c.prefix, strings.Join(segments, "/"))
	case Azure:
		// Azure blob keys carry no explicit encoding beyond what the
		// HTTP layer applies to the request URL.
		return fmt.Sprintf("%s/%s", c.prefix, name)
	default:
		return fmt.Sprintf("%s/%s", c.prefix, name)
	}
}

// RemoteToLocal decodes XML numeric entities, then percent-decodes,
// normalizes separators, and strips the vault prefix, returning the
// canonical name.
func (c *Codec) RemoteToLocal(remoteName string) string {
	decoded := decodeXMLNumericEntities(remoteName)
	decoded = percentDecode(decoded)
	decoded = strings.ReplaceAll(decoded, "\\", "/")
	stripped := strings.TrimPrefix(decoded, string(c.prefix)+"/")
	return strings.TrimPrefix(stripped, "/")
}

// --- vault prefix derivation, per §4.1 ---

var nonURLSafe = regexp.MustCompile(`[^a-z0-9-]+`)

func derivePrefix(provider Provider, folder string) model.VaultPrefix {
	lower := strings.ToLower(folder)
	switch provider {
	case Azure:
		return model.VaultPrefix(azureContainerName(lower))
	case S3, GCS:
		slug := nonURLSafe.ReplaceAllString(lower, "-")
		slug = strings.Trim(slug, "-")
		if slug == "" {
			slug = "vault"
		}
		return model.VaultPrefix(slug)
	default:
		return model.VaultPrefix(lower)
	}
}

// azureContainerName enforces [a-z0-9-]{3,63}, no consecutive dashes,
// must start and end alphanumeric.
func azureContainerName(lower string) string {
	s := nonURLSafe.ReplaceAllString(lower, "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	s = strings.Trim(s, "-")
	if s == "" {
		s = "vault"
	}
	for len(s) < 3 {
		s += "x"
	}
	if len(s) > 63 {
		s = s[:63]
		s = strings.TrimRight(s, "-")
		for len(s) < 3 {
			s += "x"
		}
	}
	return s
}

// --- percent encoding, per §4.1's S3/GCS refinements ---

// encodeSegment percent-encodes one path segment per RFC3986 while
// preserving "-", "_", ".", "~" and already-percent-encoded triples,
// and encoding "+" as "%20" to match S3's query-style space handling.
func encodeSegment(seg string) string {
	var b strings.Builder
	bytes := []byte(seg)
	for i := 0; i < len(bytes); i++ {
		c := bytes[i]
		switch {
		case c == '%' && i+2 < len(bytes) && isHex(bytes[i+1]) && isHex(bytes[i+2]):
			// Already percent-encoded triple: preserve verbatim, no
			// double encoding.
			b.WriteByte(bytes[i])
			b.WriteByte(bytes[i+1])
			b.WriteByte(bytes[i+2])
			i += 2
		case c == '+':
			b.WriteString("%20")
		case isUnreserved(c):
			b.WriteByte(c)
		default:
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '~':
		return true
	}
	return false
}

func isHex(c byte) bool {
	return (c >= '0' && c <= '9') || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func percentDecode(s string) string {
	b := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			var v byte
			_, _ = fmt.Sscanf(s[i+1:i+3], "%02X", &v)
			b = append(b, v)
			i += 2
			continue
		}
		b = append(b, s[i])
	}
	return string(b)
}

var xmlNumericEntity = regexp.MustCompile(`&#x([0-9A-Fa-f]+);|&#([0-9]+);`)

// decodeXMLNumericEntities decodes &#xNN; and &#NN; forms that S3 and
// Azure list responses use to escape control characters and
// non-ASCII bytes in object keys.
func decodeXMLNumericEntities(s string) string {
	return xmlNumericEntity.ReplaceAllStringFunc(s, func(m string) string {
		sub := xmlNumericEntity.FindStringSubmatch(m)
		var r rune
		if sub[1] != "" {
			_, _ = fmt.Sscanf(sub[1], "%x", &r)
		} else {
			_, _ = fmt.Sscanf(sub[2], "%d", &r)
		}
		return string(r)
	})
}

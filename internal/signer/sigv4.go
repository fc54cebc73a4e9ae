// Package signer implements AWS Signature Version 4 request signing
// for S3 and Shared-Key SAS token minting for Azure Blob.
//
// Grounded on internal/drivers/s3_auth.go's canonical-request builder,
// generalized to expose each intermediate value (canonical request,
// string-to-sign, signing key) so §8's AWS test-vector tests can
// assert on them independently. Only header signing is implemented;
// there is no query-string (presigned URL) signing.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"
)

// EmptyPayloadHash is the well-known SHA-256 of the empty byte
// string, used as the payload hash for bodyless requests.
const EmptyPayloadHash = "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855"

// SigV4 signs requests against one AWS-compatible region/service pair.
type SigV4 struct {
	AccessKey string
	SecretKey string
	Region    string
	Service   string
}

// New returns a SigV4 signer for the "s3" service.
func New(accessKey, secretKey, region string) *SigV4 {
	return &SigV4{AccessKey: accessKey, SecretKey: secretKey, Region: region, Service: "s3"}
}

// PayloadHash returns the hex SHA-256 of body, or EmptyPayloadHash
// for a nil/empty body.
func PayloadHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Sign signs req in place, given the already-computed payload hash,
// setting x-amz-date, x-amz-content-sha256 and Authorization.
func (s *SigV4) Sign(req *http.Request, payloadHash string) error {
	if s.AccessKey == "" || s.SecretKey == "" {
		return fmt.Errorf("configuration error: missing S3 credentials")
	}
	now := time.Now().UTC()
	req.Header.Set("x-amz-date", now.Format("20060102T150405Z"))
	req.Header.Set("x-amz-content-sha256", payloadHash)
	if req.Header.Get("content-type") == "" {
		req.Header.Set("content-type", "application/octet-stream")
	}
	if req.Host == "" {
		req.Host = req.URL.Host
	}

	canonical := s.CanonicalRequest(req, payloadHash)
	sts := s.StringToSign(canonical, now)
	sig := s.Signature(sts, now)

	req.Header.Set("Authorization", fmt.Sprintf(
		"AWS4-HMAC-SHA256 Credential=%s/%s, SignedHeaders=%s, Signature=%s",
		s.AccessKey, s.CredentialScope(now), s.SignedHeaders(req), sig,
	))
	return nil
}

// CanonicalRequest builds the six-line canonical request described
// in §4.2, using the mandatory header set {host, x-amz-content-sha256,
// x-amz-date, content-type}.
func (s *SigV4) CanonicalRequest(req *http.Request, payloadHash string) string {
	uri := req.URL.EscapedPath()
	if uri == "" {
		uri = "/"
	}

	query := req.URL.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		vals := query[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, fmt.Sprintf("%s=%s", uriEncode(k), uriEncode(v)))
		}
	}
	canonicalQuery := strings.Join(parts, "&")

	headers := map[string]string{
		"host":                 req.Host,
		"x-amz-content-sha256": payloadHash,
		"x-amz-date":           req.Header.Get("x-amz-date"),
		"content-type":         req.Header.Get("content-type"),
	}
	for k := range req.Header {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "x-amz-") {
			headers[lower] = strings.TrimSpace(req.Header.Get(k))
		}
	}

	headerNames := make([]string, 0, len(headers))
	for k := range headers {
		headerNames = append(headerNames, k)
	}
	sort.Strings(headerNames)

	var canonicalHeaders strings.Builder
	for _, k := range headerNames {
		fmt.Fprintf(&canonicalHeaders, "%s:%s\n", k, headers[k])
	}

	return strings.Join([]string{
		req.Method,
		uri,
		canonicalQuery,
		canonicalHeaders.String(),
		strings.Join(headerNames, ";"),
		payloadHash,
	}, "\n")
}

// SignedHeaders returns the semicolon-joined, sorted list of header
// names included in the canonical request.
func (s *SigV4) SignedHeaders(req *http.Request) string {
	set := map[string]struct{}{
		"host": {}, "x-amz-content-sha256": {}, "x-amz-date": {}, "content-type": {},
	}
	for k := range req.Header {
		lower := strings.ToLower(k)
		if strings.HasPrefix(lower, "x-amz-") {
			set[lower] = struct{}{}
		}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ";")
}

// StringToSign implements the AWS4-HMAC-SHA256 string-to-sign.
func (s *SigV4) StringToSign(canonicalRequest string, t time.Time) string {
	hash := sha256.Sum256([]byte(canonicalRequest))
	return strings.Join([]string{
		"AWS4-HMAC-SHA256",
		t.Format("20060102T150405Z"),
		s.CredentialScope(t),
		hex.EncodeToString(hash[:]),
	}, "\n")
}

// CredentialScope returns "{date}/{region}/{service}/aws4_request".
func (s *SigV4) CredentialScope(t time.Time) string {
	return fmt.Sprintf("%s/%s/%s/aws4_request", t.Format("20060102"), s.Region, s.Service)
}

// SigningKey derives kSigning via the four-step HMAC chain in §4.2.
func (s *SigV4) SigningKey(t time.Time) []byte {
	kDate := hmacSHA256([]byte("AWS4"+s.SecretKey), t.Format("20060102"))
	kRegion := hmacSHA256(kDate, s.Region)
	kService := hmacSHA256(kRegion, s.Service)
	return hmacSHA256(kService, "aws4_request")
}

// Signature computes the final hex HMAC-SHA256 signature.
func (s *SigV4) Signature(stringToSign string, t time.Time) string {
	return hex.EncodeToString(hmacSHA256(s.SigningKey(t), stringToSign))
}

func hmacSHA256(key []byte, data string) []byte {
	h := hmac.New(sha256.New, key)
	h.Write([]byte(data))
	return h.Sum(nil)
}

// uriEncode implements SigV4's URI-encoding rule for canonical query
// keys/values: RFC3986 unreserved characters pass through, everything
// else (including space, which url.QueryEscape would turn into "+")
// is percent-encoded with uppercase hex digits.
func uriEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '-' || c == '_' || c == '.' || c == '~' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			b.WriteByte(c)
			continue
		}
		fmt.Fprintf(&b, "%%%02X", c)
	}
	return b.String()
}

// ExtractRegion implements the region-discovery fallback: the
// x-amz-bucket-region response header if present, else a 301 body's
// <Endpoint> host matched against s3[.-]([^.]+)\.amazonaws\.com,
// else "us-east-1".
func ExtractRegion(headerRegion string, endpointHost string) string {
	if headerRegion != "" {
		return headerRegion
	}
	if region := regionFromEndpoint(endpointHost); region != "" {
		return region
	}
	return "us-east-1"
}

var endpointRegionPattern = regexp.MustCompile(`s3[.-]([^.]+)\.amazonaws\.com`)

func regionFromEndpoint(host string) string {
	m := endpointRegionPattern.FindStringSubmatch(host)
	if m == nil || m[1] == "amazonaws" {
		return ""
	}
	return m[1]
}

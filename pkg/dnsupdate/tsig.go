package dnsupdate

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"

	"github.com/miekg/dns"
)

// tsigFudge is the permitted clock skew in seconds.
const tsigFudge = 300

// algorithms maps accepted spellings to miekg/dns algorithm names.
var algorithms = map[string]string{
	"hmac-md5": dns.HmacMD5, "md5": dns.HmacMD5,
	"hmac-sha1": dns.HmacSHA1, "sha1": dns.HmacSHA1,
	"hmac-sha224": dns.HmacSHA224, "sha224": dns.HmacSHA224,
	"hmac-sha256": dns.HmacSHA256, "sha256": dns.HmacSHA256,
	"hmac-sha384": dns.HmacSHA384, "sha384": dns.HmacSHA384,
	"hmac-sha512": dns.HmacSHA512, "sha512": dns.HmacSHA512,
}

// TSIG is an RFC 8945 transaction signature key.
type TSIG struct {
	Name      string // FQDN, lower case
	Secret    string // base64
	Algorithm string // miekg/dns form, e.g. dns.HmacSHA256
}

// NewTSIG validates the key material. An empty algorithm means hmac-sha256.
func NewTSIG(name, secret, algorithm string) (*TSIG, error) {
	if _, err := base64.StdEncoding.DecodeString(secret); err != nil {
		return nil, fmt.Errorf("tsig secret is not valid base64: %w", err)
	}
	alg, ok := lookupAlgorithm(algorithm)
	if !ok {
		return nil, fmt.Errorf("unsupported tsig algorithm: %s", algorithm)
	}
	return &TSIG{
		Name:      dns.Fqdn(strings.ToLower(name)),
		Secret:    secret,
		Algorithm: alg,
	}, nil
}

// TSIGFromConfig returns nil when config carries no key.
func TSIGFromConfig(config *Config) (*TSIG, error) {
	if !config.HasTSIG() {
		return nil, nil //nolint:nilnil // no key means unsigned updates
	}
	return NewTSIG(config.TSIGKeyName, config.TSIGSecret, config.TSIGAlgorithm)
}

// ApplyToClient lets the client verify signed responses.
func (t *TSIG) ApplyToClient(client *dns.Client) {
	if t != nil {
		client.TsigSecret = map[string]string{t.Name: t.Secret}
	}
}

// ApplyToMessage signs msg. It must be the last change made to msg.
func (t *TSIG) ApplyToMessage(msg *dns.Msg) {
	if t != nil {
		msg.SetTsig(t.Name, t.Algorithm, tsigFudge, 0)
	}
}

var (
	keyBlock   = regexp.MustCompile(`(?s)key\s+"?([^"\s{]+)"?\s*\{(.*?)\}\s*;`)
	keyAlg     = regexp.MustCompile(`algorithm\s+"?([A-Za-z0-9.-]+)"?\s*;`)
	keySecret  = regexp.MustCompile(`secret\s+"([^"]+)"\s*;`)
	keyComment = regexp.MustCompile(`(?m)^\s*(#|//).*$`)
)

// ParseKeyFile reads the first key clause of a BIND key file as written by
// tsig-keygen or ddns-confgen:
//
//	key "ddns-key.example.com" {
//		algorithm hmac-sha256;
//		secret "base64==";
//	};
func ParseKeyFile(data []byte) (*TSIG, error) {
	text := keyComment.ReplaceAllString(string(data), "")

	block := keyBlock.FindStringSubmatch(text)
	if block == nil {
		return nil, fmt.Errorf("no key clause found")
	}
	secret := keySecret.FindStringSubmatch(block[2])
	if secret == nil {
		return nil, fmt.Errorf("key %q has no secret", block[1])
	}
	var alg string
	if m := keyAlg.FindStringSubmatch(block[2]); m != nil {
		alg = m[1]
	}

	t, err := NewTSIG(block[1], secret[1], alg)
	if err != nil {
		return nil, fmt.Errorf("key %q: %w", block[1], err)
	}
	return t, nil
}

func lookupAlgorithm(alg string) (string, bool) {
	alg = strings.ToLower(strings.TrimSpace(alg))
	if alg == "" {
		return DefaultTSIGAlgorithm, true
	}
	if !strings.HasSuffix(alg, ".") {
		if v, ok := algorithms[alg]; ok {
			return v, true
		}
		alg += "."
	}
	for _, v := range algorithms {
		if v == alg {
			return v, true
		}
	}
	return "", false
}

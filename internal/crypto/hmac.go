package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"time"
)

// APICredentials authenticate HMAC-signed requests: L2 credentials for the
// CLOB, builder credentials for the relayer.
type APICredentials struct {
	Key        string
	Secret     string
	Passphrase string
}

// Empty reports whether no credentials are configured.
func (c APICredentials) Empty() bool {
	return c.Key == "" && c.Secret == "" && c.Passphrase == ""
}

// L2Headers returns the CLOB L2 headers for a request. The CLOB secret is
// base64 (URL-safe) encoded and is decoded before use.
func (c APICredentials) L2Headers(address, method, path, body string) map[string]string {
	return c.L2HeadersAt(address, method, path, body, time.Now().Unix())
}

// L2HeadersAt is L2Headers with an explicit unix timestamp.
func (c APICredentials) L2HeadersAt(address, method, path, body string, unixTS int64) map[string]string {
	ts := strconv.FormatInt(unixTS, 10)
	return map[string]string{
		"POLY_ADDRESS":    address,
		"POLY_API_KEY":    c.Key,
		"POLY_TIMESTAMP":  ts,
		"POLY_PASSPHRASE": c.Passphrase,
		"POLY_SIGNATURE":  signRequest(decodeSecret(c.Secret), ts, method, path, body, base64.URLEncoding),
	}
}

// BuilderHeaders returns the relayer headers for a request.
func (c APICredentials) BuilderHeaders(method, path, body string) map[string]string {
	return c.BuilderHeadersAt(method, path, body, time.Now().UnixMilli())
}

// BuilderHeadersAt is BuilderHeaders with an explicit timestamp.
func (c APICredentials) BuilderHeadersAt(method, path, body string, ts int64) map[string]string {
	tss := strconv.FormatInt(ts, 10)
	return map[string]string{
		"POLY_BUILDER_API_KEY":    c.Key,
		"POLY_BUILDER_TIMESTAMP":  tss,
		"POLY_BUILDER_PASSPHRASE": c.Passphrase,
		"POLY_BUILDER_SIGNATURE":  signRequest(decodeSecret(c.Secret), tss, method, path, body, base64.URLEncoding),
	}
}

// String returns a redacted representation suitable for logging.
func (c APICredentials) String() string {
	mask := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("APICredentials{key=%s, secret=%s}", mask(c.Key), mask(c.Secret))
}

// signRequest computes base64(HMAC-SHA256(secret, ts+method+path+body)).
func signRequest(secret []byte, ts, method, path, body string, enc *base64.Encoding) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + method + path + body))
	return enc.EncodeToString(mac.Sum(nil))
}

// decodeSecret accepts URL-safe or standard base64 and falls back to the raw
// bytes so a malformed secret yields a rejected signature instead of a panic.
func decodeSecret(secret string) []byte {
	for _, enc := range []*base64.Encoding{base64.URLEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(secret); err == nil {
			return b
		}
	}
	return []byte(secret)
}

// Package rfc2136 implements the provider interface for RFC 2136 Dynamic DNS
// servers such as BIND, Knot DNS, PowerDNS and Windows DNS.
//
// Each upsert is a single DNS UPDATE message that deletes the address RRset
// for the name and inserts the new record, optionally TSIG signed.
//
// # Zones
//
// A credential's zone_id is used as the DNS zone name. When it is empty the
// configured ZONE applies.
//
// # Configuration
//
//	DDNSWEAVER_PROVIDER_TYPE=rfc2136
//	DDNSWEAVER_PROVIDER_SERVER=ns1.example.com:53
//	DDNSWEAVER_PROVIDER_ZONE=example.com.
//	DDNSWEAVER_PROVIDER_TSIG_KEY_NAME=ddnsweaver.
//	DDNSWEAVER_PROVIDER_TSIG_SECRET_FILE=/run/secrets/tsig
//	DDNSWEAVER_PROVIDER_TSIG_ALGORITHM=hmac-sha256
//	DDNSWEAVER_PROVIDER_TIMEOUT=10s
//	DDNSWEAVER_PROVIDER_USE_TCP=false
package rfc2136

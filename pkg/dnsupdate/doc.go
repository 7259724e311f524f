// Package dnsupdate provides an RFC 2136 Dynamic DNS Update client used by
// the rfc2136 provider.
//
// The client replaces the address RRset of a single name in one UPDATE
// message: the existing A or AAAA RRset is removed and the new record is
// inserted, so the server applies both or neither.
//
// TSIG keys (RFC 8945) may use HMAC-MD5 or HMAC-SHA1/224/256/384/512 and can
// be given inline, as TSIG_SECRET_FILE, or as a BIND key file (TSIG_KEY_FILE).
// Updates go over UDP unless USE_TCP is set; a truncated UDP reply is retried
// over TCP.
//
// # Usage
//
//	config, err := dnsupdate.LoadConfigFromMap(map[string]string{
//	    "SERVER":        "ns1.example.com:53",
//	    "ZONE":          "example.com.",
//	    "TSIG_KEY_NAME": "ddnsweaver.",
//	    "TSIG_SECRET":   secret,
//	})
//	if err != nil {
//	    return err
//	}
//
//	client, err := dnsupdate.NewClient(config)
//	if err != nil {
//	    return err
//	}
//
//	err = client.Upsert(ctx, "", dnsupdate.NewARecord("home.example.com", "203.0.113.7", 60))
//
// # TSIG keys
//
// Generate a key with BIND's tsig-keygen and point TSIG_KEY_FILE at it:
//
//	tsig-keygen -a hmac-sha256 ddnsweaver > /etc/ddnsweaver/ddns.key
package dnsupdate

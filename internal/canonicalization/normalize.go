// Package canonicalization builds and normalizes the qualified names of entities the
// service derives on behalf of engines (endpoints, connections, folders, schema types).
package canonicalization

import "strings"

const schemeSeparator = "://"

var schemeAliases = map[string]string{
	"postgres": "postgresql",
	"s3a":      "s3",
	"s3n":      "s3",
}

var defaultPorts = map[string]string{
	"postgresql": ":5432",
	"mysql":      ":3306",
	"mongodb":    ":27017",
	"redis":      ":6379",
	"kafka":      ":9092",
	"https":      ":443",
	"http":       ":80",
}

// NormalizeNetworkAddress returns a canonical form of an endpoint address so that
// engines reporting the same server with different drivers share one Endpoint.
//
// Rules:
//  1. A bare address (no "scheme://") is prefixed with the protocol when one is given.
//  2. The scheme is lowercased and aliases are folded (postgres → postgresql, s3a/s3n → s3).
//  3. The scheme's default port is dropped (postgresql://db:5432 → postgresql://db).
//
// The remainder is not URL-decoded or re-encoded; masked credentials and special
// characters survive unchanged.
//
// Examples:
//   - NormalizeNetworkAddress("", "postgres://prod-db:5432/sales") → "postgresql://prod-db/sales"
//   - NormalizeNetworkAddress("kafka", "broker-1:9092") → "kafka://broker-1"
//   - NormalizeNetworkAddress("", "warehouse") → "warehouse"
func NormalizeNetworkAddress(protocol, address string) string {
	address = strings.TrimSpace(address)
	protocol = strings.TrimSpace(protocol)

	if address == "" {
		return ""
	}

	if !strings.Contains(address, schemeSeparator) {
		if protocol == "" {
			return address
		}

		address = protocol + schemeSeparator + address
	}

	scheme, remainder, _ := strings.Cut(address, schemeSeparator)
	scheme = normalizeScheme(scheme)

	return scheme + schemeSeparator + removeDefaultPort(scheme, remainder)
}

func normalizeScheme(scheme string) string {
	scheme = strings.ToLower(scheme)
	if alias, ok := schemeAliases[scheme]; ok {
		return alias
	}

	return scheme
}

// removeDefaultPort strips the default port of scheme from the host part of remainder.
//   - "db:5432/mydb" → "db/mydb"
//   - "db:5433/mydb" → "db:5433/mydb"
//   - "user@db:5432" → "user@db"
func removeDefaultPort(scheme, remainder string) string {
	port, ok := defaultPorts[scheme]
	if !ok {
		return remainder
	}

	for _, terminator := range []string{"/", "?"} {
		if strings.Contains(remainder, port+terminator) {
			return strings.Replace(remainder, port+terminator, terminator, 1)
		}
	}

	return strings.TrimSuffix(remainder, port)
}

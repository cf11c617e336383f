package canonicalization

import (
	"strings"
)

// Separator joins the parts of derived qualified names.
const Separator = "::"

// QualifiedName joins the non-empty parts with Separator.
//
//	QualifiedName("sales.orders", "Connection") → "sales.orders::Connection"
func QualifiedName(parts ...string) string {
	kept := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			kept = append(kept, trimmed)
		}
	}

	return strings.Join(kept, Separator)
}

// EndpointQualifiedName names the endpoint of a network address.
// Returns "" when there is no address.
func EndpointQualifiedName(protocol, networkAddress string) string {
	normalized := NormalizeNetworkAddress(protocol, networkAddress)
	if normalized == "" {
		return ""
	}

	return QualifiedName("Endpoint", normalized)
}

// ConnectionQualifiedName names the connection of an asset.
func ConnectionQualifiedName(assetQualifiedName string) string {
	return QualifiedName(assetQualifiedName, "Connection")
}

// SchemaTypeQualifiedName names the schema type holding the columns of an asset
// reported without an explicit schema type.
func SchemaTypeQualifiedName(assetQualifiedName string) string {
	return QualifiedName(assetQualifiedName, "SchemaType")
}

// FolderQualifiedName names a folder. Folders under the same endpoint share a scope.
func FolderQualifiedName(endpointQualifiedName, folderPath string) string {
	return QualifiedName(endpointQualifiedName, "FileFolder", folderPath)
}

// FolderPaths returns the ancestor folder paths of pathName, outermost first.
// Backslashes are treated as separators; a "scheme://" or leading "/" prefix is kept.
//
//	FolderPaths("/data/raw/orders.csv")      → ["/data", "/data/raw"]
//	FolderPaths("s3://bucket/in/orders.csv") → ["s3://bucket", "s3://bucket/in"]
//	FolderPaths("orders.csv")                → nil
func FolderPaths(pathName string) []string {
	path := strings.ReplaceAll(strings.TrimSpace(pathName), `\`, "/")

	prefix := ""
	if scheme, rest, found := strings.Cut(path, schemeSeparator); found {
		prefix = scheme + schemeSeparator
		path = rest
	} else if strings.HasPrefix(path, "/") {
		prefix = "/"
	}

	segments := make([]string, 0, strings.Count(path, "/")+1)

	for _, segment := range strings.Split(path, "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	if len(segments) < 2 {
		return nil
	}

	folders := make([]string, 0, len(segments)-1)
	current := prefix

	for i, segment := range segments[:len(segments)-1] {
		if i > 0 {
			current += "/"
		}

		current += segment
		folders = append(folders, current)
	}

	return folders
}

// BaseName returns the last segment of a path.
func BaseName(pathName string) string {
	path := strings.TrimRight(strings.ReplaceAll(pathName, `\`, "/"), "/")
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}

	return path
}

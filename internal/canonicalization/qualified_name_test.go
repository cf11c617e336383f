package canonicalization

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestQualifiedName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "a::b::c", QualifiedName("a", " b ", "", "c"))
	assert.Empty(t, QualifiedName("", " "))
	assert.Equal(t, "sales.orders::Connection", ConnectionQualifiedName("sales.orders"))
	assert.Equal(t, "file.csv::SchemaType", SchemaTypeQualifiedName("file.csv"))
	assert.Equal(t, "Endpoint::postgresql://db", EndpointQualifiedName("", "postgres://db:5432"))
	assert.Empty(t, EndpointQualifiedName("jdbc", ""))
	assert.Equal(t, "FileFolder::/data", FolderQualifiedName("", "/data"))
	assert.Equal(t, "Endpoint::nfs://srv::FileFolder::/data", FolderQualifiedName("Endpoint::nfs://srv", "/data"))
}

func TestFolderPaths(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		path string
		want []string
	}{
		{name: "absolute", path: "/data/raw/orders.csv", want: []string{"/data", "/data/raw"}},
		{name: "relative", path: "raw/orders.csv", want: []string{"raw"}},
		{name: "scheme", path: "s3://bucket/in/orders.csv", want: []string{"s3://bucket", "s3://bucket/in"}},
		{name: "windows", path: `C:\data\orders.csv`, want: []string{"C:", "C:/data"}},
		{name: "repeated separators", path: "//data//orders.csv", want: []string{"/data"}},
		{name: "file only", path: "orders.csv", want: nil},
		{name: "root file", path: "/orders.csv", want: nil},
		{name: "empty", path: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FolderPaths(tt.path))
		})
	}
}

func TestBaseName(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	assert.Equal(t, "orders.csv", BaseName("/data/raw/orders.csv"))
	assert.Equal(t, "raw", BaseName(`/data/raw\`))
	assert.Equal(t, "orders.csv", BaseName("orders.csv"))
}

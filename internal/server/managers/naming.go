package managers

import (
	"net/url"
	"strings"
)

// Naming maps entity ids to URIs under a base URI. Each id is path
// escaped before it is joined.
type Naming struct {
	Base string
}

// NewNaming returns a Naming for base, adding a trailing slash if needed.
func NewNaming(base string) Naming {
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return Naming{Base: base}
}

func (n Naming) join(kind string, ids ...string) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = url.PathEscape(id)
	}
	return n.Base + kind + "/" + strings.Join(parts, "/")
}

func (n Naming) CollectionURI(c string) string {
	return n.join("collections", c)
}

func (n Naming) DataSourceURI(c, ds string) string {
	return n.join("datasources", c, ds)
}

func (n Naming) DataSetURI(c, ds, set string) string {
	return n.join("datasets", c, ds, set)
}

// ObjectBaseURI is the namespace of the objects of a data source.
func (n Naming) ObjectBaseURI(c, ds string) string {
	return n.join("objects", c, ds) + "/"
}

func (n Naming) ObjectURI(c, ds, obj string) string {
	return n.ObjectBaseURI(c, ds) + url.PathEscape(obj)
}

// DataSetName is the flat name used for upload files.
func (n Naming) DataSetName(c, ds, set string) string {
	return c + "_" + ds + "_" + set
}

// MetadataGraph is the default metadata graph name.
func (n Naming) MetadataGraph() string {
	return n.Base + "metadata"
}

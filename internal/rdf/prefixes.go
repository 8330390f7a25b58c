package rdf

import (
	"sort"
	"strings"
	"unicode"
)

// Prefixes maps a prefix label to its namespace IRI.
type Prefixes map[string]string

// StandardPrefixes returns the prefixes every response declares when used.
func StandardPrefixes() Prefixes {
	return Prefixes{
		"rdf":   RDFNamespace,
		"rdfs":  RDFSNamespace,
		"owl":   OWLNamespace,
		"xsd":   XSDNamespace,
		"lbdho": LBDHONamespace,
		"ifc":   IFCNamespace,
	}
}

// Clone returns a copy that can be modified independently.
func (p Prefixes) Clone() Prefixes {
	out := make(Prefixes, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// With returns a copy of p extended by other. Entries of other win.
func (p Prefixes) With(other Prefixes) Prefixes {
	out := p.Clone()
	for k, v := range other {
		out[k] = v
	}
	return out
}

// Labels returns the prefix labels in sorted order.
func (p Prefixes) Labels() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Compact splits iri into a declared prefix and a local name using the
// longest matching namespace. ok is false when no prefix applies or the
// remainder is not a valid local name.
func (p Prefixes) Compact(iri string) (prefix, local string, ok bool) {
	best := -1
	for label, ns := range p {
		if ns == "" || !strings.HasPrefix(iri, ns) {
			continue
		}
		rest := iri[len(ns):]
		if !isLocalName(rest) {
			continue
		}
		if len(ns) > best || (len(ns) == best && label < prefix) {
			best = len(ns)
			prefix, local = label, rest
		}
	}
	return prefix, local, best >= 0
}

// Expand resolves a prefixed name such as "xsd:int". A value that is not
// a prefixed name with a declared prefix is returned unchanged with ok
// false.
func (p Prefixes) Expand(name string) (string, bool) {
	i := strings.IndexByte(name, ':')
	if i < 0 {
		return name, false
	}
	ns, ok := p[name[:i]]
	if !ok {
		return name, false
	}
	if strings.HasPrefix(name[i+1:], "//") {
		return name, false
	}
	return ns + name[i+1:], true
}

// Used returns the subset of p needed to compact the IRIs of triples.
func (p Prefixes) Used(triples []Triple) Prefixes {
	used := Prefixes{}
	note := func(t Term) {
		var iri string
		switch v := t.(type) {
		case IRI:
			iri = v.Value
		case Literal:
			if v.Lang != "" || v.Datatype.Value == "" {
				return
			}
			iri = v.Datatype.Value
		default:
			return
		}
		if label, _, ok := p.Compact(iri); ok {
			used[label] = p[label]
		}
	}
	for _, t := range triples {
		note(t.S)
		note(t.P)
		note(t.O)
	}
	return used
}

// isLocalName accepts the conservative intersection of Turtle PN_LOCAL and
// XML NCName characters, so a compacted name survives in both syntaxes.
func isLocalName(s string) bool {
	if s == "" {
		return true
	}
	for i, r := range s {
		switch {
		case r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r):
		case (r == '-' || r == '.') && i > 0:
		default:
			return false
		}
	}
	return s[len(s)-1] != '.'
}

// isNCName reports whether s can be used as an XML element local name.
func isNCName(s string) bool {
	if s == "" || !isLocalName(s) {
		return false
	}
	r := []rune(s)[0]
	return r == '_' || unicode.IsLetter(r)
}

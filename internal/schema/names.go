package schema

import (
	"slices"
	"strings"
	"unicode"
)

// scalarNames maps proto scalar keywords to schema scalar type names. The
// 64-bit integer kinds map to BigInt, a string-carried arbitrary-precision
// integer, since their range exceeds GraphQL's Int. Scalars carry no
// input/output distinction.
var scalarNames = map[string]string{
	"int32":    "Int",
	"uint32":   "Int",
	"sint32":   "Int",
	"fixed32":  "Int",
	"sfixed32": "Int",
	"int64":    "BigInt",
	"uint64":   "BigInt",
	"sint64":   "BigInt",
	"fixed64":  "BigInt",
	"sfixed64": "BigInt",
	"float":    "Float",
	"double":   "Float",
	"string":   "String",
	"bytes":    "String",
	"bool":     "Boolean",
}

// Namer derives schema type and field identifiers from protocol names. Name
// qualification is what keeps siblings from different namespaces from
// colliding in the flat schema namespace.
type Namer struct {
	rootPackage    string
	rootSegments   []string
	primaryService string
}

// NewNamer creates a namer for the given root package. Methods of the
// primary service produce unprefixed root field names.
func NewNamer(packageName, primaryService string) *Namer {
	return &Namer{
		rootPackage:    packageName,
		rootSegments:   splitDots(packageName),
		primaryService: primaryService,
	}
}

// BaseTypeName maps a type reference to its schema base name. Scalar
// references return the fixed mapped scalar name with scalar=true.
// Non-scalar references are stripped of the root package prefix; remaining
// namespace segments collapse into a camel-cased prefix joined to the local
// name with an underscore.
func (n *Namer) BaseTypeName(ref string) (name string, scalar bool) {
	if s, ok := scalarNames[ref]; ok {
		return s, true
	}

	rel := strings.TrimPrefix(ref, ".")
	if n.rootPackage != "" && strings.HasPrefix(rel, n.rootPackage+".") {
		rel = rel[len(n.rootPackage)+1:]
	}

	segments := splitDots(rel)
	local := segments[len(segments)-1]
	ns := segments[:len(segments)-1]
	if len(ns) == 0 {
		return upperFirst(local), false
	}
	return upperFirst(camelJoin(ns)) + "_" + upperFirst(local), false
}

// QualifiedTypeName produces the schema identifier for a declaration found
// at the given namespace path. It agrees with BaseTypeName applied to the
// declaration's fully-qualified reference, which is what makes lazy
// type-reference lookups line up with registration.
func (n *Namer) QualifiedTypeName(nsPath []string, local string) string {
	fq := local
	if len(nsPath) > 0 {
		fq = strings.Join(nsPath, ".") + "." + local
	}
	name, _ := n.BaseTypeName(fq)
	return name
}

// FieldName produces the root field name for a method (or the liveness-check
// field) of a service. The service prefix applies when the service is not
// the configured primary one; the namespace prefix applies when the path is
// not the root package. The two qualification steps compose independently.
func (n *Namer) FieldName(nsPath []string, serviceName, methodName string) string {
	name := lowerFirst(methodName)
	if serviceName != "" && serviceName != n.primaryService {
		name = lowerFirst(serviceName) + "_" + name
	}
	if prefix := n.namespacePrefix(nsPath); prefix != "" {
		name = prefix + "_" + name
	}
	return name
}

// namespacePrefix collapses a non-root namespace path into a single
// camel-cased token. Paths nested under the root package keep the root's
// last segment so the prefix stays readable (com.acme.v2 under root
// com.acme becomes "acmeV2").
func (n *Namer) namespacePrefix(nsPath []string) string {
	if slices.Equal(nsPath, n.rootSegments) {
		return ""
	}
	segments := nsPath
	if len(n.rootSegments) > 0 && len(nsPath) > len(n.rootSegments) &&
		slices.Equal(nsPath[:len(n.rootSegments)], n.rootSegments) {
		segments = nsPath[len(n.rootSegments)-1:]
	}
	if len(segments) == 0 {
		return ""
	}
	return camelJoin(segments)
}

func splitDots(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ".")
}

// camelJoin concatenates segments in lower-camel style: the first segment
// keeps a lowered first rune, subsequent segments get an upper one.
func camelJoin(segments []string) string {
	var b strings.Builder
	for i, seg := range segments {
		if i == 0 {
			b.WriteString(lowerFirst(seg))
		} else {
			b.WriteString(upperFirst(seg))
		}
	}
	return b.String()
}

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r)
}

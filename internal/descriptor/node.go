package descriptor

import (
	"strings"

	"github.com/jhump/protoreflect/desc"
)

// Kind identifies the structural shape of a Node.
type Kind int

const (
	KindUnknown Kind = iota
	KindEnum
	KindMessage
	KindService
	KindNamespace
)

// String returns a human-readable representation of the node kind.
func (k Kind) String() string {
	switch k {
	case KindEnum:
		return "Enum"
	case KindMessage:
		return "Message"
	case KindService:
		return "Service"
	case KindNamespace:
		return "Namespace"
	default:
		return "Unknown"
	}
}

// Node is one node of the loaded protocol-description tree. Exactly one of
// the four shape fields is non-nil; the shape is decided once at ingestion
// rather than re-probed at every traversal site.
type Node struct {
	Enum      *EnumNode
	Message   *MessageNode
	Service   *ServiceNode
	Namespace *NamespaceNode
}

// Kind classifies the node by inspecting which shape it carries. Shapes are
// checked in a fixed order (enum values, fields, methods, children) so
// classification stays deterministic even if a malformed ingestion ever
// produced a dual-shape node.
func (n *Node) Kind() Kind {
	switch {
	case n.Enum != nil:
		return KindEnum
	case n.Message != nil:
		return KindMessage
	case n.Service != nil:
		return KindService
	case n.Namespace != nil:
		return KindNamespace
	default:
		return KindUnknown
	}
}

// EnumValue is a single symbol of an enum declaration.
type EnumValue struct {
	Name   string
	Number int32
}

// EnumNode is an enum declaration: an ordered mapping of symbol name to
// integer value.
type EnumNode struct {
	Name   string
	Values []EnumValue
}

// Field is a single field of a message declaration. TypeName is either a
// scalar keyword ("int32", "string", ...) or the fully-qualified name of a
// message or enum type.
type Field struct {
	Name     string
	TypeName string
	Repeated bool
}

// MessageNode is a message declaration: an ordered mapping of field name to
// type reference and cardinality.
type MessageNode struct {
	Name   string
	Fields []Field
}

// Method is a single RPC method of a service declaration. Desc retains the
// protoreflect descriptor so that a dynamic stub can invoke the method
// without regenerated code.
type Method struct {
	Name         string
	InputType    string
	OutputType   string
	ClientStream bool
	ServerStream bool
	Desc         *desc.MethodDescriptor
}

// ServiceNode is a service declaration: a mapping of method name to request
// and response type references plus the streaming flag.
type ServiceNode struct {
	Name     string
	FullName string
	Methods  []Method
}

// Child is one named child of a namespace node. Ordering follows the
// declaration order of the source files.
type Child struct {
	Name string
	Node *Node
}

// NamespaceNode groups declarations under one package segment.
type NamespaceNode struct {
	Children []Child
}

// child returns the child with the given name, or nil.
func (ns *NamespaceNode) child(name string) *Node {
	for _, c := range ns.Children {
		if c.Name == name {
			return c.Node
		}
	}
	return nil
}

// add appends a child, overwriting nothing: duplicate names are a loader bug
// and the first registration wins.
func (ns *NamespaceNode) add(name string, node *Node) {
	if ns.child(name) != nil {
		return
	}
	ns.Children = append(ns.Children, Child{Name: name, Node: node})
}

// ensure walks (and creates as needed) nested namespace nodes for the given
// path, returning the namespace at its end.
func (ns *NamespaceNode) ensure(path []string) *NamespaceNode {
	cur := ns
	for _, seg := range path {
		next := cur.child(seg)
		if next == nil {
			next = &Node{Namespace: &NamespaceNode{}}
			cur.Children = append(cur.Children, Child{Name: seg, Node: next})
		}
		if next.Namespace == nil {
			// A declaration already claimed this segment name; nest beside it
			// under the same name so the tree stays single-shaped per node.
			next = &Node{Namespace: &NamespaceNode{}}
			cur.Children = append(cur.Children, Child{Name: seg, Node: next})
		}
		cur = next.Namespace
	}
	return cur
}

// FindService returns the service node with the given fully-qualified name,
// searching the whole tree.
func (n *Node) FindService(fullName string) *ServiceNode {
	if n.Service != nil && n.Service.FullName == fullName {
		return n.Service
	}
	if n.Namespace != nil {
		for _, c := range n.Namespace.Children {
			if svc := c.Node.FindService(fullName); svc != nil {
				return svc
			}
		}
	}
	return nil
}

// Services returns every service node in the tree, in traversal order.
func (n *Node) Services() []*ServiceNode {
	var out []*ServiceNode
	if n.Service != nil {
		out = append(out, n.Service)
	}
	if n.Namespace != nil {
		for _, c := range n.Namespace.Children {
			out = append(out, c.Node.Services()...)
		}
	}
	return out
}

// splitPackage splits a dotted package name into its segments. An empty
// package yields nil.
func splitPackage(pkg string) []string {
	if pkg == "" {
		return nil
	}
	return strings.Split(pkg, ".")
}

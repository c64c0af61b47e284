package descriptor

// Mirror is a JSON-serializable reflection of the protocol tree that keeps
// declaration comments. It follows the conventional nested-namespace JSON
// shape, so embedding hosts can inspect or re-serialize the loaded
// description without touching descriptor types.
type Mirror struct {
	Nested map[string]*MirrorNode `json:"nested,omitempty"`
}

// MirrorNode is one declaration or namespace in the mirror. Which of the
// maps is populated mirrors the shape of the corresponding tree node.
type MirrorNode struct {
	Comment string                   `json:"comment,omitempty"`
	Values  map[string]int32         `json:"values,omitempty"`
	Fields  map[string]*MirrorField  `json:"fields,omitempty"`
	Methods map[string]*MirrorMethod `json:"methods,omitempty"`
	Nested  map[string]*MirrorNode   `json:"nested,omitempty"`
}

// MirrorField mirrors a message field declaration.
type MirrorField struct {
	Type    string `json:"type"`
	Rule    string `json:"rule,omitempty"`
	Comment string `json:"comment,omitempty"`
}

// MirrorMethod mirrors an RPC method declaration.
type MirrorMethod struct {
	RequestType    string `json:"requestType"`
	ResponseType   string `json:"responseType"`
	ResponseStream bool   `json:"responseStream,omitempty"`
	Comment        string `json:"comment,omitempty"`
}

// NewMirror returns an empty mirror root.
func NewMirror() *Mirror {
	return &Mirror{Nested: make(map[string]*MirrorNode)}
}

// ensure walks (and creates as needed) nested mirror nodes for the given
// namespace path.
func (m *Mirror) ensure(path []string) *MirrorNode {
	node := &MirrorNode{Nested: m.Nested}
	for _, seg := range path {
		node = node.ensureNested(seg)
	}
	return node
}

// ensureNested returns the named nested node, creating it if absent.
func (n *MirrorNode) ensureNested(name string) *MirrorNode {
	if n.Nested == nil {
		n.Nested = make(map[string]*MirrorNode)
	}
	if existing, ok := n.Nested[name]; ok {
		return existing
	}
	child := &MirrorNode{}
	n.Nested[name] = child
	return child
}

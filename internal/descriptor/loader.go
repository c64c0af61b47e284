package descriptor

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/jhump/protoreflect/desc"
	"github.com/jhump/protoreflect/desc/protoparse"
	"google.golang.org/protobuf/types/descriptorpb"
)

// Options configure how a proto source file is located and parsed.
type Options struct {
	// IncludeDirs is an ordered list of directories used to resolve the file
	// itself and any relative imports it declares.
	IncludeDirs []string
}

// Loader parses proto source files into a protocol-description tree.
type Loader struct {
	logger *slog.Logger
}

// NewLoader creates a loader that reports resolution warnings through the
// given logger.
func NewLoader(logger *slog.Logger) *Loader {
	return &Loader{logger: logger}
}

// Load parses the proto file (plus transitive imports) and returns the
// protocol tree rooted at a namespace node, together with a JSON-serializable
// mirror of the tree that retains declaration comments.
func (l *Loader) Load(file string, opts Options) (*Node, *Mirror, error) {
	importPaths, name := l.resolveFile(file, opts.IncludeDirs)

	parser := protoparse.Parser{
		ImportPaths:           importPaths,
		IncludeSourceCodeInfo: true,
	}

	fds, err := parser.ParseFiles(name)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse proto file %s: %w", file, err)
	}

	l.logger.Debug("parsed proto source",
		slog.String("file", name),
		slog.Int("file_count", len(fds)),
	)

	return buildTree(collectFiles(fds))
}

// resolveFile locates the proto file against the include directories.
// Absolute paths short-circuit. Each candidate directory is tried in order
// and silently skipped when the file is not present there. If no candidate
// matches, the parser's own resolution is used as a fallback and a warning
// is emitted; the eventual failure, if any, surfaces from ParseFiles.
func (l *Loader) resolveFile(file string, dirs []string) (importPaths []string, name string) {
	if filepath.IsAbs(file) {
		return append([]string{filepath.Dir(file)}, dirs...), filepath.Base(file)
	}

	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, file)); err == nil {
			return dirs, file
		}
	}

	// Not found under any include directory; try it relative to the working
	// directory before handing resolution back to the parser.
	if _, err := os.Stat(file); err == nil {
		return append(dirs, "."), file
	}

	l.logger.Warn("proto file not found under include directories",
		slog.String("file", file),
		slog.Any("include_dirs", dirs),
	)
	return dirs, file
}

// collectFiles expands the parsed files into the full transitive closure of
// their imports, deduplicated by path.
func collectFiles(fds []*desc.FileDescriptor) []*desc.FileDescriptor {
	seen := make(map[string]bool)
	var out []*desc.FileDescriptor

	var walk func(fd *desc.FileDescriptor)
	walk = func(fd *desc.FileDescriptor) {
		if seen[fd.GetName()] {
			return
		}
		seen[fd.GetName()] = true
		out = append(out, fd)
		for _, dep := range fd.GetDependencies() {
			walk(dep)
		}
	}
	for _, fd := range fds {
		walk(fd)
	}
	return out
}

// buildTree ingests file descriptors into the tagged protocol tree and the
// comment-retaining mirror. Each node's shape is decided here, once.
func buildTree(fds []*desc.FileDescriptor) (*Node, *Mirror, error) {
	root := &Node{Namespace: &NamespaceNode{}}
	mirror := NewMirror()

	for _, fd := range fds {
		pkg := splitPackage(fd.GetPackage())
		ns := root.Namespace.ensure(pkg)
		mns := mirror.ensure(pkg)

		for _, ed := range fd.GetEnumTypes() {
			addEnum(ns, mns, ed, "")
		}
		for _, md := range fd.GetMessageTypes() {
			addMessage(ns, mns, md, "")
		}
		for _, sd := range fd.GetServices() {
			addService(ns, mns, sd)
		}
	}

	return root, mirror, nil
}

// addMessage ingests a message declaration plus its nested types. Nested
// declarations keep the enclosing message names as a dotted prefix in their
// local name, which keeps every tree node single-shaped while preserving the
// fully-qualified identity the name qualifier works from.
func addMessage(ns *NamespaceNode, mns *MirrorNode, md *desc.MessageDescriptor, prefix string) {
	if md.IsMapEntry() {
		return
	}

	name := prefix + md.GetName()
	node := &MessageNode{Name: name}
	mnode := mns.ensureNested(name)
	mnode.Comment = leadingComment(md)
	mnode.Fields = make(map[string]*MirrorField)

	for _, fld := range md.GetFields() {
		if fld.IsMap() {
			// Proto map fields have no schema counterpart here.
			continue
		}
		typeName := fieldTypeName(fld)
		node.Fields = append(node.Fields, Field{
			Name:     fld.GetName(),
			TypeName: typeName,
			Repeated: fld.IsRepeated(),
		})
		mf := &MirrorField{Type: typeName, Comment: leadingComment(fld)}
		if fld.IsRepeated() {
			mf.Rule = "repeated"
		}
		mnode.Fields[fld.GetName()] = mf
	}

	ns.add(name, &Node{Message: node})

	for _, nested := range md.GetNestedEnumTypes() {
		addEnum(ns, mns, nested, name+".")
	}
	for _, nested := range md.GetNestedMessageTypes() {
		addMessage(ns, mns, nested, name+".")
	}
}

func addEnum(ns *NamespaceNode, mns *MirrorNode, ed *desc.EnumDescriptor, prefix string) {
	name := prefix + ed.GetName()
	node := &EnumNode{Name: name}
	mnode := mns.ensureNested(name)
	mnode.Comment = leadingComment(ed)
	mnode.Values = make(map[string]int32)

	for _, v := range ed.GetValues() {
		node.Values = append(node.Values, EnumValue{Name: v.GetName(), Number: v.GetNumber()})
		mnode.Values[v.GetName()] = v.GetNumber()
	}

	ns.add(name, &Node{Enum: node})
}

func addService(ns *NamespaceNode, mns *MirrorNode, sd *desc.ServiceDescriptor) {
	node := &ServiceNode{
		Name:     sd.GetName(),
		FullName: sd.GetFullyQualifiedName(),
	}
	mnode := mns.ensureNested(sd.GetName())
	mnode.Comment = leadingComment(sd)
	mnode.Methods = make(map[string]*MirrorMethod)

	for _, md := range sd.GetMethods() {
		node.Methods = append(node.Methods, Method{
			Name:         md.GetName(),
			InputType:    md.GetInputType().GetFullyQualifiedName(),
			OutputType:   md.GetOutputType().GetFullyQualifiedName(),
			ClientStream: md.IsClientStreaming(),
			ServerStream: md.IsServerStreaming(),
			Desc:         md,
		})
		mnode.Methods[md.GetName()] = &MirrorMethod{
			RequestType:    md.GetInputType().GetFullyQualifiedName(),
			ResponseType:   md.GetOutputType().GetFullyQualifiedName(),
			ResponseStream: md.IsServerStreaming(),
			Comment:        leadingComment(md),
		}
	}

	ns.add(sd.GetName(), &Node{Service: node})
}

// fieldTypeName returns the type reference carried by a message field: the
// scalar keyword for primitive fields, otherwise the fully-qualified message
// or enum name.
func fieldTypeName(fld *desc.FieldDescriptor) string {
	switch fld.GetType() {
	case descriptorpb.FieldDescriptorProto_TYPE_MESSAGE,
		descriptorpb.FieldDescriptorProto_TYPE_GROUP:
		return fld.GetMessageType().GetFullyQualifiedName()
	case descriptorpb.FieldDescriptorProto_TYPE_ENUM:
		return fld.GetEnumType().GetFullyQualifiedName()
	default:
		return scalarKeyword(fld.GetType())
	}
}

func scalarKeyword(t descriptorpb.FieldDescriptorProto_Type) string {
	switch t {
	case descriptorpb.FieldDescriptorProto_TYPE_DOUBLE:
		return "double"
	case descriptorpb.FieldDescriptorProto_TYPE_FLOAT:
		return "float"
	case descriptorpb.FieldDescriptorProto_TYPE_INT64:
		return "int64"
	case descriptorpb.FieldDescriptorProto_TYPE_UINT64:
		return "uint64"
	case descriptorpb.FieldDescriptorProto_TYPE_INT32:
		return "int32"
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED64:
		return "fixed64"
	case descriptorpb.FieldDescriptorProto_TYPE_FIXED32:
		return "fixed32"
	case descriptorpb.FieldDescriptorProto_TYPE_BOOL:
		return "bool"
	case descriptorpb.FieldDescriptorProto_TYPE_STRING:
		return "string"
	case descriptorpb.FieldDescriptorProto_TYPE_BYTES:
		return "bytes"
	case descriptorpb.FieldDescriptorProto_TYPE_UINT32:
		return "uint32"
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED32:
		return "sfixed32"
	case descriptorpb.FieldDescriptorProto_TYPE_SFIXED64:
		return "sfixed64"
	case descriptorpb.FieldDescriptorProto_TYPE_SINT32:
		return "sint32"
	case descriptorpb.FieldDescriptorProto_TYPE_SINT64:
		return "sint64"
	default:
		return strings.ToLower(strings.TrimPrefix(t.String(), "TYPE_"))
	}
}

// leadingComment extracts the trimmed leading comment attached to a
// declaration, when source info was retained by the parser.
func leadingComment(d desc.Descriptor) string {
	si := d.GetSourceInfo()
	if si == nil {
		return ""
	}
	return strings.TrimSpace(si.GetLeadingComments())
}

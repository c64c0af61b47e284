package descriptor_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kavor/meshql/internal/descriptor"
	"github.com/kavor/meshql/internal/grpctest"
	"github.com/kavor/meshql/internal/logging"
)

func findChild(t *testing.T, node *descriptor.Node, name string) *descriptor.Node {
	t.Helper()
	require.NotNil(t, node.Namespace, "expected a namespace node")
	for _, c := range node.Namespace.Children {
		if c.Name == name {
			return c.Node
		}
	}
	t.Fatalf("no child named %q", name)
	return nil
}

func loadTestdata(t *testing.T) (*descriptor.Node, *descriptor.Mirror) {
	t.Helper()
	loader := descriptor.NewLoader(logging.NewNopLogger())
	tree, mirror, err := loader.Load("hello.proto", descriptor.Options{
		IncludeDirs: []string{grpctest.ProtoDir()},
	})
	require.NoError(t, err)
	return tree, mirror
}

func TestLoad_TreeShape(t *testing.T) {
	tree, _ := loadTestdata(t)

	require.Equal(t, descriptor.KindNamespace, tree.Kind())
	com := findChild(t, tree, "com")
	acme := findChild(t, com, "acme")
	require.Equal(t, descriptor.KindNamespace, acme.Kind())

	assert.Equal(t, descriptor.KindEnum, findChild(t, acme, "Mood").Kind())
	assert.Equal(t, descriptor.KindMessage, findChild(t, acme, "HelloReply").Kind())
	assert.Equal(t, descriptor.KindService, findChild(t, acme, "Greeter").Kind())
	assert.Equal(t, descriptor.KindNamespace, findChild(t, acme, "v2").Kind())

	v2 := findChild(t, acme, "v2")
	assert.Equal(t, descriptor.KindMessage, findChild(t, v2, "Meta").Kind())
	assert.Equal(t, descriptor.KindService, findChild(t, v2, "Greeter2").Kind())
}

func TestLoad_EnumValues(t *testing.T) {
	tree, _ := loadTestdata(t)

	mood := findChild(t, findChild(t, findChild(t, tree, "com"), "acme"), "Mood").Enum
	require.NotNil(t, mood)
	require.Len(t, mood.Values, 2)
	assert.Equal(t, descriptor.EnumValue{Name: "CALM", Number: 0}, mood.Values[0])
	assert.Equal(t, descriptor.EnumValue{Name: "EXCITED", Number: 1}, mood.Values[1])
}

func TestLoad_MessageFields(t *testing.T) {
	tree, _ := loadTestdata(t)

	acme := findChild(t, findChild(t, tree, "com"), "acme")
	reply := findChild(t, acme, "HelloReply").Message
	require.NotNil(t, reply)

	byName := map[string]descriptor.Field{}
	for _, f := range reply.Fields {
		byName[f.Name] = f
	}

	assert.Equal(t, "string", byName["message"].TypeName)
	assert.True(t, byName["tags"].Repeated)
	assert.Equal(t, "int64", byName["count"].TypeName)
	assert.Equal(t, "com.acme.Mood", byName["mood"].TypeName)
	assert.Equal(t, "com.acme.v2.Meta", byName["meta"].TypeName)
}

func TestLoad_ServiceMethods(t *testing.T) {
	tree, _ := loadTestdata(t)

	greeter := tree.FindService("com.acme.Greeter")
	require.NotNil(t, greeter)
	assert.Equal(t, "com.acme.Greeter", greeter.FullName)
	require.Len(t, greeter.Methods, 3)

	byName := map[string]descriptor.Method{}
	for _, m := range greeter.Methods {
		byName[m.Name] = m
		require.NotNil(t, m.Desc)
	}

	assert.Equal(t, "com.acme.HelloRequest", byName["SayHello"].InputType)
	assert.Equal(t, "com.acme.HelloReply", byName["SayHello"].OutputType)
	assert.False(t, byName["SayHello"].ServerStream)
	assert.True(t, byName["Watch"].ServerStream)
	assert.Equal(t, "com.acme.Event", byName["Watch"].OutputType)
}

func TestLoad_Services(t *testing.T) {
	tree, _ := loadTestdata(t)

	var names []string
	for _, svc := range tree.Services() {
		names = append(names, svc.FullName)
	}
	assert.ElementsMatch(t, []string{"com.acme.Greeter", "com.acme.v2.Greeter2"}, names)
	assert.Nil(t, tree.FindService("com.acme.Absent"))
}

func TestLoad_MirrorComments(t *testing.T) {
	_, mirror := loadTestdata(t)

	com := mirror.Nested["com"]
	require.NotNil(t, com)
	acme := com.Nested["acme"]
	require.NotNil(t, acme)

	mood := acme.Nested["Mood"]
	require.NotNil(t, mood)
	assert.Equal(t, "Mood qualifies how a greeting should be delivered.", mood.Comment)
	assert.Equal(t, int32(1), mood.Values["EXCITED"])

	reply := acme.Nested["HelloReply"]
	require.NotNil(t, reply)
	assert.Equal(t, "repeated", reply.Fields["tags"].Rule)
	assert.Equal(t, "int64", reply.Fields["count"].Type)

	greeter := acme.Nested["Greeter"]
	require.NotNil(t, greeter)
	assert.Equal(t, "Greeter is the primary service of the acme API.", greeter.Comment)
	watch := greeter.Methods["Watch"]
	require.NotNil(t, watch)
	assert.True(t, watch.ResponseStream)
	assert.Equal(t, "com.acme.Event", watch.ResponseType)

	v2 := acme.Nested["v2"]
	require.NotNil(t, v2)
	assert.Equal(t, "Greeter2 is the second-generation greeting service.", v2.Nested["Greeter2"].Comment)
}

func TestLoad_NestedTypesAndMaps(t *testing.T) {
	dir := t.TempDir()
	src := `syntax = "proto3";
package lab;

message Outer {
  message Inner {
    string id = 1;
  }
  enum Color {
    RED = 0;
  }
  Inner inner = 1;
  Color color = 2;
  map<string, string> attrs = 3;
}
`
	path := filepath.Join(dir, "lab.proto")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	loader := descriptor.NewLoader(logging.NewNopLogger())
	// Absolute paths resolve without include directories.
	tree, _, err := loader.Load(path, descriptor.Options{})
	require.NoError(t, err)

	lab := findChild(t, tree, "lab")
	outer := findChild(t, lab, "Outer").Message
	require.NotNil(t, outer)

	// Nested declarations flatten into the package namespace under dotted
	// local names.
	assert.Equal(t, descriptor.KindMessage, findChild(t, lab, "Outer.Inner").Kind())
	assert.Equal(t, descriptor.KindEnum, findChild(t, lab, "Outer.Color").Kind())

	byName := map[string]descriptor.Field{}
	for _, f := range outer.Fields {
		byName[f.Name] = f
	}
	assert.Equal(t, "lab.Outer.Inner", byName["inner"].TypeName)
	assert.Equal(t, "lab.Outer.Color", byName["color"].TypeName)
	// Map fields carry no counterpart.
	assert.NotContains(t, byName, "attrs")
}

func TestLoad_IncludeDirOrder(t *testing.T) {
	loader := descriptor.NewLoader(logging.NewNopLogger())
	tree, _, err := loader.Load("hello.proto", descriptor.Options{
		IncludeDirs: []string{t.TempDir(), grpctest.ProtoDir()},
	})
	require.NoError(t, err)
	require.NotNil(t, tree.FindService("com.acme.Greeter"))
}

func TestLoad_MissingFile(t *testing.T) {
	loader := descriptor.NewLoader(logging.NewNopLogger())
	_, _, err := loader.Load("nope.proto", descriptor.Options{
		IncludeDirs: []string{t.TempDir()},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope.proto")
}

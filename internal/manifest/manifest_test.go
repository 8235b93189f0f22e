package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/hashicorp/hcl/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"

	"github.com/agentic-research/fastener/api"
	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
	"github.com/agentic-research/fastener/internal/relation"
	"github.com/agentic-research/fastener/internal/update"
)

const boardSrc = `
class "Board" {
  property "color" {
    type     = "string"
    default  = "red"
    inherits = true
  }
  ref "label" {
    target = "trait"
    class  = "Label"
    key    = "label"
    binds  = true
  }
  set "cells" {
    target = "model"
    class  = "Cell"
    binds  = true
    sorted = true
  }
}

class "Cell" {
  property "value" {
    type    = "number"
    default = 0
  }
}

class "Label" {
  property "text" {
    type = "string"
  }
}
`

var manifestOpts = cmp.Options{
	cmpopts.IgnoreTypes(hcl.Range{}),
	cmpopts.IgnoreInterfaces(struct{ hcl.Expression }{}),
	cmpopts.EquateEmpty(),
}

func TestParse(t *testing.T) {
	m, err := Parse([]byte(boardSrc), "board.hcl")
	require.NoError(t, err)

	want := &api.Manifest{Classes: []*api.Class{
		{
			Name:       "Board",
			Properties: []*api.Property{{Name: "color", Type: "string", Inherits: true}},
			Refs:       []*api.Ref{{Name: "label", Target: "trait", Class: "Label", Key: "label", Binds: true}},
			Sets:       []*api.Set{{Name: "cells", Target: "model", Class: "Cell", Binds: true, Sorted: true}},
		},
		{Name: "Cell", Properties: []*api.Property{{Name: "value", Type: "number"}}},
		{Name: "Label", Properties: []*api.Property{{Name: "text", Type: "string"}}},
	}}
	if diff := cmp.Diff(want, m, manifestOpts); diff != "" {
		t.Errorf("manifest mismatch (-want +got):\n%s", diff)
	}

	board := m.Classes[0]
	assert.Equal(t, "board.hcl", board.DeclRange.Filename)
	assert.Equal(t, 2, board.DeclRange.Start.Line)
	assert.Equal(t, 3, board.Properties[0].DeclRange.Start.Line)
	assert.Equal(t, 14, board.Sets[0].DeclRange.Start.Line)

	v, diags := board.Properties[0].Default.Value(nil)
	require.False(t, diags.HasErrors())
	assert.Equal(t, cty.StringVal("red"), v)
	assert.False(t, isExprDefined(m.Classes[2].Properties[0].Default))
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse([]byte(`class "A" {`), "broken.hcl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken.hcl")

	_, err = Parse([]byte("class \"A\" {\n  ref \"x\" {}\n}\n"), "missing.hcl")
	var diags hcl.Diagnostics
	require.ErrorAs(t, err, &diags)
	assert.True(t, diags.HasErrors())
}

func TestBuild(t *testing.T) {
	m, err := Parse([]byte(boardSrc), "board.hcl")
	require.NoError(t, err)
	reg := model.NewClassRegistry()
	classes, err := Build(m, reg)
	require.NoError(t, err)
	require.Len(t, classes, 3)
	assert.Equal(t, []string{"Board", "Cell", "Label"}, reg.Names())

	board, _ := reg.Lookup("Board")
	cell, _ := reg.Lookup("Cell")
	label, _ := reg.Lookup("Label")
	require.Same(t, classes[0], board)

	d, ok := board.Descriptor("cells")
	require.True(t, ok)
	assert.Equal(t, "set", d.Kind)

	ctx := context.Background()
	s := update.New(update.Config{})
	root := model.New(board)
	child := model.New(board)
	require.NoError(t, root.AppendChild(child, "child"))
	require.NoError(t, s.Attach(root))
	_, err = s.Flush(ctx)
	require.NoError(t, err)

	rootColor, ok := fastener.Lookup[*fastener.Property[cty.Value]](root, "color")
	require.True(t, ok)
	childColor, ok := fastener.Lookup[*fastener.Property[cty.Value]](child, "color")
	require.True(t, ok)
	assert.Same(t, rootColor, childColor.Inlet())
	assert.Equal(t, cty.StringVal("red"), childColor.Get())

	rootColor.Set(cty.StringVal("blue"))
	_, err = s.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("blue"), childColor.Get())

	other := model.NewTrait(label)
	lbl := model.NewTrait(label)
	require.NoError(t, root.AppendTrait(other, "other"))
	require.NoError(t, root.AppendTrait(lbl, "label"))
	ref, ok := fastener.Lookup[*relation.Ref[*model.Trait]](root, "label")
	require.True(t, ok)
	assert.Same(t, lbl, ref.Target())

	text, ok := fastener.Lookup[*fastener.Property[cty.Value]](lbl, "text")
	require.True(t, ok)
	assert.True(t, text.Get().IsNull())
	assert.Equal(t, cty.String, text.Get().Type())

	for _, key := range []string{"c", "a", "b"} {
		require.NoError(t, root.AppendChild(model.New(cell), key))
	}
	cells, ok := fastener.Lookup[*relation.Set[*model.Model]](root, "cells")
	require.True(t, ok)
	created, err := cells.InsertNew("d")
	require.NoError(t, err)
	assert.Same(t, cell, created.Class())

	var keys []string
	for _, c := range cells.Targets() {
		keys = append(keys, c.Key())
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, keys)

	value, ok := fastener.Lookup[*fastener.Property[cty.Value]](created, "value")
	require.True(t, ok)
	assert.True(t, value.Get().Equals(cty.NumberIntVal(0)).True())
}

func TestBuild_ResolvesRegisteredClasses(t *testing.T) {
	reg := model.NewClassRegistry()
	ext := model.NewClass("Ext")
	require.NoError(t, reg.Register(ext))

	m, err := Parse([]byte(`
class "A" {
  ref "ext" {
    target = "model"
    class  = "Ext"
  }
  ref "later" {
    target = "model"
    class  = "B"
  }
}
class "B" {}
`), "a.hcl")
	require.NoError(t, err)
	_, err = Build(m, reg)
	require.NoError(t, err)

	a, _ := reg.Lookup("A")
	b, _ := reg.Lookup("B")
	n := model.New(a)
	ref, ok := fastener.Lookup[*relation.Ref[*model.Model]](n, "ext")
	require.True(t, ok)
	created, err := ref.InsertNew("ext")
	require.NoError(t, err)
	assert.Same(t, ext, created.Class())
	assert.Same(t, created, n.GetChild("ext"))

	later, ok := fastener.Lookup[*relation.Ref[*model.Model]](n, "later")
	require.True(t, ok)
	created, err = later.Create()
	require.NoError(t, err)
	assert.Same(t, b, created.Class())
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		summary string
	}{
		{
			name: "unknown class",
			src: `class "A" {
  ref "x" {
    target = "model"
    class  = "Nope"
  }
}`,
			summary: "Unknown class",
		},
		{
			name: "duplicate fastener",
			src: `class "A" {
  property "x" {}
  set "x" { target = "model" }
}`,
			summary: "Duplicate fastener",
		},
		{
			name: "bad target",
			src: `class "A" {
  set "x" { target = "node" }
}`,
			summary: "Invalid target",
		},
		{
			name: "bad default",
			src: `class "A" {
  property "n" {
    type    = "number"
    default = "abc"
  }
}`,
			summary: "Invalid default",
		},
		{
			name:    "duplicate class",
			src:     "class \"A\" {}\nclass \"A\" {}\n",
			summary: "Duplicate class",
		},
		{
			name: "bad type",
			src: `class "A" {
  property "n" { type = "strin" }
}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := Parse([]byte(tt.src), "bad.hcl")
			require.NoError(t, err)
			reg := model.NewClassRegistry()
			_, err = Build(m, reg)
			var diags hcl.Diagnostics
			require.ErrorAs(t, err, &diags)
			require.True(t, diags.HasErrors())
			if tt.summary != "" {
				assert.Equal(t, tt.summary, diags[0].Summary)
				require.NotNil(t, diags[0].Subject)
				assert.Equal(t, "bad.hcl", diags[0].Subject.Filename)
			}
			assert.Empty(t, reg.Names(), "nothing registered")
		})
	}
}

func TestBuild_AlreadyRegistered(t *testing.T) {
	reg := model.NewClassRegistry()
	require.NoError(t, reg.Register(model.NewClass("A")))
	m, err := Parse([]byte(`class "A" {}`), "a.hcl")
	require.NoError(t, err)
	_, err = Build(m, reg)
	var diags hcl.Diagnostics
	require.ErrorAs(t, err, &diags)
	assert.Equal(t, "Duplicate class", diags[0].Summary)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.hcl"), `class "A" {}`)
	writeFile(t, filepath.Join(dir, "notes.txt"), `not hcl {`)
	writeFile(t, filepath.Join(dir, "sub", "b.hcl"), `class "B" {}`)
	single := filepath.Join(t.TempDir(), "c.hcl")
	writeFile(t, single, `class "C" {}`)

	m, err := Load(context.Background(), dir, single, filepath.Join(dir, "missing.hcl"), dir)
	require.NoError(t, err)
	var names []string
	for _, c := range m.Classes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
	assert.Equal(t, filepath.Join(dir, "sub", "b.hcl"), m.Classes[1].DeclRange.Filename)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Load(ctx, dir)
	require.ErrorIs(t, err, context.Canceled)

	bad := filepath.Join(t.TempDir(), "bad.hcl")
	writeFile(t, bad, `class "X" {`)
	_, err = Load(context.Background(), bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), bad)
}

func TestLoadFS(t *testing.T) {
	fsys := memfs.New()
	require.NoError(t, util.WriteFile(fsys, "manifests/board.hcl", []byte(boardSrc), 0o644))
	require.NoError(t, util.WriteFile(fsys, "manifests/extra/marker.hcl", []byte(`class "Marker" {}`), 0o644))
	require.NoError(t, util.WriteFile(fsys, "manifests/README", []byte(`class "Ignored" {`), 0o644))

	m, err := LoadFS(context.Background(), fsys, "manifests", "absent")
	require.NoError(t, err)
	var names []string
	for _, c := range m.Classes {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{"Board", "Cell", "Label", "Marker"}, names)

	reg := model.NewClassRegistry()
	_, err = Build(m, reg)
	require.NoError(t, err)
	assert.Equal(t, []string{"Board", "Cell", "Label", "Marker"}, reg.Names())
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

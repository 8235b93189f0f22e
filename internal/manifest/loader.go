// Package manifest declares model and trait classes from HCL files.
package manifest

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-billy/v5/util"
	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"

	"github.com/agentic-research/fastener/api"
)

// Parse decodes a single manifest source. filename is only used in
// diagnostics.
func Parse(src []byte, filename string) (*api.Manifest, error) {
	file, diags := hclparse.NewParser().ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", filename, diags)
	}
	m, diags := decode(file)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode %s: %w", filename, diags)
	}
	return m, nil
}

// Load parses every .hcl file under paths on the local filesystem.
func Load(ctx context.Context, paths ...string) (*api.Manifest, error) {
	return LoadFS(ctx, osfs.New(""), paths...)
}

// LoadFS parses every .hcl file under paths in fsys and merges their
// classes in path order. Paths may be files or directories; missing paths
// are skipped.
func LoadFS(ctx context.Context, fsys billy.Filesystem, paths ...string) (*api.Manifest, error) {
	files, err := findFiles(fsys, paths)
	if err != nil {
		return nil, err
	}
	logger := slog.Default().With("component", "manifest")
	logger.DebugContext(ctx, "loading manifests", "files", len(files))

	parser := hclparse.NewParser()
	out := &api.Manifest{}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src, err := util.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		file, diags := parser.ParseHCL(src, path)
		if diags.HasErrors() {
			return nil, fmt.Errorf("parse %s: %w", path, diags)
		}
		m, diags := decode(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("decode %s: %w", path, diags)
		}
		out.Classes = append(out.Classes, m.Classes...)
	}
	logger.DebugContext(ctx, "manifests loaded", "files", len(files), "classes", len(out.Classes))
	return out, nil
}

func decode(file *hcl.File) (*api.Manifest, hcl.Diagnostics) {
	var m api.Manifest
	if diags := gohcl.DecodeBody(file.Body, nil, &m); diags.HasErrors() {
		return nil, diags
	}
	if body, ok := file.Body.(*hclsyntax.Body); ok {
		fillRanges(&m, body)
	}
	return &m, nil
}

// fillRanges copies block ranges onto the decoded structs. gohcl decodes
// blocks of a type in source order, so positions line up.
func fillRanges(m *api.Manifest, body *hclsyntax.Body) {
	i := 0
	for _, b := range body.Blocks {
		if b.Type != "class" || i >= len(m.Classes) {
			continue
		}
		c := m.Classes[i]
		i++
		c.DeclRange = b.DefRange()

		var np, nr, ns int
		for _, inner := range b.Body.Blocks {
			r := inner.DefRange()
			switch {
			case inner.Type == "property" && np < len(c.Properties):
				c.Properties[np].DeclRange = r
				np++
			case inner.Type == "ref" && nr < len(c.Refs):
				c.Refs[nr].DeclRange = r
				nr++
			case inner.Type == "set" && ns < len(c.Sets):
				c.Sets[ns].DeclRange = r
				ns++
			}
		}
	}
}

func findFiles(fsys billy.Filesystem, paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			files = append(files, p)
		}
	}
	for _, path := range paths {
		info, err := fsys.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("stat %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}
		err = util.Walk(fsys, path, func(p string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if !info.IsDir() && filepath.Ext(p) == ".hcl" {
				add(p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}
	return files, nil
}

package manifest

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/ext/typeexpr"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"

	"github.com/agentic-research/fastener/api"
	"github.com/agentic-research/fastener/internal/fastener"
	"github.com/agentic-research/fastener/internal/model"
	"github.com/agentic-research/fastener/internal/relation"
)

// Build turns the manifest into classes and registers them in reg. Class
// references resolve against the manifest first, then reg. Nothing is
// registered unless the whole manifest is valid.
func Build(m *api.Manifest, reg *model.ClassRegistry) ([]*model.Class, error) {
	b := &builder{reg: reg, classes: make(map[string]*model.Class)}
	b.declare(m)
	for i, src := range b.sources {
		b.define(src, b.built[i])
	}
	if b.diags.HasErrors() {
		return nil, fmt.Errorf("build manifest: %w", b.diags)
	}
	for _, c := range b.built {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return b.built, nil
}

type builder struct {
	reg     *model.ClassRegistry
	classes map[string]*model.Class
	sources []*api.Class
	built   []*model.Class
	diags   hcl.Diagnostics
}

func (b *builder) errorf(subject hcl.Range, summary, format string, args ...any) {
	b.diags = append(b.diags, &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
		Subject:  subject.Ptr(),
	})
}

// declare creates every class up front so references can point at classes
// defined later in the manifest.
func (b *builder) declare(m *api.Manifest) {
	for _, src := range m.Classes {
		if _, dup := b.classes[src.Name]; dup {
			b.errorf(src.DeclRange, "Duplicate class", "class %q is declared more than once", src.Name)
			continue
		}
		if _, exists := b.reg.Lookup(src.Name); exists {
			b.errorf(src.DeclRange, "Duplicate class", "class %q is already registered", src.Name)
			continue
		}
		c := model.NewClass(src.Name)
		b.classes[src.Name] = c
		b.sources = append(b.sources, src)
		b.built = append(b.built, c)
	}
}

func (b *builder) define(src *api.Class, c *model.Class) {
	names := make(map[string]hcl.Range)
	claim := func(name string, r hcl.Range) bool {
		if prev, dup := names[name]; dup {
			b.errorf(r, "Duplicate fastener", "class %q already declares %q at %s", src.Name, name, prev)
			return false
		}
		names[name] = r
		return true
	}
	for _, p := range src.Properties {
		if !claim(p.Name, p.DeclRange) {
			continue
		}
		if d, ok := b.property(p); ok {
			c.Fasteners = append(c.Fasteners, d)
		}
	}
	for _, r := range src.Refs {
		if !claim(r.Name, r.DeclRange) {
			continue
		}
		if d, ok := b.ref(r); ok {
			c.Fasteners = append(c.Fasteners, d)
		}
	}
	for _, s := range src.Sets {
		if !claim(s.Name, s.DeclRange) {
			continue
		}
		if d, ok := b.set(s); ok {
			c.Fasteners = append(c.Fasteners, d)
		}
	}
}

func (b *builder) property(p *api.Property) (fastener.Descriptor, bool) {
	ty, ok := b.typeOf(p)
	if !ok {
		return fastener.Descriptor{}, false
	}
	initial := cty.NullVal(ty)
	if isExprDefined(p.Default) {
		v, diags := p.Default.Value(nil)
		if diags.HasErrors() {
			b.diags = append(b.diags, diags...)
			return fastener.Descriptor{}, false
		}
		cv, err := convert.Convert(v, ty)
		if err != nil {
			b.errorf(p.Default.Range(), "Invalid default", "default of %q is not a valid %s: %s", p.Name, ty.FriendlyName(), err)
			return fastener.Descriptor{}, false
		}
		initial = cv
	}
	name, inherits := p.Name, p.Inherits
	return fastener.Descriptor{
		Name: name,
		Kind: "property",
		New: func(owner fastener.Owner) fastener.Fastener {
			return fastener.NewPropertyFunc(owner, name, initial, ctyEqual, fastener.WithInherits(inherits))
		},
	}, true
}

func (b *builder) typeOf(p *api.Property) (cty.Type, bool) {
	if p.Type == "" {
		return cty.DynamicPseudoType, true
	}
	expr, diags := hclsyntax.ParseExpression([]byte(p.Type), p.DeclRange.Filename, p.DeclRange.Start)
	if diags.HasErrors() {
		b.diags = append(b.diags, diags...)
		return cty.NilType, false
	}
	ty, diags := typeexpr.TypeConstraint(expr)
	if diags.HasErrors() {
		b.diags = append(b.diags, diags...)
		return cty.NilType, false
	}
	return ty, true
}

func (b *builder) class(name string, subject hcl.Range) (*model.Class, bool) {
	if name == "" {
		return nil, true
	}
	if c, ok := b.classes[name]; ok {
		return c, true
	}
	if c, ok := b.reg.Lookup(name); ok {
		return c, true
	}
	b.errorf(subject, "Unknown class", "class %q is not declared", name)
	return nil, false
}

func (b *builder) ref(r *api.Ref) (fastener.Descriptor, bool) {
	cls, ok := b.class(r.Class, r.DeclRange)
	if !ok {
		return fastener.Descriptor{}, false
	}
	switch r.Target {
	case api.TargetModel:
		return relation.RefDescriptor(r.Name, refConfig[*model.Model](r, cls)), true
	case api.TargetTrait:
		return relation.RefDescriptor(r.Name, refConfig[*model.Trait](r, cls)), true
	}
	b.errorf(r.DeclRange, "Invalid target", "ref %q targets %q; expected %q or %q", r.Name, r.Target, api.TargetModel, api.TargetTrait)
	return fastener.Descriptor{}, false
}

func (b *builder) set(s *api.Set) (fastener.Descriptor, bool) {
	cls, ok := b.class(s.Class, s.DeclRange)
	if !ok {
		return fastener.Descriptor{}, false
	}
	switch s.Target {
	case api.TargetModel:
		return relation.SetDescriptor(s.Name, setConfig[*model.Model](s, cls)), true
	case api.TargetTrait:
		return relation.SetDescriptor(s.Name, setConfig[*model.Trait](s, cls)), true
	}
	b.errorf(s.DeclRange, "Invalid target", "set %q targets %q; expected %q or %q", s.Name, s.Target, api.TargetModel, api.TargetTrait)
	return fastener.Descriptor{}, false
}

func refConfig[T model.Node](r *api.Ref, cls *model.Class) relation.Config[T] {
	return relation.Config[T]{
		Binds:    r.Binds,
		Consumes: r.Consumes,
		Inherits: r.Inherits,
		Key:      r.Key,
		Class:    cls,
	}
}

func setConfig[T model.Node](s *api.Set, cls *model.Class) relation.Config[T] {
	return relation.Config[T]{
		Binds:    s.Binds,
		Consumes: s.Consumes,
		Inherits: s.Inherits,
		Class:    cls,
		Sorted:   s.Sorted,
		Ordered:  s.Ordered,
	}
}

func ctyEqual(a, b cty.Value) bool {
	return a.RawEquals(b)
}

// isExprDefined reports whether an optional attribute was present in the
// source. gohcl fills omitted optional expressions with a zero-width
// placeholder.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	r := expr.Range()
	return r.End.Byte > r.Start.Byte
}

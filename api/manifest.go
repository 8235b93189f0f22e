// Package api holds the HCL schema of class manifests.
package api

import "github.com/hashicorp/hcl/v2"

// Manifest is the decoded content of one or more manifest files.
type Manifest struct {
	Classes []*Class `hcl:"class,block"`
}

// Class declares a model or trait class and its fasteners.
type Class struct {
	Name       string      `hcl:"name,label"`
	Properties []*Property `hcl:"property,block"`
	Refs       []*Ref      `hcl:"ref,block"`
	Sets       []*Set      `hcl:"set,block"`

	// DeclRange is filled in by the parser.
	DeclRange hcl.Range
}

// Property declares a value fastener. Type is a type constraint such as
// "string" or "list(number)"; it defaults to "any".
type Property struct {
	Name     string         `hcl:"name,label"`
	Type     string         `hcl:"type,optional"`
	Default  hcl.Expression `hcl:"default,optional"`
	Inherits bool           `hcl:"inherits,optional"`

	DeclRange hcl.Range
}

// Ref declares a relation to at most one model or trait.
type Ref struct {
	Name     string `hcl:"name,label"`
	Target   string `hcl:"target"`
	Class    string `hcl:"class,optional"`
	Key      string `hcl:"key,optional"`
	Binds    bool   `hcl:"binds,optional"`
	Consumes bool   `hcl:"consumes,optional"`
	Inherits bool   `hcl:"inherits,optional"`

	DeclRange hcl.Range
}

// Set declares a relation to many models or traits.
type Set struct {
	Name     string `hcl:"name,label"`
	Target   string `hcl:"target"`
	Class    string `hcl:"class,optional"`
	Binds    bool   `hcl:"binds,optional"`
	Consumes bool   `hcl:"consumes,optional"`
	Inherits bool   `hcl:"inherits,optional"`
	Sorted   bool   `hcl:"sorted,optional"`
	Ordered  bool   `hcl:"ordered,optional"`

	DeclRange hcl.Range
}

// Target kinds accepted by refs and sets.
const (
	TargetModel = "model"
	TargetTrait = "trait"
)

// Package ssa converts a CFG-annotated IR into static-single-assignment
// form and back: φ-node insertion at dominance frontiers, dominator-tree
// renaming, use-def chain bookkeeping, and destruction by predecessor
// -block copy insertion.
package ssa

import (
	"github.com/deobfuscator/core/internal/cfg"
	"github.com/deobfuscator/core/internal/ir"
)

// Def records where an SSA-identifier's value comes from: either a
// regular assignment/declarator statement, or a φ-node synthesized
// during construction.
type Def struct {
	Name      string
	Version   int
	Block     string
	Statement ir.Node // the assignment/declarator/Phi that defines it
	IsPhi     bool
}

// UseDefChains lets later passes navigate from an SSA-identifier back to
// its defining statement and forward to every use (spec.md §4.4).
type UseDefChains struct {
	defs map[string]Def            // "name#version" -> Def
	uses map[string][]*ir.SSAIdentifier // "name#version" -> every use site
}

func newUseDefChains() *UseDefChains {
	return &UseDefChains{
		defs: map[string]Def{},
		uses: map[string][]*ir.SSAIdentifier{},
	}
}

func key(name string, version int) string {
	return name + "#" + itoa(version)
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Def returns the defining statement for an SSA-identifier, if known.
func (u *UseDefChains) Def(name string, version int) (Def, bool) {
	d, ok := u.defs[key(name, version)]
	return d, ok
}

// Uses returns every recorded use of a given SSA version.
func (u *UseDefChains) Uses(name string, version int) []*ir.SSAIdentifier {
	return u.uses[key(name, version)]
}

func (u *UseDefChains) recordDef(d Def) {
	u.defs[key(d.Name, d.Version)] = d
}

func (u *UseDefChains) recordUse(ident *ir.SSAIdentifier) {
	k := key(ident.OriginalName, ident.Version)
	u.uses[k] = append(u.uses[k], ident)
}

// State is the SSA-form annotation attached to an IRState while passes
// that declare an SSA dependency are running (spec.md §4.4/§4.5).
type State struct {
	Graph    *cfg.Graph
	Factory  *ir.Factory
	Phis     map[string][]*ir.Phi // block label -> its φ-nodes, in insertion order
	PhiNames map[*ir.Phi]string   // which original variable each φ-node defines
	UseDef   *UseDefChains
	versions map[string]int // highest version allocated per original name
}

// Package trust holds the table of dependencies that are always present in a
// valid deployment and are therefore never probed.
//
// A [Rule] matches either by file-name prefix ("libc.so" matches "libc.so.6")
// or by exact publisher signature ("GLIBC" matches any library whose imported
// symbols are bound to GLIBC_* versions). The built-in table covers the base
// runtime, the kernel vDSO, compiler runtime support and the Qt UI toolkit.
// Deployments can extend or replace it through the config file; see [File].
package trust

import (
	"fmt"
	"strings"

	"github.com/matzehuels/refcheck/pkg/artifact"
	"github.com/matzehuels/refcheck/pkg/errors"
)

// Kind selects how a rule is matched against a declaration.
type Kind string

const (
	KindPrefix    Kind = "prefix"    // Declaration name starts with Value
	KindSignature Kind = "signature" // Declaration signature equals Value
)

// Rule is one entry of the trust table.
type Rule struct {
	Kind  Kind   `toml:"kind"`
	Value string `toml:"value"`
	Note  string `toml:"note"`
}

// Matches reports whether d is covered by r.
func (r Rule) Matches(d artifact.Declaration) bool {
	switch r.Kind {
	case KindPrefix:
		return strings.HasPrefix(d.Name, r.Value)
	case KindSignature:
		return d.Signature != "" && d.Signature == r.Value
	}
	return false
}

// String renders the rule as "kind:value".
func (r Rule) String() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.Value)
}

func (r Rule) validate() error {
	switch r.Kind {
	case KindPrefix, KindSignature:
	default:
		return errors.New(errors.ErrCodeInvalidConfig, "unknown trust rule kind %q (want %q or %q)", r.Kind, KindPrefix, KindSignature)
	}
	if strings.TrimSpace(r.Value) == "" {
		return errors.New(errors.ErrCodeInvalidConfig, "trust rule of kind %q has an empty value", r.Kind)
	}
	return nil
}

// builtin is the default table.
var builtin = []Rule{
	{KindPrefix, "ld-linux", "dynamic loader"},
	{KindPrefix, "ld64.so", "dynamic loader"},
	{KindPrefix, "linux-vdso.so", "kernel vDSO"},
	{KindPrefix, "linux-gate.so", "kernel vDSO"},
	{KindPrefix, "libc.so", "base runtime"},
	{KindPrefix, "libm.so", "base runtime"},
	{KindPrefix, "libdl.so", "base runtime"},
	{KindPrefix, "libpthread.so", "base runtime"},
	{KindPrefix, "librt.so", "base runtime"},
	{KindSignature, "GLIBC", "base platform"},
	{KindSignature, "GCC", "compiler runtime support"},
	{KindSignature, "Qt", "UI toolkit"},
}

// Table is an ordered, immutable set of rules. A nil *Table trusts nothing.
type Table struct {
	rules []Rule
}

// Default returns the built-in table.
func Default() *Table {
	return &Table{rules: append([]Rule(nil), builtin...)}
}

// New returns a table holding exactly rules, rejecting malformed entries.
func New(rules ...Rule) (*Table, error) {
	for _, r := range rules {
		if err := r.validate(); err != nil {
			return nil, err
		}
	}
	return &Table{rules: append([]Rule(nil), rules...)}, nil
}

// With returns a copy of t with rules appended.
func (t *Table) With(rules ...Rule) (*Table, error) {
	extra, err := New(rules...)
	if err != nil {
		return nil, err
	}
	return &Table{rules: append(t.Rules(), extra.rules...)}, nil
}

// Match returns the first rule covering d.
func (t *Table) Match(d artifact.Declaration) (Rule, bool) {
	if t == nil {
		return Rule{}, false
	}
	for _, r := range t.rules {
		if r.Matches(d) {
			return r, true
		}
	}
	return Rule{}, false
}

// Trusted reports whether any rule covers d.
func (t *Table) Trusted(d artifact.Declaration) bool {
	_, ok := t.Match(d)
	return ok
}

// Rules returns a copy of the table's rules in match order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return append([]Rule(nil), t.rules...)
}

// Len returns the number of rules.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rules)
}

// File is the [trust] section of the config file.
//
//	[trust]
//	replace = false
//	[[trust.rule]]
//	kind = "prefix"
//	value = "libcuda.so"
//	note = "vendor driver"
type File struct {
	Replace bool   `toml:"replace"`
	Rules   []Rule `toml:"rule"`
}

// Table builds the effective table: the built-ins followed by f.Rules, or
// f.Rules alone when Replace is set.
func (f File) Table() (*Table, error) {
	if f.Replace {
		return New(f.Rules...)
	}
	return Default().With(f.Rules...)
}

// Package testutil provides helpers that enforce package layering rules from
// inside ordinary tests.
package testutil

import (
	"fmt"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

// Forbidden reports whether an import path breaks a layering rule.
type Forbidden func(path string) bool

// ImportsUnder matches any of the given import paths or anything below them.
func ImportsUnder(roots ...string) Forbidden {
	return func(path string) bool {
		for _, root := range roots {
			if path == root || strings.HasPrefix(path, root+"/") {
				return true
			}
		}
		return false
	}
}

// InternalImport matches import paths that cross an internal/ boundary.
func InternalImport(path string) bool {
	return strings.Contains(path, "/internal/") || strings.HasSuffix(path, "/internal")
}

// Any combines predicates.
func Any(preds ...Forbidden) Forbidden {
	return func(path string) bool {
		for _, p := range preds {
			if p(path) {
				return true
			}
		}
		return false
	}
}

var loadPackages = func(dir string, patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedImports | packages.NeedDeps, Dir: dir}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, err
	}
	var errs []string
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for _, e := range p.Errors {
			errs = append(errs, e.Error())
		}
	})
	if len(errs) > 0 {
		return nil, fmt.Errorf("load %v: %s", patterns, strings.Join(errs, "; "))
	}
	return pkgs, nil
}

// AssertNoDirectImports fails if a package matched by pattern, loaded from
// dir, imports a forbidden path directly. Test files are not loaded.
func AssertNoDirectImports(t testing.TB, dir, pattern string, forbidden Forbidden, reason string) {
	t.Helper()
	pkgs, err := loadPackages(dir, pattern)
	if err != nil {
		t.Fatalf("%v", err)
	}
	failIfViolations(t, "direct import", reason, directViolations(pkgs, forbidden))
}

// AssertNoTransitiveDependency fails if any package reachable from pattern
// satisfies forbidden.
func AssertNoTransitiveDependency(t testing.TB, dir, pattern string, forbidden Forbidden, reason string) {
	t.Helper()
	pkgs, err := loadPackages(dir, pattern)
	if err != nil {
		t.Fatalf("%v", err)
	}
	failIfViolations(t, "transitive dependency", reason, transitiveViolations(pkgs, forbidden))
}

func directViolations(pkgs []*packages.Package, forbidden Forbidden) []string {
	var viols []string
	for _, p := range pkgs {
		for path := range p.Imports {
			if forbidden(path) {
				viols = append(viols, path+" (imported by "+p.PkgPath+")")
			}
		}
	}
	sort.Strings(viols)
	return viols
}

func transitiveViolations(pkgs []*packages.Package, forbidden Forbidden) []string {
	seen := map[string]bool{}
	packages.Visit(pkgs, nil, func(p *packages.Package) {
		for path := range p.Imports {
			if forbidden(path) {
				seen[path+" (via "+p.PkgPath+")"] = true
			}
		}
	})
	viols := make([]string, 0, len(seen))
	for v := range seen {
		viols = append(viols, v)
	}
	sort.Strings(viols)
	return viols
}

type fatalLogger interface {
	Fatalf(format string, args ...any)
}

func failIfViolations(t fatalLogger, kind, reason string, viols []string) {
	if len(viols) > 0 {
		t.Fatalf("forbidden %s detected (%s):\n%s", kind, reason, strings.Join(viols, "\n"))
	}
}

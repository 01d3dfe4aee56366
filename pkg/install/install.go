// Package install declares the ceph packages of a role, with exact version
// pins and optional debug symbol packages.
package install

import (
	"fmt"
	"strings"

	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/samber/lo"
)

// Options controls how packages are declared
type Options struct {
	Family string
	Action resource.Action

	// VersionedPackages are the only packages ExactVersion applies to.
	VersionedPackages []string

	// ExactVersion is a version string for every versioned package, or a
	// map of package name to version with an optional "default" entry.
	ExactVersion any

	InstallDebug bool
}

// OptionsFromNode reads the install settings of the node
func OptionsFromNode(n *config.Node) Options {
	return Options{
		Family:            n.PlatformFamily,
		Action:            resource.Action(n.Ceph.PackageAction),
		VersionedPackages: n.Ceph.VersionedPackages,
		ExactVersion:      n.Ceph.ExactVersion,
		InstallDebug:      n.Ceph.InstallDebug,
	}
}

// DebugSuffix is the debug symbol package suffix of a platform family
func DebugSuffix(family string) string {
	switch family {
	case "debian":
		return "-dbg"
	case "rhel", "fedora":
		return "-debug"
	}
	return ""
}

// Version returns the pinned version of pkg, or "" for any version
func (o Options) Version(pkg string) string {
	base := strings.TrimSuffix(strings.TrimSuffix(pkg, "-dbg"), "-debug")
	if o.ExactVersion == nil || !lo.Contains(o.VersionedPackages, base) {
		return ""
	}

	versions, ok := o.ExactVersion.(map[string]any)
	if !ok {
		return fmt.Sprint(o.ExactVersion)
	}
	if v, ok := versions[pkg]; ok && v != nil {
		return fmt.Sprint(v)
	}
	if v, ok := versions["default"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Expand appends the debug packages when requested and the family has them
func (o Options) Expand(pkgs []string) []string {
	suffix := DebugSuffix(o.Family)
	if !o.InstallDebug || suffix == "" {
		return pkgs
	}
	debug := lo.Map(pkgs, func(p string, _ int) string { return p + suffix })
	return append(append([]string{}, pkgs...), debug...)
}

// Plan declares pkgs. Packages already declared by another role are left
// as they are.
func Plan(g *resource.Graph, pkgs []string, o Options) error {
	action := o.Action
	if action == "" {
		action = resource.ActionInstall
	}
	for _, name := range lo.Uniq(o.Expand(pkgs)) {
		r := resource.Package(name, o.Version(name)).WithAction(action)
		if g.Has(r.ID) {
			continue
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}
	return nil
}

package main

import (
	"fmt"

	"github.com/cuemby/strata/pkg/attributes"
	"github.com/cuemby/strata/pkg/cephadm"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/federation"
	"github.com/cuemby/strata/pkg/install"
	"github.com/cuemby/strata/pkg/mgr"
	"github.com/cuemby/strata/pkg/osd"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/cuemby/strata/pkg/security"
	"github.com/cuemby/strata/pkg/shell"
	"github.com/samber/lo"
)

// Recipe names accepted by "strata converge"
const (
	RecipeInstall = "install"
	RecipeOSD     = "osd"
	RecipeMgr     = "mgr"
	RecipeRadosgw = "radosgw"
)

// recipeOrder is the order recipes are declared in, whatever order they
// were requested in
var recipeOrder = []string{RecipeInstall, RecipeOSD, RecipeMgr, RecipeRadosgw}

// selectRecipes validates the requested recipes. With none requested, the
// node's attributes decide: install always, the others when enabled.
func selectRecipes(node *config.Node, requested []string, devices int) ([]string, error) {
	if len(requested) > 0 {
		if unknown := lo.Without(requested, recipeOrder...); len(unknown) > 0 {
			return nil, fmt.Errorf("unknown recipe(s) %v (want one of %v)", unknown, recipeOrder)
		}
		return lo.Filter(recipeOrder, func(r string, _ int) bool {
			return lo.Contains(requested, r)
		}), nil
	}

	recipes := []string{RecipeInstall}
	if devices > 0 {
		recipes = append(recipes, RecipeOSD)
	}
	if node.Ceph.Mgr.Enable {
		recipes = append(recipes, RecipeMgr)
	}
	if node.Ceph.Pools.Radosgw.Enable {
		recipes = append(recipes, RecipeRadosgw)
	}
	return recipes, nil
}

// planner turns a node's attributes into a resource graph
type planner struct {
	store  *attributes.Store
	runner shell.Runner
	sealer *security.Sealer

	// overrides of the production paths, for tests
	osdOptions func(*osd.Options)
	fedOptions func(*federation.Options)
	mgrDataDir string
}

// plan is a built resource graph and what it was built from
type plan struct {
	graph   *resource.Graph
	node    *config.Node
	recipes []string
}

// build decodes the node and declares every selected recipe
func (p *planner) build(requested []string) (*plan, error) {
	node, err := config.Decode(p.store)
	if err != nil {
		return nil, err
	}
	if node.Ceph.EncryptedDataBags && p.sealer == nil {
		return nil, fmt.Errorf("ceph.encrypted_data_bags is set but no secret key file was given")
	}

	client := cephadm.NewCLI(p.runner, node.Ceph.Cluster)

	osdOpts := osd.DefaultOptions()
	osdOpts.Cluster = node.Ceph.Cluster
	osdOpts.Dmcrypt = node.Ceph.OSD.Dmcrypt
	osdOpts.FsType = node.Ceph.OSD.FsType
	osdOpts.Mode = node.Ceph.FileMode()
	if p.osdOptions != nil {
		p.osdOptions(&osdOpts)
	}
	osdPlanner := osd.NewPlanner(p.store, client, p.runner, osdOpts)
	devices, err := osdPlanner.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", osd.DevicesPath, err)
	}

	recipes, err := selectRecipes(node, requested, len(devices))
	if err != nil {
		return nil, err
	}

	installOpts := install.OptionsFromNode(node)
	g := resource.NewGraph()
	for _, recipe := range recipes {
		switch recipe {
		case RecipeInstall:
			err = install.Plan(g, node.Ceph.Packages, installOpts)

		case RecipeOSD:
			if err = install.Plan(g, node.Ceph.OSD.Packages, installOpts); err == nil {
				err = osdPlanner.Plan(g, devices)
			}

		case RecipeMgr:
			if err = install.Plan(g, node.Ceph.Mgr.Packages, installOpts); err == nil {
				err = mgr.Plan(g, mgr.Options{
					Cluster:   node.Ceph.Cluster,
					Hostname:  node.Hostname,
					Owner:     node.Ceph.Owner,
					Group:     node.Ceph.Group,
					Mode:      node.Ceph.FileMode(),
					InitStyle: node.Ceph.Mgr.InitStyle,
					DataDir:   p.mgrDataDir,
				})
			}

		case RecipeRadosgw:
			if err = install.Plan(g, node.Ceph.Radosgw.Packages, installOpts); err == nil {
				fedOpts := federation.DefaultOptions(node.Ceph.Cluster)
				fedOpts.Owner = node.Ceph.Owner
				fedOpts.Group = node.Ceph.Group
				fedOpts.Mode = node.Ceph.FileMode()
				fedOpts.InitStyle = node.Ceph.Radosgw.InitStyle
				fedOpts.AdminKeyring = node.Ceph.AdminKeyring()
				fedOpts.ManualFederation = node.Ceph.Radosgw.ManualFederation
				if p.fedOptions != nil {
					p.fedOptions(&fedOpts)
				}
				secrets := federation.NewSecretStore(p.store, node.Ceph.Cluster, p.sealer)
				err = federation.NewBuilder(node.Ceph.Pools.Radosgw, fedOpts, client, secrets).Build(g)
			}
		}
		if err != nil {
			return nil, fmt.Errorf("recipe %s: %w", recipe, err)
		}
	}

	if err := g.Validate(); err != nil {
		return nil, err
	}
	return &plan{graph: g, node: node, recipes: recipes}, nil
}

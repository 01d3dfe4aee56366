// Package mgr bootstraps the ceph-mgr daemon of a monitor node.
package mgr

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/cuemby/strata/pkg/cephadm"
	"github.com/cuemby/strata/pkg/guard"
	"github.com/cuemby/strata/pkg/marker"
	"github.com/cuemby/strata/pkg/resource"
)

// Options configures the mgr bootstrap
type Options struct {
	Cluster   string
	Hostname  string
	Owner     string
	Group     string
	Mode      os.FileMode
	InitStyle string

	// DataDir is the parent of the per-host mgr directory
	DataDir string
}

// Dir is the mgr data directory of the node
func (o Options) Dir() string {
	dataDir := o.DataDir
	if dataDir == "" {
		dataDir = "/var/lib/ceph/mgr"
	}
	return filepath.Join(dataDir, fmt.Sprintf("%s-%s", o.Cluster, o.Hostname))
}

// ServiceName is the init system's name for the mgr daemon
func (o Options) ServiceName() string {
	if o.InitStyle == "upstart" {
		return "ceph-mgr-all-starter"
	}
	return "ceph-mgr@" + o.Hostname
}

// Plan declares the mgr directory, its keyring, the bootstrap markers and
// the service.
func Plan(g *resource.Graph, o Options) error {
	dir := o.Dir()
	keyring := filepath.Join(dir, "keyring")
	cmds := cephadm.Commands{Cluster: o.Cluster}

	resources := []*resource.Resource{
		resource.New(dir, resource.DirectorySpec{
			Path: dir, Mode: o.Mode, Owner: o.Owner, Group: o.Group, Recursive: true,
		}),
		resource.New("format ceph-mgr-secret as keyring", resource.ExecuteSpec{
			Command:    cmds.AuthGetOrCreateMgr(o.Hostname),
			StdoutFile:  keyring,
			StdoutMode:  0600,
			StdoutOwner: o.Owner,
			StdoutGroup: o.Group,
		}).NotIf(guard.FileNonEmpty(keyring)).MarkSensitive(),
		marker.Finalize("mgr-finalize", dir, o.InitStyle),
		resource.New("ceph_mgr", resource.ServiceSpec{Name: o.ServiceName(), Enable: true, Start: true}),
	}
	for _, r := range resources {
		if err := g.Add(r); err != nil {
			return err
		}
	}
	return nil
}

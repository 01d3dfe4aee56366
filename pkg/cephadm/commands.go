package cephadm

import (
	"github.com/cuemby/strata/pkg/shell"
	"github.com/cuemby/strata/pkg/types"
)

// rgwCaps are the capabilities granted to radosgw client keys
var rgwCaps = []string{"--cap", "osd", "allow rwx", "--cap", "mon", "allow rwx"}

// Commands builds the mutating invocations strata issues. Nothing here
// runs anything; the results are used as execute resources.
type Commands struct {
	Cluster string
}

func (c Commands) ceph(args ...string) shell.Command {
	return shell.New("ceph", append([]string{"--cluster", c.Cluster}, args...)...)
}

func (c Commands) rgwAdmin(client string, args ...string) shell.Command {
	return shell.New("radosgw-admin", append([]string{"--cluster", c.Cluster, "--name=" + client}, args...)...)
}

func authtool(args ...string) shell.Command {
	cmd := shell.New("ceph-authtool", args...)
	cmd.Sensitive = true
	return cmd
}

// KeyringAddKey stores a known key for client in an existing keyring
func (c Commands) KeyringAddKey(keyring, client, key string) shell.Command {
	return authtool(append([]string{keyring, "--name=" + client, "--add-key=" + key}, rgwCaps...)...)
}

// KeyringCreateWithKey creates keyring holding a known key for client
func (c Commands) KeyringCreateWithKey(keyring, client, key string) shell.Command {
	return authtool(append([]string{keyring, "--create-keyring", "--name=" + client, "--add-key=" + key}, rgwCaps...)...)
}

// KeyringGenerate creates keyring with a freshly generated key for client
func (c Commands) KeyringGenerate(keyring, client string) shell.Command {
	return authtool(append([]string{"--create-keyring", keyring, "--name=" + client, "--gen-key"}, rgwCaps...)...)
}

// KeyringAddEntity generates a key for client inside an existing keyring
func (c Commands) KeyringAddEntity(keyring, client string) shell.Command {
	return authtool(append([]string{keyring, "--name=" + client, "--gen-key"}, rgwCaps...)...)
}

// AuthAdd registers the client from keyring with the cluster
func (c Commands) AuthAdd(adminKeyring, client, keyring string) shell.Command {
	cmd := c.ceph("-k", adminKeyring, "auth", "add", client, "-i", keyring)
	cmd.Sensitive = true
	return cmd
}

// AuthGetOrCreateMgr prints the mgr keyring for host, creating the key if needed
func (c Commands) AuthGetOrCreateMgr(host string) shell.Command {
	cmd := c.ceph("auth", "get-or-create", "mgr."+host,
		"mon", "allow profile mgr", "osd", "allow *", "mds", "allow *")
	cmd.Sensitive = true
	return cmd
}

func (c Commands) RealmCreate(client, realm string) shell.Command {
	return c.rgwAdmin(client, "realm", "create", "--rgw-realm="+realm, "--default")
}

func (c Commands) ZonegroupSet(client, zonegroup, infile string) shell.Command {
	return c.rgwAdmin(client, "zonegroup", "set", "--infile="+infile, "--rgw-zonegroup="+zonegroup)
}

func (c Commands) ZoneSet(client, zone, infile string) shell.Command {
	return c.rgwAdmin(client, "zone", "set", "--rgw-zone="+zone, "--infile="+infile)
}

func (c Commands) ZonegroupDefault(client, zonegroup string) shell.Command {
	return c.rgwAdmin(client, "zonegroup", "default", "--rgw-zonegroup="+zonegroup)
}

// DiskPrepare partitions data and journal for a new OSD. storeFlag is
// the output of ObjectStoreFlag.
func (c Commands) DiskPrepare(storeFlag string, encrypted bool, fsType, data, journal string) shell.Command {
	args := []string{"-v", "prepare", "--cluster", c.Cluster}
	if storeFlag != "" {
		args = append(args, storeFlag)
	}
	if encrypted {
		args = append(args, "--dmcrypt")
	}
	args = append(args, "--fs-type", fsType, data, journal)
	return shell.New("ceph-disk", args...)
}

func (c Commands) DiskActivate(device string) shell.Command {
	return shell.New("ceph-disk", "-v", "activate", device)
}

// ObjectStoreFlag maps a requested backend store to the ceph-disk flag.
// The empty store keeps the cluster default. known is false for stores
// strata does not recognise; their flag is passed through anyway.
func ObjectStoreFlag(store types.BackendStore) (flag string, known bool) {
	if store == types.BackendStoreDefault {
		return "", true
	}
	return "--" + string(store), store.Known()
}

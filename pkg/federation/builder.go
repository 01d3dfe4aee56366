package federation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cuemby/strata/pkg/cephadm"
	"github.com/cuemby/strata/pkg/config"
	"github.com/cuemby/strata/pkg/guard"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/marker"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/cuemby/strata/pkg/shell"
	"github.com/cuemby/strata/pkg/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Template IDs rendered by the builder
const (
	TemplateZonegroup    = "radosgw-zonegroup.json"
	TemplateZonegroupMap = "radosgw-zonegroup-map.json"
	TemplateZone         = "radosgw-federated-zone.json"
)

// Options are the node-level settings the builder needs
type Options struct {
	Cluster      string
	Owner        string
	Group        string
	Mode         os.FileMode
	InitStyle    string
	AdminKeyring string

	// ManualFederation leaves realms, zonegroups and zones to the operator.
	ManualFederation bool

	ConfDir string
	LogDir  string
	DataDir string
}

// DefaultOptions returns the standard paths for cluster
func DefaultOptions(cluster string) Options {
	return Options{
		Cluster:      cluster,
		Mode:         0750,
		InitStyle:    "systemd",
		AdminKeyring: fmt.Sprintf("/etc/ceph/%s.client.admin.keyring", cluster),
		ConfDir:      "/etc/ceph",
		LogDir:       "/var/log/radosgw",
		DataDir:      "/var/lib/ceph/radosgw",
	}
}

// Builder declares the radosgw federation resources
type Builder struct {
	fed     config.Federation
	opts    Options
	client  cephadm.Client
	cmds    cephadm.Commands
	secrets *SecretStore
	logger  zerolog.Logger
}

// NewBuilder creates a builder for the federation section fed
func NewBuilder(fed config.Federation, opts Options, client cephadm.Client, secrets *SecretStore) *Builder {
	return &Builder{
		fed:     fed,
		opts:    opts,
		client:  client,
		cmds:    cephadm.Commands{Cluster: opts.Cluster},
		secrets: secrets,
		logger:  log.WithComponent("federation"),
	}
}

// WithLogger replaces the builder's logger
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// instance is one zone instance with every derived name resolved
type instance struct {
	types.ZoneInstance

	identity  string // <zonegroup>-<name>
	client    string
	keyring   string
	zonegroup string
	zone      string
	dir       string
}

func (b *Builder) resolve(inst types.ZoneInstance) instance {
	in := instance{
		ZoneInstance: inst,
		identity:     inst.Identity(),
		client:       "client.radosgw." + inst.Identity(),
		zonegroup:    inst.Zonegroup,
	}
	if b.fed.MultisiteReplication {
		in.keyring = filepath.Join(b.opts.ConfDir, b.opts.Cluster+".client.radosgw.keyring")
		in.zone = inst.Name
	} else {
		in.keyring = filepath.Join(b.opts.ConfDir, fmt.Sprintf("%s.%s.keyring", b.opts.Cluster, in.client))
		in.zone = in.identity
	}
	in.dir = filepath.Join(b.opts.DataDir, fmt.Sprintf("%s-radosgw.%s", b.opts.Cluster, in.identity))
	return in
}

// Build adds every zone instance's resources to g. Instances missing a
// required field are skipped with a warning.
func (b *Builder) Build(g *resource.Graph) error {
	if !b.fed.Enable {
		b.logger.Debug().Msg("Federation disabled")
		return nil
	}

	if err := b.add(g, resource.New(b.opts.LogDir, resource.DirectorySpec{
		Path: b.opts.LogDir, Owner: b.opts.Owner, Group: b.opts.Group, Recursive: true,
	})); err != nil {
		return err
	}

	for i, zi := range b.fed.Instances {
		if missing := zi.Missing(); len(missing) > 0 {
			b.logger.Warn().Int("index", i).Strs("missing", missing).Msg("Zone instance incomplete, skipping")
			continue
		}
		if bad := zi.Malformed(); len(bad) > 0 {
			b.logger.Warn().Int("index", i).Strs("fields", bad).Msg("Zone instance names may not contain dots, skipping")
			continue
		}
		inst := b.resolve(zi)
		steps := [][]*resource.Resource{
			b.layout(inst),
			b.keyResources(inst),
			b.topology(inst),
			{marker.Finalize("radosgw-finalize-"+inst.zone, inst.dir, b.opts.InitStyle)},
		}
		for _, r := range lo.Flatten(steps) {
			if err := b.add(g, r); err != nil {
				return err
			}
		}
	}
	return nil
}

// add declares r unless a resource with its ID already exists; instances
// of one zonegroup share realm, zonegroup and keyring resources.
func (b *Builder) add(g *resource.Graph, r *resource.Resource) error {
	if g.Has(r.ID) {
		return nil
	}
	return g.Add(r)
}

func (b *Builder) layout(inst instance) []*resource.Resource {
	logFile := filepath.Join(b.opts.LogDir, fmt.Sprintf("%s.%s.log", b.opts.Cluster, inst.client))
	return []*resource.Resource{
		resource.New(logFile, resource.FileSpec{Path: logFile, Owner: b.opts.Owner, Group: b.opts.Group}),
		resource.New(inst.dir, resource.DirectorySpec{
			Path: inst.dir, Mode: b.opts.Mode, Owner: b.opts.Owner, Group: b.opts.Group, Recursive: true,
		}),
	}
}

// knownKey returns the instance key from the cluster, or a well-formed
// stored key. Neither lookup mutates anything.
func (b *Builder) knownKey(ctx context.Context, inst instance) (string, bool, error) {
	key, ok, err := b.client.AuthKey(ctx, inst.client)
	if err != nil {
		return "", false, err
	}
	if ok {
		return key, true, nil
	}
	key, ok, err = b.secrets.Load(inst.identity)
	if err != nil || !ok || len(key) != KeyLength {
		return "", false, err
	}
	return key, true, nil
}

func (b *Builder) keyKnown(inst instance) guard.Predicate {
	return guard.Func(inst.client+" key known", func(ctx context.Context) (bool, error) {
		_, ok, err := b.knownKey(ctx, inst)
		return ok, err
	})
}

func (b *Builder) keyCommand(inst instance, build func(key string) shell.Command) func(ctx context.Context) (shell.Command, error) {
	return func(ctx context.Context) (shell.Command, error) {
		key, ok, err := b.knownKey(ctx, inst)
		if err != nil {
			return shell.Command{}, err
		}
		if !ok {
			return shell.Command{}, fmt.Errorf("no key known for %s", inst.client)
		}
		return build(key), nil
	}
}

func (b *Builder) keyResources(inst instance) []*resource.Resource {
	saveID := resource.ID{Kind: resource.KindBlock, Name: "save-radosgw-secret-" + inst.identity}

	// The cluster already has a key that the store does not: remember it.
	check := resource.Block("check-radosgw-secret-"+inst.identity, func(ctx context.Context) error {
		key, ok, err := b.client.AuthKey(ctx, inst.client)
		if err != nil || !ok {
			return err
		}
		return b.secrets.Save(inst.identity, key)
	}).
		OnlyIf(guard.Func(inst.client+" registered with cluster", func(ctx context.Context) (bool, error) {
			_, ok, err := b.client.AuthKey(ctx, inst.client)
			return ok, err
		})).
		NotIf(guard.Func("stored secret matches cluster key", func(ctx context.Context) (bool, error) {
			key, ok, err := b.client.AuthKey(ctx, inst.client)
			if err != nil || !ok {
				return false, err
			}
			stored, found, err := b.secrets.Load(inst.identity)
			return found && stored == key, err
		})).
		MarkSensitive()

	update := resource.New("update-radosgw-secret-"+inst.identity, resource.ExecuteSpec{
		CommandFunc: b.keyCommand(inst, func(key string) shell.Command {
			return b.cmds.KeyringAddKey(inst.keyring, inst.client, key)
		}),
	}).
		OnlyIf(b.keyKnown(inst), guard.FileNonEmpty(inst.keyring)).
		NotIf(guard.Func(inst.keyring+" holds the known key", func(ctx context.Context) (bool, error) {
			want, ok, err := b.knownKey(ctx, inst)
			if err != nil || !ok {
				return false, err
			}
			have, found, err := b.client.KeyringKey(ctx, inst.keyring, inst.client)
			return found && have == want, err
		})).
		MarkSensitive()

	write := resource.New("write-radosgw-secret-"+inst.identity, resource.ExecuteSpec{
		CommandFunc: b.keyCommand(inst, func(key string) shell.Command {
			return b.cmds.KeyringCreateWithKey(inst.keyring, inst.client, key)
		}),
	}).
		OnlyIf(b.keyKnown(inst)).
		NotIf(guard.FileNonEmpty(inst.keyring)).
		MarkSensitive()

	generate := resource.Execute("generate-radosgw-secret-"+inst.identity,
		b.cmds.KeyringGenerate(inst.keyring, inst.client)).
		NotIf(b.keyKnown(inst), guard.FileNonEmpty(inst.keyring)).
		Notify(saveID, resource.ActionRun, resource.Immediate).
		MarkSensitive()

	// shared multisite keyrings need every instance's entity
	addEntity := resource.Execute("update-client-radosgw-secret-"+inst.identity,
		b.cmds.KeyringAddEntity(inst.keyring, inst.client)).
		NotIf(guard.Func(inst.keyring+" has "+inst.client, func(context.Context) (bool, error) {
			data, err := os.ReadFile(inst.keyring)
			if err != nil {
				return false, err
			}
			return strings.Contains(string(data), inst.client), nil
		})).
		Notify(saveID, resource.ActionRun, resource.Immediate).
		MarkSensitive()

	authAdd := resource.Execute("update-"+inst.client+"-auth",
		b.cmds.AuthAdd(b.opts.AdminKeyring, inst.client, inst.keyring)).
		NotIf(guard.Func("cluster auth lists "+inst.client, func(ctx context.Context) (bool, error) {
			entities, err := b.client.AuthEntities(ctx)
			return lo.Contains(entities, inst.client), err
		})).
		MarkSensitive()

	save := resource.New(saveID.Name, resource.BlockSpec{Fn: func(ctx context.Context) error {
		key, ok, err := b.client.KeyringKey(ctx, inst.keyring, inst.client)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%s has no key for %s", inst.keyring, inst.client)
		}
		return b.secrets.Save(inst.identity, key)
	}}).WithAction(resource.ActionNothing).MarkSensitive()

	return []*resource.Resource{check, update, write, generate, addEntity, authAdd, save}
}

// zonegroupBindings are the variables of the zonegroup and zonegroup-map
// documents
func (b *Builder) zonegroupBindings(inst instance) map[string]any {
	zones := lo.Map(b.fed.Instances, func(z types.ZoneInstance, _ int) map[string]any {
		return z.Bindings()
	})
	if b.fed.MultisiteReplication {
		name := b.fed.PrimaryZonegroup()
		return map[string]any{
			"name":                name,
			"master_zone":         name + "-" + b.fed.MasterZone,
			"zones":               zones,
			"endpoints":           []string{b.fed.Instances[0].Endpoint()},
			"s3hostnames":         b.fed.S3Hostnames,
			"s3hostnames_website": b.fed.S3HostnamesWebsite,
		}
	}
	return map[string]any{
		"name":                inst.identity,
		"master_zone":         inst.identity,
		"zones":               zones,
		"endpoints":           []string{inst.Endpoint()},
		"s3hostnames":         inst.S3Hostnames,
		"s3hostnames_website": inst.S3HostnamesWebsite,
	}
}

func (b *Builder) topology(inst instance) []*resource.Resource {
	automatic := guard.Bool("manual federation disabled", !b.opts.ManualFederation)
	realm := inst.RealmOrDefault()

	realmCreate := resource.Execute("realm-create-"+inst.zonegroup, b.cmds.RealmCreate(inst.client, realm)).
		OnlyIf(automatic).
		NotIf(guard.Func("realm "+realm+" listed", func(ctx context.Context) (bool, error) {
			realms, err := b.client.RealmList(ctx, inst.client)
			return lo.Contains(realms, realm), err
		}))

	prefix := inst.zone
	if b.fed.MultisiteReplication {
		prefix = inst.zonegroup
	}
	zonegroupFile := filepath.Join(b.opts.ConfDir, prefix+"-zonegroup.json")
	zonegroupMapFile := filepath.Join(b.opts.ConfDir, prefix+"-zonegroup-map.json")
	bindings := b.zonegroupBindings(inst)

	out := []*resource.Resource{
		realmCreate,
		resource.Template(zonegroupFile, TemplateZonegroup, bindings).
			OnlyIf(automatic).NotIf(guard.FileNonEmpty(zonegroupFile)),
		resource.Template(zonegroupMapFile, TemplateZonegroupMap, bindings).
			OnlyIf(automatic).NotIf(guard.FileNonEmpty(zonegroupMapFile)),
	}
	if !b.fed.EnableZonegroupsZones {
		return out
	}

	zoneFile := filepath.Join(b.opts.ConfDir, inst.zone+"-zone.json")
	return append(out,
		resource.Template(zoneFile, TemplateZone, map[string]any{
			"zonegroup":  inst.zonegroup,
			"zone":       inst.zone,
			"secret_key": "",
			"access_key": "",
		}).OnlyIf(automatic).NotIf(guard.FileNonEmpty(zoneFile)),

		resource.Execute("zonegroup-set-"+inst.zonegroup, b.cmds.ZonegroupSet(inst.client, inst.zonegroup, zonegroupFile)).
			OnlyIf(automatic).
			NotIf(guard.Func("zonegroup "+inst.zonegroup+" exists", func(ctx context.Context) (bool, error) {
				name, ok, err := b.client.ZonegroupName(ctx, inst.client, inst.zonegroup)
				return ok && name == inst.zonegroup, err
			})),

		resource.Execute("zone-set-"+inst.zone, b.cmds.ZoneSet(inst.client, inst.zone, zoneFile)).
			OnlyIf(automatic).
			NotIf(guard.Func("zone "+inst.zone+" exists", func(ctx context.Context) (bool, error) {
				name, ok, err := b.client.ZoneName(ctx, inst.client, inst.zone)
				return ok && name == inst.zone, err
			})),

		resource.Execute("create-zonegroup-defaults-"+inst.zonegroup, b.cmds.ZonegroupDefault(inst.client, inst.zonegroup)).
			OnlyIf(automatic).
			NotIf(guard.Func("zonegroup "+inst.zonegroup+" is default", func(ctx context.Context) (bool, error) {
				name, err := b.client.DefaultZonegroup(ctx, inst.client)
				return name == inst.zonegroup, err
			})),
	)
}

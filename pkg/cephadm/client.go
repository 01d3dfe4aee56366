package cephadm

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/cuemby/strata/pkg/shell"
	"github.com/samber/lo"
)

// GPT partition type GUIDs written by ceph-disk
const (
	GUIDOSDPlain       = "4fbd7e29-9d25-41b8-afd0-062c0ceff05d"
	GUIDOSDDmcrypt     = "4fbd7e29-9d25-41b8-afd0-5ec00ceff05d"
	GUIDJournalPlain   = "45b0969e-9b03-4f30-b4c6-b4b80ceff106"
	GUIDJournalDmcrypt = "45b0969e-9b03-4f30-b4c6-5ec00ceff106"
)

// PartitionSlots is how many partition entries the type probe inspects
const PartitionSlots = 31

// Client answers read-only questions about the cluster and local disks.
// Absence is reported through the boolean results, not as an error; an
// error means the question could not be answered.
type Client interface {
	// AuthKey returns the cluster key of an auth entity
	AuthKey(ctx context.Context, entity string) (string, bool, error)

	// AuthEntities lists every entity known to the cluster
	AuthEntities(ctx context.Context) ([]string, error)

	RealmList(ctx context.Context, client string) ([]string, error)
	ZonegroupName(ctx context.Context, client, zonegroup string) (string, bool, error)
	ZoneName(ctx context.Context, client, zone string) (string, bool, error)

	// DefaultZonegroup returns the name of the zonegroup currently marked default
	DefaultZonegroup(ctx context.Context, client string) (string, error)

	// KeyringKey reads the key of entity from a local keyring file
	KeyringKey(ctx context.Context, keyring, entity string) (string, bool, error)

	// ListDevice returns the ceph-disk listing lines for a whole device
	ListDevice(ctx context.Context, device string) ([]string, error)

	// PartitionTypes returns the lower-cased type GUIDs of the device's
	// first PartitionSlots partitions
	PartitionTypes(ctx context.Context, device string) ([]string, error)

	// HasCephPartition reports whether any partition label mentions ceph
	HasCephPartition(ctx context.Context, device string) (bool, error)
}

// CLI implements Client by running the ceph command line tools
type CLI struct {
	runner  shell.Runner
	cluster string
}

var _ Client = (*CLI)(nil)

// NewCLI creates a client for the named cluster
func NewCLI(runner shell.Runner, cluster string) *CLI {
	return &CLI{runner: runner, cluster: cluster}
}

func (c *CLI) ceph(args ...string) shell.Command {
	return shell.New("ceph", append([]string{"--cluster", c.cluster}, args...)...)
}

func (c *CLI) rgwAdmin(client string, args ...string) shell.Command {
	return shell.New("radosgw-admin", append([]string{"--cluster", c.cluster, "--name=" + client}, args...)...)
}

// probe runs cmd and returns stdout, or ok=false when it exited non-zero
func (c *CLI) probe(ctx context.Context, cmd shell.Command) (string, bool, error) {
	res, err := c.runner.Run(ctx, cmd)
	if err != nil {
		return "", false, err
	}
	if !res.Success() {
		return "", false, nil
	}
	return res.Stdout, true, nil
}

func (c *CLI) AuthKey(ctx context.Context, entity string) (string, bool, error) {
	cmd := c.ceph("auth", "get-key", entity)
	cmd.Sensitive = true
	out, ok, err := c.probe(ctx, cmd)
	key := strings.TrimSpace(out)
	if err != nil || !ok || key == "" {
		return "", false, err
	}
	return key, true, nil
}

type authEntry struct {
	Entity string `json:"entity"`
}

type authDump struct {
	AuthDump []authEntry `json:"auth_dump"`
}

func (c *CLI) AuthEntities(ctx context.Context) ([]string, error) {
	cmd := c.ceph("auth", "ls", "--format", "json")
	cmd.Sensitive = true
	out, err := shell.Output(ctx, c.runner, cmd)
	if err != nil {
		return nil, err
	}
	var dump authDump
	if err := json.Unmarshal([]byte(out), &dump); err != nil {
		return nil, fmt.Errorf("failed to parse auth listing: %w", err)
	}
	return lo.Map(dump.AuthDump, func(e authEntry, _ int) string {
		return e.Entity
	}), nil
}

func (c *CLI) RealmList(ctx context.Context, client string) ([]string, error) {
	out, err := shell.Output(ctx, c.runner, c.rgwAdmin(client, "realm", "list"))
	if err != nil {
		return nil, err
	}
	var list struct {
		Realms []string `json:"realms"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		return nil, fmt.Errorf("failed to parse realm list: %w", err)
	}
	return list.Realms, nil
}

type named struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *CLI) getNamed(ctx context.Context, cmd shell.Command) (string, bool, error) {
	out, ok, err := c.probe(ctx, cmd)
	if err != nil || !ok {
		return "", false, err
	}
	var obj named
	if err := json.Unmarshal([]byte(out), &obj); err != nil {
		return "", false, fmt.Errorf("failed to parse %s output: %w", cmd.Name, err)
	}
	return obj.Name, obj.Name != "", nil
}

func (c *CLI) ZonegroupName(ctx context.Context, client, zonegroup string) (string, bool, error) {
	return c.getNamed(ctx, c.rgwAdmin(client, "zonegroup", "get", "--rgw-zonegroup="+zonegroup))
}

func (c *CLI) ZoneName(ctx context.Context, client, zone string) (string, bool, error) {
	return c.getNamed(ctx, c.rgwAdmin(client, "zone", "get", "--rgw-zone="+zone))
}

func (c *CLI) DefaultZonegroup(ctx context.Context, client string) (string, error) {
	name, _, err := c.getNamed(ctx, c.rgwAdmin(client, "zonegroup", "get"))
	return name, err
}

func (c *CLI) KeyringKey(ctx context.Context, keyring, entity string) (string, bool, error) {
	cmd := shell.New("ceph-authtool", keyring, "--name="+entity, "--print-key")
	cmd.Sensitive = true
	out, ok, err := c.probe(ctx, cmd)
	key := strings.TrimSpace(out)
	if err != nil || !ok || key == "" {
		return "", false, err
	}
	return key, true, nil
}

func (c *CLI) ListDevice(ctx context.Context, device string) ([]string, error) {
	out, err := shell.Output(ctx, c.runner, shell.New("ceph-disk", "list", strings.TrimPrefix(device, "/dev/")))
	if err != nil {
		return nil, err
	}
	return nonEmptyLines(out), nil
}

var guidCode = regexp.MustCompile(`(?i)partition guid code:\s*([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})`)

func (c *CLI) PartitionTypes(ctx context.Context, device string) ([]string, error) {
	args := make([]string, 0, PartitionSlots+1)
	for i := 1; i <= PartitionSlots; i++ {
		args = append(args, fmt.Sprintf("-i%d", i))
	}
	args = append(args, device)

	res, err := c.runner.Run(ctx, shell.New("sgdisk", args...))
	if err != nil {
		return nil, err
	}
	matches := guidCode.FindAllStringSubmatch(res.Stdout, -1)
	if len(matches) == 0 && !res.Success() {
		return nil, res.Err()
	}
	return lo.Map(matches, func(m []string, _ int) string {
		return strings.ToLower(m[1])
	}), nil
}

var cephLabel = regexp.MustCompile(`(?m)^ .*ceph`)

func (c *CLI) HasCephPartition(ctx context.Context, device string) (bool, error) {
	out, err := shell.Output(ctx, c.runner, shell.New("sgdisk", "--print", device))
	if err != nil {
		return false, err
	}
	return cephLabel.MatchString(out), nil
}

func nonEmptyLines(s string) []string {
	return lo.Filter(strings.Split(s, "\n"), func(l string, _ int) bool {
		return strings.TrimSpace(l) != ""
	})
}

package osd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/cuemby/strata/pkg/attributes"
	"github.com/cuemby/strata/pkg/cephadm"
	"github.com/cuemby/strata/pkg/guard"
	"github.com/cuemby/strata/pkg/log"
	"github.com/cuemby/strata/pkg/metrics"
	"github.com/cuemby/strata/pkg/resource"
	"github.com/cuemby/strata/pkg/shell"
	"github.com/cuemby/strata/pkg/types"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

const (
	// DevicesPath is the attribute path of the device descriptor list
	DevicesPath = "ceph.osd.devices"

	// StatusPath maps a device key to its recorded status. It lives outside
	// the descriptor list so that recording a status never pins the list
	// in the override tier.
	StatusPath = "ceph.osd.device_status"

	cephDataLabel = "ceph data"
)

var errNoNewPartition = errors.New("no new ceph data partition listed")

// Options configures a Planner
type Options struct {
	Cluster string
	Dmcrypt bool
	FsType  string
	Mode    os.FileMode

	// ScriptsDir holds OSD and journal maintenance helpers
	ScriptsDir string

	// SysBlockDir is where whole block devices are listed. Devices missing
	// there are never diffed, the whole device is activated.
	SysBlockDir string

	// ProbeAttempts and ProbeDelay bound the re-listing after prepare
	// while udev settles.
	ProbeAttempts uint
	ProbeDelay    time.Duration

	// Settle is slept after activation
	Settle time.Duration
}

// DefaultOptions returns the production settings
func DefaultOptions() Options {
	return Options{
		Cluster:       "ceph",
		FsType:        "xfs",
		Mode:          0750,
		ScriptsDir:    "/etc/ceph/scripts",
		SysBlockDir:   "/sys/block",
		ProbeAttempts: 5,
		ProbeDelay:    time.Second,
		Settle:        3 * time.Second,
	}
}

// Planner adds OSD provisioning resources to a graph
type Planner struct {
	store   *attributes.Store
	client  cephadm.Client
	runner  shell.Runner
	cmds    cephadm.Commands
	opts    Options
	resolve func(string) (string, error)
	logger  zerolog.Logger
}

// NewPlanner creates a planner. store receives the deployed status of
// each prepared device.
func NewPlanner(store *attributes.Store, client cephadm.Client, runner shell.Runner, opts Options) *Planner {
	return &Planner{
		store:   store,
		client:  client,
		runner:  runner,
		cmds:    cephadm.Commands{Cluster: opts.Cluster},
		opts:    opts,
		resolve: filepath.EvalSymlinks,
		logger:  log.WithComponent("osd"),
	}
}

// WithLogger replaces the planner's logger
func (p *Planner) WithLogger(logger zerolog.Logger) *Planner {
	p.logger = logger
	return p
}

// Devices decodes the device descriptors from the store and overlays the
// statuses recorded under StatusPath.
func (p *Planner) Devices() ([]types.DeviceDescriptor, error) {
	var devices []types.DeviceDescriptor
	if err := p.store.Decode(DevicesPath, &devices); err != nil {
		if errors.Is(err, attributes.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	var recorded map[string]types.DeviceStatus
	if err := p.store.Decode(StatusPath, &recorded); err != nil && !errors.Is(err, attributes.ErrNotFound) {
		return nil, fmt.Errorf("failed to read %s: %w", StatusPath, err)
	}
	for i, dev := range devices {
		if dev.Status != types.DeviceStatusEmpty || dev.Data == "" {
			continue
		}
		if status, ok := recorded[StatusKey(dev.Data)]; ok {
			devices[i].Status = status
		}
	}
	return devices, nil
}

var statusKeyReplacer = strings.NewReplacer(".", "_")

// StatusKey is the key of a data device under StatusPath. Dots would split
// the attribute path, so they become underscores.
func StatusKey(data string) string {
	return statusKeyReplacer.Replace(strings.TrimPrefix(data, "/dev/"))
}

// StatusAttribute is the attribute path holding the status of data
func StatusAttribute(data string) string {
	return StatusPath + "." + StatusKey(data)
}

// StatusResourceName names the block that records data as deployed
func StatusResourceName(data string) string {
	return "save osd_device status " + data
}

// PrepareResourceName names the block that prepares and activates data
func PrepareResourceName(data string) string {
	return "ceph-disk-prepare on " + data
}

// Plan declares the disk tooling, the scripts directory and, for every
// device descriptor that still needs it, a prepare+activate block whose
// success schedules the status write. Descriptors that are deployed or
// incomplete are skipped with a log line.
func (p *Planner) Plan(g *resource.Graph, devices []types.DeviceDescriptor) error {
	base := []*resource.Resource{
		resource.Package("gdisk", "").WithAction(resource.ActionUpgrade),
		resource.Package("cryptsetup", "").WithAction(resource.ActionUpgrade).
			OnlyIf(guard.Bool("ceph.osd.dmcrypt", p.opts.Dmcrypt)),
		resource.New(p.opts.ScriptsDir, resource.DirectorySpec{Path: p.opts.ScriptsDir, Mode: p.opts.Mode, Recursive: true}),
	}
	for _, r := range base {
		if g.Has(r.ID) {
			continue
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}

	if len(devices) == 0 {
		p.logger.Info().Msg("No OSD devices configured")
		return nil
	}

	for i, dev := range devices {
		logger := p.logger.With().Int("index", i).Str("data", dev.Data).Logger()
		if dev.Deployed() {
			logger.Info().Msgf("OSD device %s has already been setup", dev.Data)
			continue
		}
		if missing := dev.Missing(); len(missing) > 0 {
			logger.Warn().Strs("missing", missing).Msg("OSD device missing data & journal attributes, skipping")
			continue
		}

		flag, known := cephadm.ObjectStoreFlag(dev.BackendStore)
		if !known {
			logger.Warn().Str("backendstore", string(dev.BackendStore)).
				Msg("Unknown OSD objectstore, passing it through")
		}

		prepareID := resource.ID{Kind: resource.KindBlock, Name: PrepareResourceName(dev.Data)}
		if g.Has(prepareID) {
			logger.Warn().Msg("OSD device listed more than once, skipping the duplicate")
			continue
		}

		status := resource.Block(StatusResourceName(dev.Data), p.markDeployed(dev.Data)).
			WithAction(resource.ActionNothing)

		prepare := resource.Block(prepareID.Name, func(ctx context.Context) error {
			return p.prepare(ctx, dev, flag)
		}).
			NotIf(p.partitionTypeProbe(dev), p.cephLabelProbe(dev)).
			Notify(status.ID, resource.ActionRun, resource.Delayed)

		if err := g.Add(prepare); err != nil {
			return err
		}
		if err := g.Add(status); err != nil {
			return err
		}
	}
	return nil
}

// partitionTypeGUID is the OSD data partition type for the device's
// encryption mode
func partitionTypeGUID(dev types.DeviceDescriptor) string {
	if dev.Encrypted {
		return cephadm.GUIDOSDDmcrypt
	}
	return cephadm.GUIDOSDPlain
}

func (p *Planner) partitionTypeProbe(dev types.DeviceDescriptor) guard.Predicate {
	want := partitionTypeGUID(dev)
	return guard.Func(fmt.Sprintf("%s has a %s partition", dev.Data, want), func(ctx context.Context) (bool, error) {
		guids, err := p.client.PartitionTypes(ctx, dev.Data)
		if err != nil {
			return false, err
		}
		return lo.Contains(guids, want), nil
	})
}

func (p *Planner) cephLabelProbe(dev types.DeviceDescriptor) guard.Predicate {
	return guard.Func(dev.Data+" has a ceph partition label", func(ctx context.Context) (bool, error) {
		return p.client.HasCephPartition(ctx, dev.Data)
	})
}

func (p *Planner) markDeployed(data string) func(ctx context.Context) error {
	return func(context.Context) error {
		if err := p.store.SetOverride(StatusAttribute(data), string(types.DeviceStatusDeployed)); err != nil {
			return fmt.Errorf("failed to record device status: %w", err)
		}
		return nil
	}
}

func (p *Planner) prepare(ctx context.Context, dev types.DeviceDescriptor, storeFlag string) error {
	data, err := p.resolve(dev.Data)
	if err != nil {
		data = dev.Data
	}
	logger := p.logger.With().Str("data", data).Logger()

	// Only whole devices listed under /sys/block can be diffed.
	_, statErr := os.Stat(filepath.Join(p.opts.SysBlockDir, strings.TrimPrefix(data, "/dev/")))
	partitionable := statErr == nil

	var before []string
	if partitionable {
		before, err = p.client.ListDevice(ctx, data)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to list device before prepare")
		}
	}

	res, err := p.runner.Run(ctx, p.cmds.DiskPrepare(storeFlag, dev.Encrypted, p.opts.FsType, data, dev.Journal))
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}

	target := data
	if partitionable {
		part, err := p.newDataPartition(ctx, data, before)
		if err != nil {
			logger.Warn().Err(err).Msg("Could not identify the new data partition, activating the whole device")
		} else {
			target = part
		}
	}

	logger.Info().Str("device", target).Msg("Activating OSD")
	res, err = p.runner.Run(ctx, p.cmds.DiskActivate(target))
	if err != nil {
		return err
	}
	if err := res.Err(); err != nil {
		return err
	}
	metrics.OSDDevicesPrepared.Inc()

	select {
	case <-time.After(p.opts.Settle):
	case <-ctx.Done():
	}
	return nil
}

// newDataPartition lists the device until exactly one new "ceph data"
// entry appears. More than one new entry is ambiguous and not retried.
func (p *Planner) newDataPartition(ctx context.Context, data string, before []string) (string, error) {
	var found string
	var ambiguous error

	// zero attempts would mean retry forever
	attempts := max(p.opts.ProbeAttempts, 1)

	err := retry.Do(
		func() error {
			after, err := p.client.ListDevice(ctx, data)
			if err != nil {
				return err
			}
			added := lo.Filter(lo.Without(after, before...), func(line string, _ int) bool {
				return strings.Contains(line, cephDataLabel)
			})
			switch len(added) {
			case 0:
				return errNoNewPartition
			case 1:
				found = strings.Fields(added[0])[0]
				return nil
			}
			ambiguous = fmt.Errorf("%d new ceph data partitions listed on %s", len(added), data)
			return ambiguous
		},
		retry.Attempts(attempts),
		retry.Delay(p.opts.ProbeDelay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool { return ambiguous == nil }),
	)
	if err != nil {
		return "", err
	}
	return found, nil
}

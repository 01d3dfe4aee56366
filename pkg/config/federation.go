package config

import "github.com/cuemby/strata/pkg/types"

// Federation is the ceph.pools.radosgw section driving multi-zone radosgw
type Federation struct {
	Enable bool `yaml:"federated_enable"`

	// Instances are not struct-validated; an instance missing a field is
	// skipped with a warning by the builder.
	Instances []types.ZoneInstance `yaml:"federated_zone_instances"`

	// MultisiteReplication makes every instance a zone of the first
	// zonegroup, sharing one keyring and one zonegroup document.
	MultisiteReplication bool     `yaml:"federated_multisite_replication"`
	Zonegroups           []string `yaml:"federated_zonegroups"`
	MasterZone           string   `yaml:"federated_master_zone"`

	// EnableZonegroupsZones turns on zone documents and the cluster-side
	// zonegroup/zone registration commands.
	EnableZonegroupsZones bool `yaml:"federated_enable_zonegroups_zones"`

	S3Hostnames        []string `yaml:"s3hostnames"`
	S3HostnamesWebsite []string `yaml:"s3hostnames_website"`
}

// PrimaryZonegroup is the first configured zonegroup, falling back to the
// first instance's zonegroup.
func (f Federation) PrimaryZonegroup() string {
	if len(f.Zonegroups) > 0 {
		return f.Zonegroups[0]
	}
	if len(f.Instances) > 0 {
		return f.Instances[0].Zonegroup
	}
	return ""
}

package types

import (
	"fmt"
	"strings"
)

// DeviceStatus is the provisioning status of an OSD device descriptor
type DeviceStatus string

const (
	DeviceStatusEmpty    DeviceStatus = ""
	DeviceStatusDeployed DeviceStatus = "deployed"
)

// BackendStore is the OSD object store requested for a device
type BackendStore string

const (
	BackendStoreDefault   BackendStore = ""
	BackendStoreBluestore BackendStore = "bluestore"
	BackendStoreFilestore BackendStore = "filestore"
)

// Known reports whether the store is one strata recognises. Unknown stores
// are still passed through to the disk tooling.
func (b BackendStore) Known() bool {
	switch b {
	case BackendStoreDefault, BackendStoreBluestore, BackendStoreFilestore:
		return true
	}
	return false
}

// DeviceDescriptor is one entry of ceph.osd.devices
type DeviceDescriptor struct {
	// Data is the data device, e.g. /dev/sdb or a /dev/disk/by-id link
	Data string `yaml:"data" json:"data"`

	// Journal is the journal device; it may be the data device itself
	Journal string `yaml:"journal" json:"journal"`

	BackendStore BackendStore `yaml:"backendstore,omitempty" json:"backendstore,omitempty"`
	Encrypted    bool         `yaml:"encrypted,omitempty" json:"encrypted,omitempty"`
	Status       DeviceStatus `yaml:"status,omitempty" json:"status,omitempty"`

	// Type, DataType and JournalType are informational (hdd, ssd, nvme)
	Type        string `yaml:"type,omitempty" json:"type,omitempty"`
	DataType    string `yaml:"data_type,omitempty" json:"data_type,omitempty"`
	JournalType string `yaml:"journal_type,omitempty" json:"journal_type,omitempty"`
}

// Deployed reports whether the device was already prepared and activated
func (d DeviceDescriptor) Deployed() bool {
	return d.Status == DeviceStatusDeployed
}

// Missing returns the names of required fields that are empty
func (d DeviceDescriptor) Missing() []string {
	var missing []string
	if d.Data == "" {
		missing = append(missing, "data")
	}
	if d.Journal == "" {
		missing = append(missing, "journal")
	}
	return missing
}

// ZoneInstance is one entry of ceph.pools.radosgw.federated_zone_instances:
// a radosgw endpoint inside a zonegroup.
type ZoneInstance struct {
	Zonegroup string `yaml:"zonegroup" json:"zonegroup"`
	Name      string `yaml:"name" json:"name"`
	URL       string `yaml:"url" json:"url"`
	Port      int    `yaml:"port" json:"port"`

	// Realm defaults to "gold" when empty
	Realm string `yaml:"realm,omitempty" json:"realm,omitempty"`

	S3Hostnames        []string `yaml:"s3hostnames,omitempty" json:"s3hostnames,omitempty"`
	S3HostnamesWebsite []string `yaml:"s3hostnames_website,omitempty" json:"s3hostnames_website,omitempty"`
}

// DefaultRealm is used for zone instances that do not name a realm
const DefaultRealm = "gold"

// Identity is the combined "<zonegroup>-<name>" identity of the instance
func (z ZoneInstance) Identity() string {
	return fmt.Sprintf("%s-%s", z.Zonegroup, z.Name)
}

// RealmOrDefault returns the instance realm or DefaultRealm
func (z ZoneInstance) RealmOrDefault() string {
	if z.Realm == "" {
		return DefaultRealm
	}
	return z.Realm
}

// Endpoint returns the instance's HTTP endpoint
func (z ZoneInstance) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/", z.URL, z.Port)
}

// Missing returns the names of required fields that are empty
func (z ZoneInstance) Missing() []string {
	var missing []string
	if z.Zonegroup == "" {
		missing = append(missing, "zonegroup")
	}
	if z.Name == "" {
		missing = append(missing, "name")
	}
	if z.URL == "" {
		missing = append(missing, "url")
	}
	if z.Port == 0 {
		missing = append(missing, "port")
	}
	return missing
}

// Malformed returns the names of fields that cannot be used as part of an
// attribute path segment because they contain a dot
func (z ZoneInstance) Malformed() []string {
	var bad []string
	if strings.Contains(z.Zonegroup, ".") {
		bad = append(bad, "zonegroup")
	}
	if strings.Contains(z.Name, ".") {
		bad = append(bad, "name")
	}
	return bad
}

// Bindings returns the instance as template bindings
func (z ZoneInstance) Bindings() map[string]any {
	return map[string]any{
		"zonegroup":           z.Zonegroup,
		"name":                z.Name,
		"url":                 z.URL,
		"port":                z.Port,
		"realm":               z.RealmOrDefault(),
		"s3hostnames":         z.S3Hostnames,
		"s3hostnames_website": z.S3HostnamesWebsite,
	}
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/cuemby/strata/pkg/attributes"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// nodeValidate is the validator instance for node configuration.
var nodeValidate *validator.Validate

func init() {
	nodeValidate = validator.New(validator.WithRequiredStructEnabled())
	nodeValidate.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	_ = nodeValidate.RegisterValidation("filemode", validateFileMode)
}

// validateFileMode accepts octal permission strings such as "0750".
func validateFileMode(fl validator.FieldLevel) bool {
	_, err := parseMode(fl.Field().String())
	return err == nil
}

func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o7777 {
		return 0, fmt.Errorf("invalid file mode %q", s)
	}
	return os.FileMode(v), nil
}

// Node is the typed view of the merged attribute tree
type Node struct {
	Hostname       string `yaml:"hostname" validate:"required,hostname_rfc1123"`
	Platform       string `yaml:"platform"`
	PlatformFamily string `yaml:"platform_family" validate:"required"`
	Ceph           Ceph   `yaml:"ceph"`
}

// Ceph holds the ceph.* attributes strata acts on
type Ceph struct {
	Cluster       string `yaml:"cluster" validate:"required,excludesall=/"`
	Owner         string `yaml:"owner" validate:"required"`
	Group         string `yaml:"group" validate:"required"`
	Mode          string `yaml:"mode" validate:"required,filemode"`
	InitStyle     string `yaml:"init_style" validate:"required,oneof=systemd upstart sysvinit"`
	PackageAction string `yaml:"package_action" validate:"required,oneof=install upgrade"`

	Packages          []string `yaml:"packages"`
	VersionedPackages []string `yaml:"versioned_packages"`

	// ExactVersion is either one version for every versioned package or a
	// map of package name to version with an optional "default" entry.
	ExactVersion any  `yaml:"exactversion"`
	InstallDebug bool `yaml:"install_debug"`

	// EncryptedDataBags seals persisted secrets with the secret key file.
	EncryptedDataBags bool `yaml:"encrypted_data_bags"`

	Keyring struct {
		Admin string `yaml:"admin"`
	} `yaml:"keyring"`

	Mon struct {
		InitStyle string `yaml:"init_style" validate:"omitempty,oneof=systemd upstart sysvinit"`
	} `yaml:"mon"`

	Mgr struct {
		Enable    bool     `yaml:"enable"`
		InitStyle string   `yaml:"init_style" validate:"omitempty,oneof=systemd upstart sysvinit"`
		Packages  []string `yaml:"packages"`
	} `yaml:"mgr"`

	OSD struct {
		Dmcrypt  bool     `yaml:"dmcrypt"`
		FsType   string   `yaml:"fs_type" validate:"required"`
		Packages []string `yaml:"packages"`
	} `yaml:"osd"`

	Radosgw struct {
		Port             int      `yaml:"port" validate:"gte=0,lte=65535"`
		InitStyle        string   `yaml:"init_style" validate:"omitempty,oneof=systemd upstart sysvinit"`
		ManualFederation bool     `yaml:"manual_federation"`
		Packages         []string `yaml:"packages"`
	} `yaml:"radosgw"`

	Pools struct {
		Radosgw Federation `yaml:"radosgw"`
	} `yaml:"pools"`

	// Tuning is passed through untouched.
	Tuning map[string]any `yaml:"tuning"`
}

// FileMode returns the configured directory mode
func (c Ceph) FileMode() os.FileMode {
	m, err := parseMode(c.Mode)
	if err != nil {
		return 0750
	}
	return m
}

// AdminKeyring returns the admin keyring path for the cluster
func (c Ceph) AdminKeyring() string {
	path := c.Keyring.Admin
	if path == "" {
		path = "/etc/ceph/$cluster.client.admin.keyring"
	}
	return strings.ReplaceAll(path, "$cluster", c.Cluster)
}

// Validate checks the node configuration
func (n *Node) Validate() error {
	err := nodeValidate.Struct(n)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var result *multierror.Error
	for _, fe := range verrs {
		result = multierror.Append(result, fmt.Errorf("%s: failed %q check (value %v)",
			attributePath(fe.Namespace()), fe.Tag(), fe.Value()))
	}
	return result.ErrorOrNil()
}

// attributePath turns "Node.ceph.mgr.init_style" into "ceph.mgr.init_style"
func attributePath(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Decode builds the typed node view from the store and validates it.
// Per-role init styles fall back to ceph.init_style.
func Decode(store *attributes.Store) (*Node, error) {
	var n Node
	if err := store.DecodeMerged(&n); err != nil {
		return nil, err
	}
	for _, style := range []*string{&n.Ceph.Mon.InitStyle, &n.Ceph.Mgr.InitStyle, &n.Ceph.Radosgw.InitStyle} {
		if *style == "" {
			*style = n.Ceph.InitStyle
		}
	}
	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("invalid node attributes: %w", err)
	}
	return &n, nil
}

// Defaults returns the default tier for a platform family
func Defaults(family string) (map[string]any, error) {
	var doc struct {
		Common   map[string]any            `yaml:"common"`
		Families map[string]map[string]any `yaml:"families"`
	}
	if err := yaml.Unmarshal(defaultsYAML, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse embedded defaults: %w", err)
	}

	return attributes.Merge(doc.Common, doc.Families[family]), nil
}

// LoadDocument reads a YAML attribute document
func LoadDocument(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if doc == nil {
		doc = map[string]any{}
	}
	return doc, nil
}

// Sources names the inputs of the configuration tiers
type Sources struct {
	// Roles are applied in order, later documents winning.
	Roles       []string
	Environment string
	Facts       Facts
}

// Load fills the default, role and environment tiers of store. Every
// unreadable document is reported, not just the first.
func Load(store *attributes.Store, src Sources) error {
	defaults, err := Defaults(src.Facts.PlatformFamily)
	if err != nil {
		return err
	}

	var result *multierror.Error

	// facts sit on top of the defaults within the default tier
	if err := store.SetLayer(attributes.TierDefault, attributes.Merge(defaults, src.Facts.Attributes())); err != nil {
		return err
	}

	var docs []map[string]any
	for _, path := range src.Roles {
		doc, err := LoadDocument(path)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := store.SetLayer(attributes.TierRole, attributes.Merge(docs...)); err != nil {
		return err
	}

	if src.Environment != "" {
		doc, err := LoadDocument(src.Environment)
		if err != nil {
			result = multierror.Append(result, err)
		} else if err := store.SetLayer(attributes.TierEnvironment, doc); err != nil {
			return err
		}
	}

	return result.ErrorOrNil()
}

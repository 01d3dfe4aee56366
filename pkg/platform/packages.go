package platform

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/cuemby/strata/pkg/shell"
)

// PackageAction is what Ensure should do with a package
type PackageAction string

const (
	PackageInstall PackageAction = "install"
	PackageUpgrade PackageAction = "upgrade"
)

// PackageManager installs and upgrades OS packages. Ensure is a no-op when
// the package already satisfies the request.
type PackageManager interface {
	Ensure(ctx context.Context, name, version string, action PackageAction) (changed bool, err error)
}

// NewPackageManager returns the package manager for a platform family
func NewPackageManager(family string, runner shell.Runner) (PackageManager, error) {
	switch family {
	case "debian":
		return &Apt{runner: runner}, nil
	case "rhel", "fedora", "suse":
		return &Yum{runner: runner}, nil
	}
	return nil, fmt.Errorf("unsupported platform family %q", family)
}

// Apt manages packages with dpkg and apt-get
type Apt struct {
	runner shell.Runner
}

// NewApt creates an apt package manager
func NewApt(runner shell.Runner) *Apt {
	return &Apt{runner: runner}
}

var aptCandidate = regexp.MustCompile(`(?m)^\s*Candidate:\s*(\S+)`)

func (a *Apt) installed(ctx context.Context, name string) (string, error) {
	res, err := a.runner.Run(ctx, shell.New("dpkg-query", "-W", "-f=${Status} ${Version}", name))
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", nil
	}
	fields := strings.Fields(res.Stdout)
	// "install ok installed 17.2.6-1jammy"
	if len(fields) < 4 || fields[2] != "installed" {
		return "", nil
	}
	return fields[3], nil
}

func (a *Apt) candidate(ctx context.Context, name string) (string, error) {
	out, err := shell.Output(ctx, a.runner, shell.New("apt-cache", "policy", name))
	if err != nil {
		return "", fmt.Errorf("failed to query candidate for %s: %w", name, err)
	}
	m := aptCandidate.FindStringSubmatch(out)
	if m == nil || m[1] == "(none)" {
		return "", nil
	}
	return m[1], nil
}

// Ensure implements PackageManager
func (a *Apt) Ensure(ctx context.Context, name, version string, action PackageAction) (bool, error) {
	current, err := a.installed(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", name, err)
	}

	target := name
	switch {
	case version != "":
		if current == version {
			return false, nil
		}
		target = name + "=" + version
	case current != "" && action == PackageInstall:
		return false, nil
	case current != "" && action == PackageUpgrade:
		candidate, err := a.candidate(ctx, name)
		if err != nil {
			return false, err
		}
		if candidate == "" || !Newer(candidate, current) {
			return false, nil
		}
	}

	cmd := shell.New("apt-get", "-q", "-y", "-o", "Dpkg::Options::=--force-confold", "install", target)
	cmd.Env = []string{"DEBIAN_FRONTEND=noninteractive"}
	if _, err := shell.Output(ctx, a.runner, cmd); err != nil {
		return false, err
	}
	return true, nil
}

// Yum manages packages with rpm and yum
type Yum struct {
	runner shell.Runner
}

// NewYum creates a yum package manager
func NewYum(runner shell.Runner) *Yum {
	return &Yum{runner: runner}
}

func (y *Yum) installed(ctx context.Context, name string) (string, error) {
	res, err := y.runner.Run(ctx, shell.New("rpm", "-q", "--qf", "%{VERSION}-%{RELEASE}", name))
	if err != nil {
		return "", err
	}
	if !res.Success() {
		return "", nil
	}
	return strings.TrimSpace(res.Stdout), nil
}

// Ensure implements PackageManager
func (y *Yum) Ensure(ctx context.Context, name, version string, action PackageAction) (bool, error) {
	current, err := y.installed(ctx, name)
	if err != nil {
		return false, fmt.Errorf("failed to query %s: %w", name, err)
	}

	verb := "install"
	target := name
	switch {
	case version != "":
		if current == version || strings.HasPrefix(current, version+"-") {
			return false, nil
		}
		target = name + "-" + version
		if current != "" {
			verb = "downgrade"
			if Newer(version, current) {
				verb = "update"
			}
		}
	case current != "" && action == PackageInstall:
		return false, nil
	case current != "" && action == PackageUpgrade:
		// check-update exits 100 when an update is available
		res, err := y.runner.Run(ctx, shell.New("yum", "-q", "check-update", name))
		if err != nil {
			return false, fmt.Errorf("failed to check updates for %s: %w", name, err)
		}
		switch res.ExitCode {
		case 0:
			return false, nil
		case 100:
			verb = "update"
		default:
			return false, res.Err()
		}
	}

	if _, err := shell.Output(ctx, y.runner, shell.New("yum", "-q", "-y", verb, target)); err != nil {
		return false, err
	}
	return true, nil
}

// Newer reports whether version a is newer than b. Distribution versions
// are compared as semantic versions after dropping the epoch and release
// suffix; when either does not parse, any difference counts as newer.
func Newer(a, b string) bool {
	va, errA := semver.NewVersion(upstreamVersion(a))
	vb, errB := semver.NewVersion(upstreamVersion(b))
	if errA != nil || errB != nil {
		return a != b
	}
	if va.Equal(vb) {
		return a != b && a > b
	}
	return va.GreaterThan(vb)
}

// upstreamVersion strips "2:" epochs and "-1jammy" style release suffixes.
func upstreamVersion(v string) string {
	if i := strings.Index(v, ":"); i >= 0 {
		v = v[i+1:]
	}
	if i := strings.Index(v, "-"); i >= 0 {
		v = v[:i]
	}
	return v
}

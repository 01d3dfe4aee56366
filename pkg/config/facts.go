package config

import (
	"bufio"
	"io"
	"os"
	"strings"
)

// Facts are the detected properties of the node
type Facts struct {
	Hostname       string
	Platform       string
	PlatformFamily string
	InitStyle      string
}

// Attributes returns the facts as a default-tier document
func (f Facts) Attributes() map[string]any {
	out := map[string]any{}
	if f.Hostname != "" {
		out["hostname"] = f.Hostname
	}
	if f.Platform != "" {
		out["platform"] = f.Platform
	}
	if f.PlatformFamily != "" {
		out["platform_family"] = f.PlatformFamily
	}
	if f.InitStyle != "" {
		out["ceph"] = map[string]any{"init_style": f.InitStyle}
	}
	return out
}

const (
	osReleasePath = "/etc/os-release"
	systemdRunDir = "/run/systemd/system"
)

// DetectFacts inspects the local host
func DetectFacts() Facts {
	host, _ := os.Hostname()
	fields := map[string]string{}
	if f, err := os.Open(osReleasePath); err == nil {
		fields = ParseOSRelease(f)
		f.Close()
	}
	_, err := os.Stat(systemdRunDir)
	facts := FactsFromOSRelease(fields, err == nil)
	facts.Hostname = host
	return facts
}

// ParseOSRelease reads KEY=value pairs in os-release(5) format
func ParseOSRelease(r io.Reader) map[string]string {
	out := map[string]string{}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		out[key] = strings.Trim(value, `"'`)
	}
	return out
}

// FactsFromOSRelease maps os-release fields to platform facts. systemd
// reports whether systemd is the running init system.
func FactsFromOSRelease(fields map[string]string, systemd bool) Facts {
	platform := strings.ToLower(fields["ID"])
	facts := Facts{
		Platform:       platform,
		PlatformFamily: platformFamily(platform, strings.Fields(strings.ToLower(fields["ID_LIKE"]))),
	}
	switch {
	case systemd:
		facts.InitStyle = "systemd"
	case platform == "ubuntu":
		facts.InitStyle = "upstart"
	default:
		facts.InitStyle = "sysvinit"
	}
	return facts
}

func platformFamily(id string, like []string) string {
	for _, candidate := range append([]string{id}, like...) {
		switch candidate {
		case "debian", "ubuntu", "linuxmint", "raspbian":
			return "debian"
		case "fedora":
			if candidate == id {
				return "fedora"
			}
		case "rhel", "centos", "rocky", "almalinux", "ol", "amzn", "scientific":
			return "rhel"
		case "suse", "sles", "opensuse", "opensuse-leap", "opensuse-tumbleweed":
			return "suse"
		}
	}
	// rhel-likes that only list fedora in ID_LIKE
	for _, candidate := range like {
		if candidate == "fedora" {
			return "rhel"
		}
	}
	return ""
}

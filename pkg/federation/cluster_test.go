package federation

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/cuemby/strata/pkg/shell"
	"github.com/cuemby/strata/pkg/shell/shelltest"
)

// fakeCluster plays the ceph, ceph-authtool and radosgw-admin tools against
// in-memory cluster state and real keyring files.
type fakeCluster struct {
	auth       map[string]string
	realms     []string
	zonegroups map[string]bool
	zones      map[string]bool
	defaultZG  string
	generated  int
}

func newFakeCluster() *fakeCluster {
	return &fakeCluster{
		auth:       map[string]string{"client.admin": "AQadmin"},
		zonegroups: map[string]bool{},
		zones:      map[string]bool{},
		defaultZG:  "default",
	}
}

func (c *fakeCluster) runner() *shelltest.Runner {
	return shelltest.New().
		OnFunc("ceph --cluster ceph", c.ceph).
		OnFunc("ceph-authtool", c.authtool).
		OnFunc("radosgw-admin", c.rgwAdmin)
}

func flagValue(args []string, name string) string {
	for _, a := range args {
		if v, ok := strings.CutPrefix(a, name+"="); ok {
			return v
		}
	}
	return ""
}

func has(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}

func (c *fakeCluster) ceph(cmd shell.Command) shelltest.Response {
	args := cmd.Args[2:] // drop --cluster ceph
	switch {
	case len(args) >= 3 && args[0] == "auth" && args[1] == "get-key":
		key, ok := c.auth[args[2]]
		if !ok {
			return shelltest.Response{ExitCode: 2, Stderr: "Error ENOENT: failed to find " + args[2]}
		}
		return shelltest.Response{Stdout: key + "\n"}
	case len(args) >= 2 && args[0] == "auth" && args[1] == "ls":
		var dump struct {
			AuthDump []map[string]string `json:"auth_dump"`
		}
		for entity := range c.auth {
			dump.AuthDump = append(dump.AuthDump, map[string]string{"entity": entity})
		}
		out, _ := json.Marshal(dump)
		return shelltest.Response{Stdout: string(out)}
	case len(args) >= 7 && args[0] == "-k" && args[2] == "auth" && args[3] == "add":
		client, keyring := args[4], args[6]
		key, ok := readKeyring(keyring)[client]
		if !ok {
			return shelltest.Response{ExitCode: 22, Stderr: "no key for " + client}
		}
		c.auth[client] = key
		return shelltest.Response{Stdout: "added key for " + client}
	}
	return shelltest.Response{ExitCode: 1, Stderr: "unexpected ceph call"}
}

func readKeyring(path string) map[string]string {
	out := map[string]string{}
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var section string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "[") {
			section = strings.Trim(line, "[]")
			continue
		}
		if v, ok := strings.CutPrefix(line, "key = "); ok {
			out[section] = v
		}
	}
	return out
}

func writeKeyring(path string, keys map[string]string) error {
	names := make([]string, 0, len(keys))
	for n := range keys {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	for _, n := range names {
		fmt.Fprintf(&b, "[%s]\n\tkey = %s\n", n, keys[n])
	}
	return os.WriteFile(path, []byte(b.String()), 0600)
}

func (c *fakeCluster) authtool(cmd shell.Command) shelltest.Response {
	args := cmd.Args
	name := flagValue(args, "--name")

	keyring := args[0]
	create := false
	if keyring == "--create-keyring" {
		keyring, create = args[1], true
	} else if has(args, "--create-keyring") {
		create = true
	}

	if has(args, "--print-key") {
		key, ok := readKeyring(keyring)[name]
		if !ok {
			return shelltest.Response{ExitCode: 1, Stderr: "no entity " + name}
		}
		return shelltest.Response{Stdout: key + "\n"}
	}

	keys := map[string]string{}
	if !create {
		if _, err := os.Stat(keyring); err != nil {
			return shelltest.Response{ExitCode: 1, Stderr: "can't open " + keyring}
		}
		keys = readKeyring(keyring)
	}
	key := flagValue(args, "--add-key")
	if has(args, "--gen-key") {
		c.generated++
		key = fmt.Sprintf("AQ%036d==", c.generated)
	}
	keys[name] = key
	if err := writeKeyring(keyring, keys); err != nil {
		return shelltest.Response{ExitCode: 1, Stderr: err.Error()}
	}
	return shelltest.Response{}
}

func named(name string) shelltest.Response {
	return shelltest.Response{Stdout: fmt.Sprintf(`{"id": "id-%s", "name": %q}`, name, name)}
}

func (c *fakeCluster) rgwAdmin(cmd shell.Command) shelltest.Response {
	args := cmd.Args[3:] // drop --cluster ceph --name=...
	op := strings.Join(args[:2], " ")
	switch op {
	case "realm list":
		out, _ := json.Marshal(map[string]any{"default_info": "", "realms": c.realms})
		return shelltest.Response{Stdout: string(out)}
	case "realm create":
		c.realms = append(c.realms, flagValue(args, "--rgw-realm"))
		return shelltest.Response{}
	case "zonegroup get":
		zg := flagValue(args, "--rgw-zonegroup")
		if zg == "" {
			return named(c.defaultZG)
		}
		if !c.zonegroups[zg] {
			return shelltest.Response{ExitCode: 2, Stderr: "failed to init zonegroup"}
		}
		return named(zg)
	case "zone get":
		zone := flagValue(args, "--rgw-zone")
		if !c.zones[zone] {
			return shelltest.Response{ExitCode: 2, Stderr: "unable to initialize zone"}
		}
		return named(zone)
	case "zonegroup set", "zone set":
		if _, err := os.Stat(flagValue(args, "--infile")); err != nil {
			return shelltest.Response{ExitCode: 1, Stderr: "failed to read infile"}
		}
		if op == "zone set" {
			c.zones[flagValue(args, "--rgw-zone")] = true
		} else {
			c.zonegroups[flagValue(args, "--rgw-zonegroup")] = true
		}
		return shelltest.Response{}
	case "zonegroup default":
		c.defaultZG = flagValue(args, "--rgw-zonegroup")
		return shelltest.Response{}
	}
	return shelltest.Response{ExitCode: 1, Stderr: "unexpected radosgw-admin call"}
}

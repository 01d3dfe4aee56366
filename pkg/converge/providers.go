package converge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/cuemby/strata/pkg/platform"
	"github.com/cuemby/strata/pkg/resource"
)

// perform applies action to res and reports whether anything changed
func (r *run) perform(ctx context.Context, res *resource.Resource, action resource.Action) (bool, error) {
	switch spec := res.Spec.(type) {
	case resource.PackageSpec:
		return r.applyPackage(ctx, spec, action)
	case resource.DirectorySpec:
		return applyDirectory(spec)
	case resource.FileSpec:
		return r.applyFile(ctx, spec, action)
	case resource.ExecuteSpec:
		return r.applyExecute(ctx, res, spec)
	case resource.ServiceSpec:
		return r.applyService(ctx, spec, action)
	case resource.BlockSpec:
		if spec.Fn == nil {
			return false, fmt.Errorf("block has no function")
		}
		return true, spec.Fn(ctx)
	}
	return false, fmt.Errorf("unsupported resource kind %s", res.ID.Kind)
}

func (r *run) applyPackage(ctx context.Context, spec resource.PackageSpec, action resource.Action) (bool, error) {
	if r.collab.Packages == nil {
		return false, fmt.Errorf("no package manager configured")
	}
	pkgAction := platform.PackageInstall
	if action == resource.ActionUpgrade {
		pkgAction = platform.PackageUpgrade
	}
	return r.collab.Packages.Ensure(ctx, spec.Name, spec.Version, pkgAction)
}

func applyDirectory(spec resource.DirectorySpec) (bool, error) {
	mode := spec.Mode
	if mode == 0 {
		mode = 0755
	}

	changed := false
	info, err := os.Stat(spec.Path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		mkdir := os.Mkdir
		if spec.Recursive {
			mkdir = os.MkdirAll
		}
		if err := mkdir(spec.Path, mode); err != nil {
			return false, err
		}
		changed = true
	case err != nil:
		return false, err
	case !info.IsDir():
		return false, fmt.Errorf("%s exists and is not a directory", spec.Path)
	}

	attrsChanged, err := ensureAttributes(spec.Path, spec.Mode, spec.Owner, spec.Group)
	return changed || attrsChanged, err
}

func (r *run) applyFile(ctx context.Context, spec resource.FileSpec, action resource.Action) (bool, error) {
	mode := spec.Mode
	if mode == 0 {
		mode = 0644
	}

	var content []byte
	switch {
	case action == resource.ActionTouch:
		if _, err := os.Stat(spec.Path); err == nil {
			return ensureAttributes(spec.Path, spec.Mode, spec.Owner, spec.Group)
		} else if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	case spec.Template != "":
		if r.collab.Renderer == nil {
			return false, fmt.Errorf("no template renderer configured")
		}
		bindings := spec.Bindings
		if spec.BindingsFunc != nil {
			b, err := spec.BindingsFunc(ctx)
			if err != nil {
				return false, fmt.Errorf("failed to compute bindings: %w", err)
			}
			bindings = b
		}
		rendered, err := r.collab.Renderer.Render(spec.Template, bindings)
		if err != nil {
			return false, err
		}
		content = rendered
	default:
		content = []byte(spec.Content)
	}

	if action != resource.ActionTouch {
		current, err := os.ReadFile(spec.Path)
		if err == nil && bytes.Equal(current, content) {
			return ensureAttributes(spec.Path, spec.Mode, spec.Owner, spec.Group)
		}
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}

	if err := writeFileAtomic(spec.Path, content, mode); err != nil {
		return false, err
	}
	if _, err := ensureAttributes(spec.Path, spec.Mode, spec.Owner, spec.Group); err != nil {
		return true, err
	}
	return true, nil
}

func (r *run) applyExecute(ctx context.Context, res *resource.Resource, spec resource.ExecuteSpec) (bool, error) {
	if spec.Creates != "" {
		if _, err := os.Stat(spec.Creates); err == nil {
			return false, nil
		}
	}
	if r.collab.Runner == nil {
		return false, fmt.Errorf("no command runner configured")
	}

	cmd := spec.Command
	if spec.CommandFunc != nil {
		built, err := spec.CommandFunc(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to build command: %w", err)
		}
		cmd = built
	}
	if res.Sensitive {
		cmd.Sensitive = true
	}

	result, err := r.collab.Runner.Run(ctx, cmd)
	if err != nil {
		return false, err
	}
	if err := result.Err(); err != nil {
		return false, err
	}

	if spec.StdoutFile != "" {
		mode := spec.StdoutMode
		if mode == 0 {
			mode = 0600
		}
		if err := writeFileAtomic(spec.StdoutFile, []byte(result.Stdout), mode); err != nil {
			return true, err
		}
		if _, err := ensureAttributes(spec.StdoutFile, mode, spec.StdoutOwner, spec.StdoutGroup); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (r *run) applyService(ctx context.Context, spec resource.ServiceSpec, action resource.Action) (bool, error) {
	if r.collab.Services == nil {
		return false, fmt.Errorf("no service manager configured")
	}
	if action == resource.ActionRestart {
		return true, r.collab.Services.Restart(ctx, spec.Name)
	}
	return r.collab.Services.SetState(ctx, spec.Name, spec.Enable, spec.Start)
}

// writeFileAtomic writes data next to path and renames it into place, so
// readers see either the old or the new content.
func writeFileAtomic(path string, data []byte, mode os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return nil
}

// ensureAttributes fixes mode and ownership. Zero values leave the
// attribute alone.
func ensureAttributes(path string, mode os.FileMode, owner, group string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, err
	}

	changed := false
	if mode != 0 && info.Mode().Perm() != mode.Perm() {
		if err := os.Chmod(path, mode.Perm()); err != nil {
			return false, err
		}
		changed = true
	}

	if owner == "" && group == "" {
		return changed, nil
	}
	uid, gid := -1, -1
	if owner != "" {
		if uid, err = lookupID(owner, func(n string) (string, error) {
			u, err := user.Lookup(n)
			if err != nil {
				return "", err
			}
			return u.Uid, nil
		}); err != nil {
			return changed, fmt.Errorf("unknown owner %q: %w", owner, err)
		}
	}
	if group != "" {
		if gid, err = lookupID(group, func(n string) (string, error) {
			g, err := user.LookupGroup(n)
			if err != nil {
				return "", err
			}
			return g.Gid, nil
		}); err != nil {
			return changed, fmt.Errorf("unknown group %q: %w", group, err)
		}
	}

	if st, ok := info.Sys().(*syscall.Stat_t); ok {
		if (uid == -1 || int(st.Uid) == uid) && (gid == -1 || int(st.Gid) == gid) {
			return changed, nil
		}
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return changed, err
	}
	return true, nil
}

// lookupID accepts a numeric id or resolves a name
func lookupID(name string, resolve func(string) (string, error)) (int, error) {
	if id, err := strconv.Atoi(name); err == nil {
		return id, nil
	}
	s, err := resolve(name)
	if err != nil {
		return -1, err
	}
	return strconv.Atoi(s)
}

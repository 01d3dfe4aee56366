package platform

import (
	"context"
	"fmt"
	"strings"

	"github.com/cuemby/strata/pkg/shell"
)

// ServiceManager drives an init system. SetState reports whether anything
// had to change.
type ServiceManager interface {
	SetState(ctx context.Context, name string, enabled, running bool) (changed bool, err error)
	Restart(ctx context.Context, name string) error
}

// NewServiceManager returns the service manager for an init style
func NewServiceManager(initStyle string, runner shell.Runner) (ServiceManager, error) {
	switch initStyle {
	case "systemd":
		return &Systemd{runner: runner}, nil
	case "upstart":
		return &Upstart{runner: runner}, nil
	case "sysvinit":
		return &SysV{runner: runner}, nil
	}
	return nil, fmt.Errorf("unsupported init style %q", initStyle)
}

// succeeds runs cmd and reports whether it exited 0
func succeeds(ctx context.Context, runner shell.Runner, cmd shell.Command) (bool, error) {
	res, err := runner.Run(ctx, cmd)
	if err != nil {
		return false, err
	}
	return res.Success(), nil
}

// converge brings one boolean service property to want
func converge(ctx context.Context, runner shell.Runner, current, want bool, on, off shell.Command) (bool, error) {
	if current == want {
		return false, nil
	}
	cmd := off
	if want {
		cmd = on
	}
	if _, err := shell.Output(ctx, runner, cmd); err != nil {
		return false, err
	}
	return true, nil
}

// Systemd manages units with systemctl
type Systemd struct {
	runner shell.Runner
}

// SetState implements ServiceManager
func (s *Systemd) SetState(ctx context.Context, name string, enabled, running bool) (bool, error) {
	isEnabled, err := succeeds(ctx, s.runner, shell.New("systemctl", "is-enabled", "--quiet", name))
	if err != nil {
		return false, err
	}
	isActive, err := succeeds(ctx, s.runner, shell.New("systemctl", "is-active", "--quiet", name))
	if err != nil {
		return false, err
	}

	changedEnable, err := converge(ctx, s.runner, isEnabled, enabled,
		shell.New("systemctl", "enable", name), shell.New("systemctl", "disable", name))
	if err != nil {
		return false, err
	}
	changedRun, err := converge(ctx, s.runner, isActive, running,
		shell.New("systemctl", "start", name), shell.New("systemctl", "stop", name))
	if err != nil {
		return changedEnable, err
	}
	return changedEnable || changedRun, nil
}

// Restart implements ServiceManager
func (s *Systemd) Restart(ctx context.Context, name string) error {
	_, err := shell.Output(ctx, s.runner, shell.New("systemctl", "restart", name))
	return err
}

// Upstart manages jobs with initctl. A job is disabled by a "manual"
// stanza in its override file.
type Upstart struct {
	runner shell.Runner
}

// SetState implements ServiceManager
func (u *Upstart) SetState(ctx context.Context, name string, enabled, running bool) (bool, error) {
	override := "/etc/init/" + name + ".override"
	disabled, err := succeeds(ctx, u.runner, shell.New("grep", "-qx", "manual", override))
	if err != nil {
		return false, err
	}
	status, err := u.runner.Run(ctx, shell.New("initctl", "status", name))
	if err != nil {
		return false, err
	}
	isRunning := status.Success() && strings.Contains(status.Stdout, "start/running")

	changedEnable, err := converge(ctx, u.runner, !disabled, enabled,
		shell.New("sed", "-i", "/^manual$/d", override),
		shell.Shell("echo manual >> "+override))
	if err != nil {
		return false, err
	}
	changedRun, err := converge(ctx, u.runner, isRunning, running,
		shell.New("initctl", "start", name), shell.New("initctl", "stop", name))
	if err != nil {
		return changedEnable, err
	}
	return changedEnable || changedRun, nil
}

// Restart implements ServiceManager
func (u *Upstart) Restart(ctx context.Context, name string) error {
	_, err := shell.Output(ctx, u.runner, shell.New("initctl", "restart", name))
	return err
}

// SysV manages init scripts with service and chkconfig
type SysV struct {
	runner shell.Runner
}

// SetState implements ServiceManager
func (s *SysV) SetState(ctx context.Context, name string, enabled, running bool) (bool, error) {
	isEnabled, err := succeeds(ctx, s.runner, shell.New("chkconfig", name))
	if err != nil {
		return false, err
	}
	isRunning, err := succeeds(ctx, s.runner, shell.New("service", name, "status"))
	if err != nil {
		return false, err
	}

	changedEnable, err := converge(ctx, s.runner, isEnabled, enabled,
		shell.New("chkconfig", name, "on"), shell.New("chkconfig", name, "off"))
	if err != nil {
		return false, err
	}
	changedRun, err := converge(ctx, s.runner, isRunning, running,
		shell.New("service", name, "start"), shell.New("service", name, "stop"))
	if err != nil {
		return changedEnable, err
	}
	return changedEnable || changedRun, nil
}

// Restart implements ServiceManager
func (s *SysV) Restart(ctx context.Context, name string) error {
	_, err := shell.Output(ctx, s.runner, shell.New("service", name, "restart"))
	return err
}

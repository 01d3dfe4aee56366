package resource

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/strata/pkg/guard"
	"github.com/cuemby/strata/pkg/shell"
)

// Kind is the type of a resource
type Kind string

const (
	KindPackage   Kind = "package"
	KindDirectory Kind = "directory"
	KindFile      Kind = "file"
	KindExecute   Kind = "execute"
	KindService   Kind = "service"
	KindBlock     Kind = "block"
)

// Action is the verb a resource applies
type Action string

const (
	ActionInstall Action = "install"
	ActionUpgrade Action = "upgrade"
	ActionCreate  Action = "create"
	ActionTouch   Action = "touch"
	ActionRun     Action = "run"
	ActionEnable  Action = "enable"
	ActionStart   Action = "start"
	ActionRestart Action = "restart"

	// ActionNothing makes a resource run only when notified.
	ActionNothing Action = "nothing"
)

// ID identifies a resource by kind and name
type ID struct {
	Kind Kind
	Name string
}

func (id ID) String() string {
	return fmt.Sprintf("%s[%s]", id.Kind, id.Name)
}

// Timing controls when a notification fires
type Timing int

const (
	// Delayed notifications are queued, deduplicated, and run once after
	// the main pass.
	Delayed Timing = iota

	// Immediate notifications run right after the notifying resource,
	// before the next one in the main pass.
	Immediate
)

func (t Timing) String() string {
	if t == Immediate {
		return "immediate"
	}
	return "delayed"
}

// Notification asks the executor to apply Action to Target
type Notification struct {
	Target ID
	Action Action
	Timing Timing
}

// Spec is the kind-specific desired state of a resource
type Spec interface {
	Kind() Kind
	DefaultAction() Action
}

// PackageSpec is an OS package
type PackageSpec struct {
	Name string

	// Version pins an exact version. Empty accepts any.
	Version string
}

func (PackageSpec) Kind() Kind            { return KindPackage }
func (PackageSpec) DefaultAction() Action { return ActionInstall }

// DirectorySpec is a directory with ownership and mode
type DirectorySpec struct {
	Path      string
	Mode      os.FileMode
	Owner     string
	Group     string
	Recursive bool
}

func (DirectorySpec) Kind() Kind            { return KindDirectory }
func (DirectorySpec) DefaultAction() Action { return ActionCreate }

// FileSpec is a file rendered from a template, written from literal
// content, or touched when neither is set.
type FileSpec struct {
	Path string

	Template string
	Bindings map[string]any

	// BindingsFunc computes bindings at run time, after earlier resources
	// had a chance to change the attribute store. It wins over Bindings.
	BindingsFunc func(ctx context.Context) (map[string]any, error)

	Content string

	Mode  os.FileMode
	Owner string
	Group string
}

func (FileSpec) Kind() Kind { return KindFile }

func (s FileSpec) DefaultAction() Action {
	if s.Template == "" && s.Content == "" {
		return ActionTouch
	}
	return ActionCreate
}

// ExecuteSpec is an external command
type ExecuteSpec struct {
	Command shell.Command

	// CommandFunc builds the command at run time. It wins over Command.
	CommandFunc func(ctx context.Context) (shell.Command, error)

	// Creates skips the command when the path already exists.
	Creates string

	// StdoutFile receives the command's stdout, written atomically and
	// then handed to StdoutOwner and StdoutGroup when set.
	StdoutFile  string
	StdoutMode  os.FileMode
	StdoutOwner string
	StdoutGroup string
}

func (ExecuteSpec) Kind() Kind            { return KindExecute }
func (ExecuteSpec) DefaultAction() Action { return ActionRun }

// ServiceSpec is an OS service
type ServiceSpec struct {
	Name   string
	Enable bool
	Start  bool
}

func (ServiceSpec) Kind() Kind            { return KindService }
func (ServiceSpec) DefaultAction() Action { return ActionStart }

// BlockSpec is in-process code run as a resource
type BlockSpec struct {
	Fn func(ctx context.Context) error
}

func (BlockSpec) Kind() Kind            { return KindBlock }
func (BlockSpec) DefaultAction() Action { return ActionRun }

// Resource is one declared unit of desired state. It is built during graph
// construction and not changed afterwards.
type Resource struct {
	ID       ID
	Spec     Spec
	Action   Action
	Guards   guard.Guards
	Notifies []Notification

	// BestEffort turns a failure into a logged warning.
	BestEffort bool

	// Sensitive keeps command lines and output out of logs and errors.
	Sensitive bool
}

// New creates a resource named name for spec with the spec's default action
func New(name string, spec Spec) *Resource {
	return &Resource{
		ID:     ID{Kind: spec.Kind(), Name: name},
		Spec:   spec,
		Action: spec.DefaultAction(),
	}
}

// Package declares an OS package
func Package(name, version string) *Resource {
	return New(name, PackageSpec{Name: name, Version: version})
}

// Directory declares a directory
func Directory(path string, mode os.FileMode, owner, group string) *Resource {
	return New(path, DirectorySpec{Path: path, Mode: mode, Owner: owner, Group: group})
}

// Template declares a file rendered from a named template
func Template(path, template string, bindings map[string]any) *Resource {
	return New(path, FileSpec{Path: path, Template: template, Bindings: bindings})
}

// Touch declares an empty marker file
func Touch(path string) *Resource {
	return New(path, FileSpec{Path: path})
}

// Execute declares a named command
func Execute(name string, cmd shell.Command) *Resource {
	return New(name, ExecuteSpec{Command: cmd})
}

// Service declares a service to enable and start
func Service(name string) *Resource {
	return New(name, ServiceSpec{Name: name, Enable: true, Start: true})
}

// Block declares in-process code
func Block(name string, fn func(ctx context.Context) error) *Resource {
	return New(name, BlockSpec{Fn: fn})
}

// WithAction sets the action
func (r *Resource) WithAction(a Action) *Resource {
	r.Action = a
	return r
}

// OnlyIf adds only_if predicates
func (r *Resource) OnlyIf(p ...guard.Predicate) *Resource {
	r.Guards.OnlyIf = append(r.Guards.OnlyIf, p...)
	return r
}

// NotIf adds not_if predicates
func (r *Resource) NotIf(p ...guard.Predicate) *Resource {
	r.Guards.NotIf = append(r.Guards.NotIf, p...)
	return r
}

// Notify adds a notification to target
func (r *Resource) Notify(target ID, action Action, timing Timing) *Resource {
	r.Notifies = append(r.Notifies, Notification{Target: target, Action: action, Timing: timing})
	return r
}

// AllowFailure marks the resource best-effort
func (r *Resource) AllowFailure() *Resource {
	r.BestEffort = true
	return r
}

// MarkSensitive hides the resource's commands and output
func (r *Resource) MarkSensitive() *Resource {
	r.Sensitive = true
	return r
}

// validActions lists the verbs each kind understands besides nothing
var validActions = map[Kind][]Action{
	KindPackage:   {ActionInstall, ActionUpgrade},
	KindDirectory: {ActionCreate},
	KindFile:      {ActionCreate, ActionTouch},
	KindExecute:   {ActionRun},
	KindService:   {ActionEnable, ActionStart, ActionRestart},
	KindBlock:     {ActionRun},
}

// Supports reports whether kind understands action
func Supports(kind Kind, action Action) bool {
	if action == ActionNothing {
		return true
	}
	for _, a := range validActions[kind] {
		if a == action {
			return true
		}
	}
	return false
}

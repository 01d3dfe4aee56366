package guard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/cuemby/strata/pkg/shell"
)

// Predicate is a read-only probe of external or attribute state.
type Predicate interface {
	// Check reports whether the predicate holds. A non-nil error means the
	// probe itself could not be evaluated.
	Check(ctx context.Context) (bool, error)

	String() string
}

// Guards are the only_if and not_if predicates attached to a resource.
type Guards struct {
	OnlyIf []Predicate
	NotIf  []Predicate
}

// Empty reports whether no predicate is attached
func (g Guards) Empty() bool {
	return len(g.OnlyIf) == 0 && len(g.NotIf) == 0
}

// commandPredicate holds when cmd exits 0 and, if match is set, its
// stdout satisfies match.
type commandPredicate struct {
	runner shell.Runner
	cmd    shell.Command
	match  func(stdout string) bool
	desc   string
}

func (p *commandPredicate) Check(ctx context.Context) (bool, error) {
	res, err := p.runner.Run(ctx, p.cmd)
	if err != nil {
		return false, err
	}
	if !res.Success() {
		return false, nil
	}
	if p.match == nil {
		return true, nil
	}
	return p.match(res.Stdout), nil
}

func (p *commandPredicate) String() string {
	return p.desc
}

// Command holds when cmd exits with status 0.
func Command(runner shell.Runner, cmd shell.Command) Predicate {
	return &commandPredicate{runner: runner, cmd: cmd, desc: cmd.String()}
}

// Script holds when the shell script exits with status 0.
func Script(runner shell.Runner, script string) Predicate {
	return Command(runner, shell.Shell(script))
}

// OutputMatches holds when cmd exits 0 and its stdout matches re.
func OutputMatches(runner shell.Runner, cmd shell.Command, re *regexp.Regexp) Predicate {
	return &commandPredicate{
		runner: runner,
		cmd:    cmd,
		match:  re.MatchString,
		desc:   fmt.Sprintf("%s =~ /%s/", cmd, re),
	}
}

// OutputContains holds when cmd exits 0 and its stdout contains substr,
// ignoring case.
func OutputContains(runner shell.Runner, cmd shell.Command, substr string) Predicate {
	needle := strings.ToLower(substr)
	return &commandPredicate{
		runner: runner,
		cmd:    cmd,
		match:  func(out string) bool { return strings.Contains(strings.ToLower(out), needle) },
		desc:   fmt.Sprintf("%s contains %q", cmd, substr),
	}
}

type statPredicate struct {
	path string
	kind string
	test func(os.FileInfo) bool
}

func (p *statPredicate) Check(context.Context) (bool, error) {
	info, err := os.Stat(p.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return p.test(info), nil
}

func (p *statPredicate) String() string {
	return fmt.Sprintf("%s %s", p.kind, p.path)
}

// FileExists holds when path exists and is not a directory.
func FileExists(path string) Predicate {
	return &statPredicate{path: path, kind: "file exists", test: func(fi os.FileInfo) bool { return !fi.IsDir() }}
}

// DirExists holds when path is a directory.
func DirExists(path string) Predicate {
	return &statPredicate{path: path, kind: "directory exists", test: func(fi os.FileInfo) bool { return fi.IsDir() }}
}

// FileNonEmpty holds when path is a regular file with content.
func FileNonEmpty(path string) Predicate {
	return &statPredicate{path: path, kind: "file non-empty", test: func(fi os.FileInfo) bool {
		return fi.Mode().IsRegular() && fi.Size() > 0
	}}
}

type funcPredicate struct {
	desc string
	fn   func(ctx context.Context) (bool, error)
}

func (p *funcPredicate) Check(ctx context.Context) (bool, error) {
	return p.fn(ctx)
}

func (p *funcPredicate) String() string {
	return p.desc
}

// Func wraps an in-process check, typically a closure over the attribute
// store or a cluster query.
func Func(desc string, fn func(ctx context.Context) (bool, error)) Predicate {
	return &funcPredicate{desc: desc, fn: fn}
}

// Bool is a predicate with a fixed value.
func Bool(desc string, v bool) Predicate {
	return Func(desc, func(context.Context) (bool, error) { return v, nil })
}

type notPredicate struct {
	p Predicate
}

func (n *notPredicate) Check(ctx context.Context) (bool, error) {
	ok, err := n.p.Check(ctx)
	if err != nil {
		return false, err
	}
	return !ok, nil
}

func (n *notPredicate) String() string {
	return "not " + n.p.String()
}

// Not negates p. A probe error stays an error.
func Not(p Predicate) Predicate {
	return &notPredicate{p: p}
}

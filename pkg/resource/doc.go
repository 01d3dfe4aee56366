/*
Package resource defines the declarative units strata converges and the
ordered graph that holds them.

A Resource is a kind, a name, a kind-specific Spec, an action, guards and
notifications. Kinds and their actions:

	package    install | upgrade
	directory  create
	file       create | touch        (touch when no template or content)
	execute    run
	service    enable | start | restart
	block      run                   (in-process function)

Every kind also accepts "nothing", which makes the resource run only when
another resource notifies it.

Resources are declared with small constructors and chained modifiers:

	g := resource.NewGraph()
	save := resource.Block("save osd_device status 0", saveStatus).
		WithAction(resource.ActionNothing)

	prepare := resource.Block("ceph-disk-prepare on /dev/sdb", prepareDisk).
		NotIf(guard.Command(runner, probe)).
		Notify(save.ID, resource.ActionRun, resource.Delayed)

	g.Add(prepare)
	g.Add(save)

# Ordering

The graph keeps declaration order and that is the execution order. A
notification targets another resource by (kind, name) with one of two
timings:

	Immediate  the target runs right after the notifier, before the next
	           main-pass resource; repeated notifications run it again
	Delayed    the target is queued once per (target, action) and runs after
	           the main pass, in first-registered order

IDs are unique within a graph. Add rejects duplicates with ErrDuplicate and
Validate reports notifications to undeclared targets with ErrUnknownTarget.
*/
package resource

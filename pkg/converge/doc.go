/*
Package converge applies a resource graph to the node.

One call to Executor.Converge is one convergence run: a single, sequential
pass over the graph in declaration order followed by one drain of the
delayed notification queue.

	┌──────────────────── CONVERGENCE RUN ────────────────────┐
	│                                                          │
	│  for each resource (declaration order):                  │
	│    action == nothing  → wait for a notification          │
	│    guards             → skipped | running                │
	│    provider           → succeeded (changed / up to date) │
	│                         failed (fatal | best effort)     │
	│    changed            → immediate targets run now        │
	│                         delayed targets queue once       │
	│                                                          │
	│  drain delayed queue (first-registered order)            │
	└──────────────────────────────────────────────────────────┘

Guards are evaluated right before every action, including actions triggered
by notifications, so work another node finished in the meantime is not
repeated. Only resources that changed something notify.

A fatal failure stops the main pass and the delayed queue is never drained.
Best-effort resources log the failure, add it to Report.Warnings and the
run continues. Immediate notifications may chain; a chain deeper than the
configured bound fails the run with ErrNotificationLoop.

Providers per kind:

	package    platform.PackageManager.Ensure
	directory  mkdir, then mode and ownership
	file       render or literal content, compared, written temp+rename
	execute    shell.Runner; Creates short-circuits, StdoutFile captures
	service    platform.ServiceManager.SetState / Restart
	block      the in-process function; always counts as a change

Each run gets a UUID and emits metrics (strata_resources_total,
strata_converge_duration_seconds, ...) and, when a broker is attached,
progress events.
*/
package converge

/*
Package log provides structured logging for strata using zerolog.

A single package-level zerolog.Logger is configured once by Init from the CLI
flags (--log-level, --log-json). Components never log through the global
directly; they derive a child logger at construction time:

	logger := log.WithComponent("osd")
	logger.Warn().Str("device", d.Data).Msg("osd device missing data & journal attributes")

# Fields

Child loggers attach one stable field each:

  - component: the package emitting the line (converge, guard, osd, federation, ...)
  - run_id:    the UUID of the convergence run (see converge.Report)
  - resource:  the resource identity, printed as kind[name]

# Levels

Levels follow the convergence error taxonomy:

  - debug: guarded skips and probe details
  - info:  resources that changed something, run summaries
  - warn:  probe failures, skipped units with missing input, unknown values passed through,
    best-effort failures
  - error: fatal resource failures (command, exit code and captured output)

Console output (the default) is meant for operators running strata by hand;
JSON output is meant for log shippers when strata runs in daemon mode.
*/
package log

/*
Package shell runs external commands for strata.

Everything strata does to a node outside its own process goes through a
Runner: package managers, the cluster admin CLI, disk tooling and guard
probes. ExecRunner is the production implementation; shelltest provides a
scripted fake for tests.

A non-zero exit status is not an error from Run. It is reported in
Result.ExitCode and turned into a *CommandError by Result.Err when the
caller decides the exit status matters. Run only fails when the process
could not be started (ErrNotFound for a missing binary) or when the
per-command timeout killed it.

Commands marked Sensitive never show their arguments or output in logs or
error messages.
*/
package shell

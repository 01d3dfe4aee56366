/*
Package metrics exposes Prometheus metrics and a small component health
registry for strata.

Metrics are package-level collectors registered with the default registry in
init(). The convergence executor updates them as it walks the resource graph:

	strata_resources_total{kind,state}     counter   per resource outcome
	strata_converge_duration_seconds       histogram one observation per run
	strata_converge_runs_total{result}     counter   success | failure
	strata_last_run_resources_updated      gauge     resources changed by the last run
	strata_notifications_total{timing}     counter   immediate | delayed
	strata_guard_probe_failures_total      counter   probes that could not run
	strata_osd_devices_prepared_total      counter   OSD devices prepared and activated

One-shot runs write the registry to a node-exporter textfile with
WriteTextfile. In daemon mode pkg/api serves Handler on /metrics next to
/health and /ready, which read the registry below.

# Health

The health registry tracks named components. strata registers two critical
components: "state" (the attribute database opened) and "converge" (the last
run finished without a fatal failure). Readiness requires both. Any other
component that reports a failure marks the node degraded, not unhealthy.

# Timer

	timer := metrics.NewTimer()
	report, err := executor.Converge(ctx, graph)
	timer.ObserveDuration(metrics.ConvergeDuration)
*/
package metrics

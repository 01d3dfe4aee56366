/*
Package reconciler runs convergence as a long-lived loop.

In daemon mode strata does not exit after one run. The reconciler invokes
a RunFunc immediately on Start and then once per interval, so drift on the
node (a stopped service, a removed keyring, a replaced disk) is corrected
without an operator re-running the tool.

# Cycle

Each cycle is independent. The RunFunc is expected to reload attributes and
rebuild the resource graph, because earlier cycles may have written runtime
overrides (device status, saved secrets) that change what the next graph
contains. A failed cycle is logged and reported to the health registry
under the "converge" component; the loop keeps going.

# Usage

	rec := reconciler.NewReconciler(func(ctx context.Context) (*converge.Report, error) {
		g, err := buildGraph(ctx)
		if err != nil {
			return nil, err
		}
		return executor.Converge(ctx, g)
	}, 30*time.Minute)

	rec.Start(ctx)
	defer rec.Stop()

Stop waits for an in-flight cycle, so a convergence is never cut off
between a command and the attribute write that records its effect.
*/
package reconciler

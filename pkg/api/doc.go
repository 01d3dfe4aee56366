/*
Package api serves strata's HTTP status endpoints in daemon mode.

When "strata converge --interval" runs as a long-lived process, the
HealthServer exposes:

	/health   overall health from the component registry in pkg/metrics;
	          503 while the last convergence cycle failed
	/ready    200 once the state database is open and a cycle succeeded
	/metrics  Prometheus exposition of the strata_* metrics

One-shot runs do not start the server; they write the metrics to a
node-exporter textfile instead (see metrics.WriteTextfile).

# Usage

	hs := api.NewHealthServer(version)
	go func() {
		if err := hs.Start(":9283"); err != nil {
			logger.Error().Err(err).Msg("Status server failed")
		}
	}()
	defer hs.Shutdown(context.Background())
*/
package api

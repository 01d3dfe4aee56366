/*
Package events provides an in-memory event broker for strata's convergence
progress.

The convergence executor publishes one event per run transition and per
resource outcome. The CLI subscribes to print progress lines; daemon mode
can attach further subscribers.

	┌──────────────── EVENT BROKER ────────────────┐
	│                                               │
	│  Executor → Publish → queue (buffer: 100)     │
	│                  ↓                            │
	│             delivery loop                     │
	│                  ↓                            │
	│  Subscriber channels (buffer: 50 each)        │
	└───────────────────────────────────────────────┘

Event types:

	converge.started      a run began
	converge.completed    a run finished without a fatal failure
	converge.failed       a run aborted
	resource.updated      a resource changed something
	resource.up_to_date   a resource ran and found nothing to change
	resource.skipped      a guard or missing input skipped a resource
	resource.failed       a resource action failed

Publish never blocks. A full queue drops the event and bumps Dropped; a
slow subscriber misses events rather than stalling the run. Convergence
correctness never depends on event delivery. Stop delivers whatever is still
queued and then closes every subscriber, so ranging over a subscription ends
once the broker stops.

# Usage

	broker := events.NewBroker()
	sub := broker.Subscribe()
	broker.Start()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range sub {
			fmt.Printf("%s %s\n", ev.Type, ev.Resource)
		}
	}()

	// ... run ...
	broker.Stop()
	<-done
*/
package events

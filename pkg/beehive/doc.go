/*
Package beehive provides an embeddable event-routing runtime.

# Overview

Streamers produce events into a shared queue. A dispatch loop drains the
queue and hands every event to a graph of listeners, which filter,
transform and pass results along chains. The Hive owns the queue, the
streamers and the graph, brings them up, runs them under one of two
scheduling models, and tears them down when it is killed.

	hive := beehive.New(beehive.WithLogger(logger))

	hive.Streamer("numbers", func(ctx context.Context) iter.Seq2[any, error] {
	    return func(yield func(any, error) bool) {
	        for i := range 5 {
	            if !yield(i, nil) {
	                return
	            }
	        }
	    }
	}, beehive.Topic("numbers"), beehive.Restart(bee.RunOnce))

	hive.Listener("double", func(ctx context.Context, ev event.Event) (any, error) {
	    return ev.Data().(int) * 2, nil
	}, beehive.Filters("numbers"))

	hive.Listener("print", func(ctx context.Context, ev event.Event) (any, error) {
	    fmt.Println(ev.Data())
	    return nil, nil
	}, beehive.Chain("double"))

	err := hive.Run(ctx, beehive.WithInterrupt())

# Routing

A listener registered without a chain is a root and receives every
dispatched event. Chain(name) makes it a child of every listener carrying
that name; it receives what its parents return. A nil result stops the
chain. Filters restrict a listener to some topics, and a filtered-out event
goes no further down that branch. A listener reachable through several
parents is invoked at most once per dispatched event.

Submitting event.Poison tears down every listener it reaches, children
first. Torn-down listeners receive nothing more.

# Scheduling

WithScheduling(sched.Preemptive), the default, runs every streamer and the
dispatch loop on their own goroutines. WithScheduling(sched.Cooperative)
runs them all as coroutines on the goroutine that called Run; hooks suspend
by calling sched.Yield(ctx). Both models run the same lifecycle and behave
the same from the outside.

# Failure Isolation

A listener, streamer or hook that fails, or panics, is reported through the
hive logger and metrics, recorded in the journal if one is configured, and
passed to the node's OnError hook. The hive keeps running. Only Kill,
Close, cancellation of the run context or an interrupt stop it.

# Transport

SocketListener sends events to a remote hive; SocketStreamer receives them.
Together they let a listener in one process feed a streamer in another:

	sender.SocketListener(transport.Address("10.0.0.2", 7070), "forward", nil)
	receiver.SocketStreamer(transport.Address("0.0.0.0", 7070), beehive.Topic("remote"))

# Configuration

	cfg, _ := config.FromFile("hive.yaml")
	settings, err := config.LoadSettings(cfg)
	hive := beehive.New(beehive.WithSettings(settings))

# Observability

WithMetrics accepts observability.NewMetricsRecorder (OpenTelemetry) or
observability.NewPrometheusRecorder. WithSpans adds run, dispatch and
delivery spans. WithJournal records isolated failures in a journal.Store.
*/
package beehive

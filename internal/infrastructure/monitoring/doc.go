/*
Package monitoring collects Prometheus metrics for the simulator.

Metrics implements svc.Observer, so every client created with
svc.WithObserver(metrics) reports each supervisor call and IPC round trip,
labelled by syscall name or command id and by the result description.

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)
	client := svc.NewClient(kernel, storage, svc.WithObserver(metrics))

	go metrics.Run(ctx, kernel, time.Second)
	router.Use(monitoring.Middleware(metrics))
*/
package monitoring

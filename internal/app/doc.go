// Package app launches client applications on the simulated kernel.
//
// Each application is a process with one attached thread running a
// Workload: it talks to srv:, cfg and err:f over IPC, maps shared memory
// blocks and hands work to a second thread under a kernel mutex, reporting
// every round on the debug console.
//
// Example Usage:
//
//	manager := app.NewManager(kernel, app.WithObserver(metrics))
//	a, err := manager.Spawn("demo", app.DefaultConfig())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer manager.StopAll()
package app

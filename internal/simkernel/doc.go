// Package simkernel is an in-process kernel that executes the traps issued
// through package svc. It keeps a handle table and a memory map per
// process, runs kernel threads as goroutines, and dispatches IPC requests
// to services written in Go against the same ipc package applications use.
//
// Every piece of kernel state is guarded by a single lock; blocking calls
// wait on a condition variable tied to it and are woken by any state
// change. The simulation favors being easy to reason about over being fast.
package simkernel

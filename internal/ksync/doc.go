// Package ksync provides synchronization primitives backed by kernel
// objects: events, mutexes and the address arbiter.
//
// Operations whose meaning depends on the calling thread, such as locking a
// mutex, take that thread's *svc.Client.
package ksync

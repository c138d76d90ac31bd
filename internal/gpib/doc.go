// Package gpib holds the instrument connection subsystem: the per-model
// Driver implementations, the Registry that picks a Driver for a model type,
// and the Manager that tracks which instruments currently have a live session.
//
// Bus I/O is simulated. Each driver waits a model-specific latency and draws
// its handshake outcome and readings from an injectable random source, so a
// hardware-backed driver can replace the bodies without changing the
// contract.
package gpib

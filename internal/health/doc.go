// Package health provides the liveness and readiness probes served on the
// admin port.
//
// Probes compose with [All], [Named] and [WithTimeout]. [ShutdownGate] fails readiness as
// soon as shutdown begins so the load balancer stops routing to the
// instance before the listener drains.
package health

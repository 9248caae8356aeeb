// Package port checks host port availability for the application's
// service port.
//
// The install flow asks the operator for SERVICE_PORT. Before the value is
// written to .env, Scanner confirms nothing else is bound to it and, when
// something is, suggests the next free port so the service does not fail
// to start after the unit is enabled.
package port

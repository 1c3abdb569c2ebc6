// Package e2e runs the contract suites end to end against the mock API served
// on a real listener, optionally through a recording proxy that injects faults.
//
// Run with: go test -tags=e2e ./tests/e2e/...
package e2e

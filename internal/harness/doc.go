// Package harness runs race scenarios against the real engine.
//
// A scenario is a YAML file naming a CUE event definition and a list of
// steps: registrations, punches in arrival order, clock advances, status
// overrides, retractions and event close. Every step goes through the
// engine's public API and its single-writer loop, exactly as a reader or an
// operator would drive it, on a manual wall clock with sequential ids.
//
// After the steps, assertions check statuses, splits, punch histories,
// rankings and the review queue. The final rankings and review queue are
// rendered as text and compared to a golden file:
//
//	go test ./internal/harness -update
//
// regenerates the golden files after an intended change.
//
// CheckOrderIndependence reruns a scenario with its punches delivered in
// reverse and reports any difference in the outcome.
package harness

// Package result derives a competitor's race status and splits from their
// punch history.
//
// Everything here is a pure function of its inputs. The engine calls
// Classify after every change to a competitor's history, so the status can
// never drift from what the punches say.
package result

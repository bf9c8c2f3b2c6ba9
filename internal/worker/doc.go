// Package worker consumes analysis tasks from the queue and drives them
// through the AI analysis pipeline. It owns the claim/execute/settle cycle:
// each delivery is claimed with an atomic status transition so that
// redelivered messages cannot be executed twice, results are committed to the
// store before the queue delivery is acknowledged, and failed attempts are
// requeued until the attempt ceiling is reached.
//
// The package also runs the recovery paths: a startup sweep that returns
// orphaned tasks to the queue and a periodic monitor that rescues tasks stuck
// in the processing state after a worker crash.
package worker

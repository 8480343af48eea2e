// Package workflow drives a job through the pipeline stages.
//
// The Manager walks the fixed stage order (shredding, analyzing, cover,
// prompts, images) and gates each stage on durable state: shredding runs
// only while the job has no units, and every later stage runs only while
// the job's progress is below that stage's exit threshold. Re-running a
// job therefore resumes at the first unfinished stage, and the handlers
// themselves skip work that is already persisted.
//
// Each stage records its entry threshold before it starts, interpolates
// progress between entry and exit as units complete, and records its exit
// threshold when it finishes. A failure moves the job to Error with the
// progress it had reached.
//
// At most one runner exists per job inside the process. Launch starts a
// detached runner and Running reports whether one is alive, which the
// intake guard uses to tell a live job from an orphaned one.
package workflow

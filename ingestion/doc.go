// Package ingestion provides pipeline orchestration for indexing images.
//
// The Pipeline type manages the ingestion workflow for a single image:
//   - Registering an async task in the QUEUED state
//   - Fingerprinting the image content
//   - Generating a semantic embedding
//   - Writing the vector index entry, then the raw blob
//   - Recording the terminal task outcome
//
// Dispatch submits work to a worker pool and returns immediately; callers
// poll task status by ID. Processing errors are recorded on the task rather
// than returned to the submitter.
package ingestion

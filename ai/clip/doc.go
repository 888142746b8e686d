// Package clip provides an ai.Encoder backed by an OpenAI-compatible
// multimodal embedding endpoint.
//
// CLIP/SigLIP inference servers (infinity, vLLM and similar) expose image
// embedding through the standard /v1/embeddings API, accepting base64 data
// URIs as input. This package wraps that contract behind the ai.Encoder
// interface; model internals never leak into the ingestion core.
package clip

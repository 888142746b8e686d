// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package ai provides abstractions for the model-backed capabilities used in
// imago.
//
// This package defines interfaces for the two operations the ingestion
// pipeline consumes: semantic image embedding and perceptual fingerprinting.
// It follows the dependency inversion principle, allowing the core domain and
// business logic to depend on abstractions rather than concrete
// implementations; model internals stay behind the interface boundary.
//
// # Design Principles
//
// The package is designed around two key interfaces:
//
//   - Encoder: Generates a fixed-length embedding vector from image bytes
//   - Fingerprinter: Derives a stable content key from image bytes
//
// # Implementation Packages
//
//   - ai/clip: Encoder backed by an OpenAI-compatible multimodal embedding
//     endpoint (CLIP/SigLIP inference servers)
//   - ai/phash: Fingerprinter computing a 64-bit perceptual hash
//   - ai/mock: Test doubles for unit testing without external dependencies
//
// # Constructor Return Type Pattern
//
// Public constructors (clip.NewEncoder, phash.NewFingerprinter) return
// INTERFACE types to enforce abstraction. Test utility constructors in
// ai/mock return CONCRETE types to enable behavior injection and call-count
// assertions.
package ai

// Package action provides the core value types shared by the scheduler,
// the policy transport and the rollout tooling.
//
//   - [Vector]: one flat action command of dimensionality D
//   - [Chunk]: an ordered run of Vectors predicted by one policy call
//   - [Layout]: the named sub-field split of a Vector
//   - [Command]: a Vector decoded into named sub-vectors
//   - [Observation]: typed camera and proprioception input
//
// # Example
//
//	layout := action.R1()
//	cmd := layout.Decode(v)
//	base := cmd["mobile_base"]
//
// Chunks are consumed from the front and are not safe for concurrent use.
package action

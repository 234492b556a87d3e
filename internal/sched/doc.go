// Package sched turns a stream of observations into one action per control
// step by periodically querying a remote policy for action chunks and
// blending the chunks that overlap in time.
//
// Three execution modes are supported:
//
//   - [ModeRecedingHorizon]: execute the newest chunk open loop, replan when
//     it runs out.
//   - [ModeTemporalEnsemble]: replan when the newest chunk runs out and blend
//     whatever partially consumed chunks remain queued.
//   - [ModeRecedingTemporal]: replan every K steps regardless, so chunks
//     overlap, and always blend.
//
// Blending pops the head of every queued chunk and averages them with
// weights exp(k*i), i being the chunk's insertion index (oldest is 0).
// Gripper dimensions are never averaged; they are copied from the newest
// chunk so a gripper is never commanded half open.
//
// # Thread Safety
//
// A Scheduler is NOT safe for concurrent use. Create one per rollout.
package sched

// Package viz provides a terminal live view of a running rollout.
//
// The view steps the scheduler once per tick and shows the decoded command
// fields, the scheduler status, queue occupancy and an asciigraph history of
// one selected action dimension.
//
// # Key Bindings
//
//	Space          - Pause/Resume
//	R              - Reset the episode
//	Tab/Shift+Tab  - Select action dimension
//	T              - Cycle color themes
//	Q              - Quit
package viz

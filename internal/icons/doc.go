// Package icons defines the core types shared by the icon harvesting
// pipeline: tasks, per-word outcomes, fetch envelopes, and the typed errors
// that the job executor reports back to the batch aggregator.
package icons

// Package media defines the staged file records the import pipeline
// produces and the scanner that discovers source files. Each stage's
// record embeds the previous stage's record unchanged, so a partially
// processed batch can be inspected at any stage boundary.
package media

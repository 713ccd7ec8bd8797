// Package hashing computes the content hashes used for integrity
// verification and duplicate detection.
package hashing

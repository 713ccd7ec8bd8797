// Package storagekind decides whether a path lives on local or
// network-attached storage and supplies the I/O policy the transfer layer
// applies for each kind. Unrecognized mounted volumes classify as network
// at any depth; the union of mixed batches is always the network policy.
package storagekind

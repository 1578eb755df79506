// Copyright 2025 dacapoday
// SPDX-License-Identifier: Apache-2.0

// Package pagestore implements a paged random-access store on top of a
// single host file. The file is split into fixed-size pages, each
// assigned a kind (root, free-list, data, or application-defined
// entry); the package exposes an API to create, read, write, and
// delete logical pages of arbitrary byte length. A logical page that
// exceeds its raw page payload is transparently spilled across a
// linked chain of data pages, and pages released by the caller are
// recycled through an on-disk free-list so the file does not grow
// indefinitely.
//
// The store is single-threaded and synchronous: no operation
// suspends, and there is no locking because there is no internal
// concurrency. Wrap the whole Store in an external mutex if it needs
// to be shared across goroutines.
package pagestore

import "io"

// File is the host file abstraction the store is built on. *os.File
// satisfies it.
type File interface {
	io.ReaderAt
	io.WriterAt
	io.Closer
	io.Seeker

	// Truncate changes the size of the file.
	Truncate(size int64) error

	// Sync flushes written data to stable storage. Save calls it once
	// after every dirty page has been written out.
	Sync() error
}

// Address identifies a page within the file. Address 0 always
// designates the root page; in every other context it is the null
// ("no neighbor") sentinel.
type Address = uint16

// RootAddress is the fixed address of the one root page per file.
const RootAddress Address = 0

// Package storage persists linkwatch's durable records.
//
// Records are small named JSON documents (monitor state, blacklist,
// targets) written whole on every change. Operator mutations are appended
// to an audit log.
package storage

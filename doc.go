// Package liekodb is an embeddable, single-process document database: each
// collection lives entirely in memory, is queried and updated with a
// MongoDB-style filter/operator surface, and is periodically and atomically
// snapshotted to a single JSON file on local storage.
//
// Reads never wait on persistence; a debounced, per-collection background
// task (internal/persist) is responsible for getting dirty collections onto
// disk. See Engine for the top-level entry point.
package liekodb

import "go.mongodb.org/mongo-driver/bson"

// Doc is a document: an unordered mapping of field name to value. It is a
// thin alias over bson.M so that filter and update documents written by
// callers ($set, $gte, $and, ...) are ordinary Go map literals.
type Doc = bson.M

// List is an array value as found nested inside a Doc.
type List = bson.A

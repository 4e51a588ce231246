// Package tank reads Tank archives, the read-only resource containers used
// by Dungeon Siege.
//
// An archive holds a directory table and a file table, both addressed by
// byte offsets, followed by a data section. Files are stored either raw or
// split into independently compressed chunks, where each compressed chunk
// may carry a tail of literal bytes appended after decompression.
//
// Load parses the index once into an immutable Archive; payload bytes are
// read on every ReadFile call and never cached. An Archive is safe for
// concurrent use.
//
// Path lookups are case-insensitive. Paths are slash separated and rooted
// at "/"; backslashes are accepted and converted.
//
// The overlay package composes many archives into one priority-ordered
// namespace.
package tank

// Package formats parses the binary asset files the data extractor emits:
// map chunks (.chunk), map object roots and meshes (.mroot/.mmesh) and
// complex models (.cmodel). Parsers validate magic and version tokens and
// return the shared sentinel errors from reader.go on malformed input.
package formats

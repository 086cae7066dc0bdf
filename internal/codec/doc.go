// Package codec decompresses staged asset slices.
//
// Release assets are stored as raw (headerless) deflate streams. zlib and
// zstd are accepted as well, and "auto" picks one from the stream header.
package codec

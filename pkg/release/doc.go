// Package release describes a game client release as published on the patch
// CDN: its package manifest, the files it lists and the numbered archives
// those files are packed into.
//
// This package has no network or disk side effects apart from reading the
// manifest stream handed to [Parse]. Fetching and extraction live elsewhere.
//
// # Manifest Format
//
// The manifest is plain text. The first line is the literal magic [ManifestMagic].
// Every following line describes one file:
//
//	/projects/lol_game_client/releases/0.0.0.130/files/DATA/x.luaobj.compressed,BIN_0x00000003,1048576,2048,0
//
// Fields are the remote name, the containing archive, the byte offset inside
// that archive, the compressed size and an auxiliary flag. Lines may end with
// CRLF or LF.
//
// # Layout
//
// A [Layout] turns manifest names into URLs and local paths:
//
//	{base}{path}{name}                                          file URL
//	{base}{path}/projects/lol_game_client/releases/{version}/packages/files/BIN_0x{id}  archive URL
//	{dest}/{name after "files"}                                 staging path
//	{dest}/{name after "files" without its extension}           final path
//	{dest}/BIN_0x{id}                                           archive path
//
// # Archives
//
// [BuildArchiveIndex] derives one [ArchiveRecord] per distinct archive id in
// ascending id order. Archive sizes are filled in by the caller after probing
// the remote, and [CheckSizes] compares them with the sum of file sizes.
package release

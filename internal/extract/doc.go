// Package extract reconstructs game files from downloaded archives.
//
// Every file is a compressed byte range of an archive. Extract copies the
// range into a staging file next to the final path, then Finalize
// decompresses it and removes the staging file:
//
//	BIN_0x00000000[offset:offset+size] -> DATA/a.luaobj.compressed -> DATA/a.luaobj
//
// A missing archive (ErrMissingArchive) stops the caller's run. Range and
// truncation errors only concern the one file.
package extract

// Package transfer moves one remote object into one local file, resuming
// partial files by size comparison.
//
// The manifest, every archive and every individually downloaded file go
// through Transfer. Its decision table:
//
//	local missing          -> download from scratch
//	local < remote         -> append from the local size
//	local == remote        -> skip (Force: remove and download again)
//	local > remote         -> warn and leave (Force: remove and download again)
//
// Transfer does not retry; request-level retries belong to the transport.
package transfer

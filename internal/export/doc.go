// Package export uploads downloaded archives to object storage through
// gocloud.dev/blob, so a release can be mirrored before local archives are
// deleted.
//
// Objects are keyed <prefix>/<archive name>. An object that already exists
// with the local size is not uploaded again.
package export

// Package content holds the static site pages the server is currently
// serving and keeps them up to date.
//
//   - [Manager] keeps the active [Snapshot] behind an atomic.Pointer so page
//     reads never take a lock.
//   - [Loader] resolves the current bundle hash from SSM, downloads
//     <prefix>/<hash>.tar.gz from S3, checks the hash and an optional KMS
//     signature, and extracts the archive into memory.
//   - [Watcher] polls the hash and swaps in new bundles, backing off while
//     SSM is failing.
//
// Extraction rejects links, devices, absolute paths and traversal, and caps
// compressed, per-file and total sizes.
package content

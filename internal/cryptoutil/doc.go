// Package cryptoutil verifies content bundles: constant-time hash
// comparison and detached signatures checked against an AWS KMS public key.
package cryptoutil

// Package minio provides a block device backed by MinIO or any
// S3-compatible endpoint reachable through the MinIO client.
//
// The layout matches the device/s3 package: one object per block under a
// key prefix, encoded with the self-describing device codec, missing
// objects reading as zeroes.
package minio

// Package minio provides a blobstore.Store backed by MinIO or any
// S3-compatible object storage.
//
// Useful when index blobs should survive the local host, e.g. agents running
// on ephemeral machines that rebuild their memory store from a shared bucket.
package minio

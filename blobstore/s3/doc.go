// Package s3 provides a blobstore.Store backed by Amazon S3.
package s3

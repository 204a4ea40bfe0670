// Package s3 provides a block device backed by Amazon S3 or any
// S3-compatible API.
//
// Each block is stored as one object under a key prefix
// ("<prefix>/blk-<block>"), so writes are naturally atomic per block and
// the device needs no superblock on the data path. Blocks are encoded with
// the self-describing device codec, optionally LZ4 or ZSTD compressed;
// object stores hold variable-size records, so compression actually
// shrinks storage and transfer, unlike on fixed-slot local devices.
//
// Never-written blocks read as zeroes, giving the device sparse-image
// semantics.
//
// The optional SuperblockStore records device geometry in DynamoDB with a
// conditional put, so two writers cannot format the same prefix with
// conflicting block sizes. DynamoDB supplies the compare-and-swap
// semantics S3 lacks.
package s3

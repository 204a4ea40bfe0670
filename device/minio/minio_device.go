package minio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"

	"github.com/minio/minio-go/v7"

	"github.com/hupe1980/diskcore/device"
)

// Options configures a MinIO block device.
type Options struct {
	// Prefix is prepended to all object keys (e.g. "disks/vol0").
	Prefix string
	// Compression selects the block codec applied before upload.
	Compression device.Compression
}

// Device implements device.Device over one object per block in a MinIO
// bucket.
type Device struct {
	client *minio.Client
	bucket string
	opts   Options

	blockSize int
	numBlocks uint32
}

// New creates a MinIO block device over an existing client.
func New(client *minio.Client, bucket string, blockSize int, numBlocks uint32, optFns ...func(*Options)) *Device {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Device{
		client:    client,
		bucket:    bucket,
		opts:      opts,
		blockSize: blockSize,
		numBlocks: numBlocks,
	}
}

// WithPrefix sets the object key prefix.
func WithPrefix(prefix string) func(*Options) {
	return func(o *Options) { o.Prefix = prefix }
}

// WithCompression sets the block codec applied before upload.
func WithCompression(c device.Compression) func(*Options) {
	return func(o *Options) { o.Compression = c }
}

func (d *Device) key(block uint32) string {
	return path.Join(d.opts.Prefix, fmt.Sprintf("blk-%08x", block))
}

// BlockSize returns the size of one block in bytes.
func (d *Device) BlockSize() int { return d.blockSize }

// NumBlocks returns the number of addressable blocks.
func (d *Device) NumBlocks() uint32 { return d.numBlocks }

// ReadBlock fetches one block object. A missing object reads as zeroes.
func (d *Device) ReadBlock(ctx context.Context, block uint32, p []byte) error {
	if err := d.check(block, p); err != nil {
		return err
	}

	obj, err := d.client.GetObject(ctx, d.bucket, d.key(block), minio.GetObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio: read block %d: %w", block, err)
	}
	defer obj.Close()

	stored, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			clear(p)
			return nil
		}
		return fmt.Errorf("minio: read block %d: %w", block, err)
	}
	return device.DecompressBlock(stored, p)
}

// WriteBlock uploads one block object.
func (d *Device) WriteBlock(ctx context.Context, block uint32, p []byte) error {
	if err := d.check(block, p); err != nil {
		return err
	}

	stored, err := device.CompressBlock(p, d.opts.Compression)
	if err != nil {
		return err
	}

	_, err = d.client.PutObject(ctx, d.bucket, d.key(block),
		bytes.NewReader(stored), int64(len(stored)), minio.PutObjectOptions{})
	if err != nil {
		return fmt.Errorf("minio: write block %d: %w", block, err)
	}
	return nil
}

// Sync is a no-op: every WriteBlock is durable once the upload returns.
func (d *Device) Sync(context.Context) error { return nil }

// Close releases nothing; the client is owned by the caller.
func (d *Device) Close() error { return nil }

func (d *Device) check(block uint32, p []byte) error {
	if block >= d.numBlocks {
		return fmt.Errorf("%w: block %d, device has %d", device.ErrOutOfRange, block, d.numBlocks)
	}
	if len(p) != d.blockSize {
		return &device.ErrShortBuffer{BlockSize: d.blockSize, Got: len(p)}
	}
	return nil
}

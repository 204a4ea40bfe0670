package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/hupe1980/diskcore/device"
)

// Client is the subset of the S3 API used by the device. *s3.Client
// satisfies it.
type Client interface {
	manager.UploadAPIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Options configures an S3 block device.
type Options struct {
	// Prefix is prepended to all object keys (e.g. "disks/vol0").
	Prefix string
	// Compression selects the block codec applied before upload.
	Compression device.Compression
	// PartSize and Concurrency tune the uploader. Zero keeps SDK defaults.
	PartSize    int64
	Concurrency int
}

// Device implements device.Device over one object per block.
type Device struct {
	client   Client
	uploader *manager.Uploader
	bucket   string
	opts     Options

	blockSize int
	numBlocks uint32
}

// New creates an S3 block device using the default AWS configuration
// chain (environment, shared config, IMDS).
func New(ctx context.Context, bucket string, blockSize int, numBlocks uint32, optFns ...func(*Options)) (*Device, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3: load aws config: %w", err)
	}
	return NewFromClient(s3.NewFromConfig(cfg), bucket, blockSize, numBlocks, optFns...), nil
}

// NewFromClient creates an S3 block device over an existing client.
func NewFromClient(client Client, bucket string, blockSize int, numBlocks uint32, optFns ...func(*Options)) *Device {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}

	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if opts.PartSize > 0 {
			u.PartSize = opts.PartSize
		}
		if opts.Concurrency > 0 {
			u.Concurrency = opts.Concurrency
		}
	})

	return &Device{
		client:    client,
		uploader:  uploader,
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

	resp, err := d.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(block)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			clear(p)
			return nil
		}
		return fmt.Errorf("s3: read block %d: %w", block, err)
	}
	defer resp.Body.Close()

	stored, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("s3: read block %d body: %w", block, err)
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

	_, err = d.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(d.bucket),
		Key:    aws.String(d.key(block)),
		Body:   bytes.NewReader(stored),
	})
	if err != nil {
		return fmt.Errorf("s3: write block %d: %w", block, err)
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

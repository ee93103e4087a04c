package audit

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"autoheal/services/healer"
)

const archiveContentType = "application/zstd"

// ObjectPutter uploads one object; *s3.Client satisfies it.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key, contentType string, r io.Reader, size int64, sha256 string) error
}

// S3Archive stores each audit entry as a compressed JSON object.
type S3Archive struct {
	store  ObjectPutter
	bucket string
	prefix string
	newID  func() uuid.UUID
}

// NewS3Archive writes under bucket/prefix.
func NewS3Archive(store ObjectPutter, bucket, prefix string) (*S3Archive, error) {
	if store == nil {
		return nil, errors.New("object store is required")
	}
	if bucket == "" {
		return nil, errors.New("bucket is required")
	}
	return &S3Archive{
		store:  store,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		newID:  uuid.New,
	}, nil
}

// Append uploads entry.
func (a *S3Archive) Append(ctx context.Context, entry healer.AuditEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode audit entry: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return fmt.Errorf("zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return fmt.Errorf("compress audit entry: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("close zstd writer: %w", err)
	}

	sum := sha256.Sum256(buf.Bytes())
	key := a.key(entry)
	if err := a.store.PutObject(ctx, a.bucket, key, archiveContentType, bytes.NewReader(buf.Bytes()), int64(buf.Len()), hex.EncodeToString(sum[:])); err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}

func (a *S3Archive) key(entry healer.AuditEntry) string {
	ts := entry.Timestamp.UTC()
	instance := entry.InstanceID
	if instance == "" {
		instance = "unknown"
	}
	name := fmt.Sprintf("%s-%s.json.zst", ts.Format("20060102T150405.000000000Z"), a.newID())
	return path.Join(a.prefix, ts.Format("2006/01/02"), instance, name)
}

// Decode reverses Append's encoding.
func Decode(r io.Reader) (healer.AuditEntry, error) {
	dec, err := zstd.NewReader(r)
	if err != nil {
		return healer.AuditEntry{}, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	var entry healer.AuditEntry
	if err := json.NewDecoder(dec).Decode(&entry); err != nil {
		return healer.AuditEntry{}, fmt.Errorf("decode audit entry: %w", err)
	}
	return entry, nil
}

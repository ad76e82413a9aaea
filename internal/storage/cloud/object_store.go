package cloud

import (
	"context"
	"fmt"
	"io"

	gcs "cloud.google.com/go/storage"

	"github.com/scrypster/memento/internal/storage"
)

// objectStoreThreshold is the content-size cutoff past which content is
// moved to object storage and the relational row keeps only a reference
// key, per the cloud backend's object store contract.
const objectStoreThreshold = 1 << 20 // 1 MiB

// objectStore is the optional overflow store for content past the size
// threshold. When nil, oversized content is stored inline (acceptable
// for deployments without a bucket configured; just costlier rows).
type objectStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

func newObjectStore(ctx context.Context, bucket, prefix string) (*objectStore, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, storage.Wrap(storage.KindMisconfigured, "create gcs client", "", err)
	}
	if prefix == "" {
		prefix = "memories/"
	}
	return &objectStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (o *objectStore) close() error {
	if o == nil {
		return nil
	}
	return o.client.Close()
}

func (o *objectStore) key(contentHash string) string {
	return fmt.Sprintf("%s%s", o.prefix, contentHash)
}

// put writes content if it exceeds objectStoreThreshold, returning the
// reference key. Content under the threshold is left untouched (empty
// ref, caller keeps it inline).
func (o *objectStore) put(ctx context.Context, contentHash, content string) (string, error) {
	if o == nil || len(content) < objectStoreThreshold {
		return "", nil
	}
	key := o.key(contentHash)
	w := o.client.Bucket(o.bucket).Object(key).NewWriter(ctx)
	if _, err := io.WriteString(w, content); err != nil {
		_ = w.Close()
		return "", storage.Wrap(storage.KindIO, "write object store content", contentHash, err)
	}
	if err := w.Close(); err != nil {
		return "", storage.Wrap(storage.KindIO, "close object store writer", contentHash, err)
	}
	return key, nil
}

// get resolves a reference key back to content.
func (o *objectStore) get(ctx context.Context, key string) (string, error) {
	if o == nil {
		return "", storage.Misconfigured("content overflowed to object store but no object store is configured")
	}
	r, err := o.client.Bucket(o.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return "", storage.Wrap(storage.KindIO, "read object store content", key, err)
	}
	defer r.Close()
	b, err := io.ReadAll(r)
	if err != nil {
		return "", storage.Wrap(storage.KindIO, "drain object store content", key, err)
	}
	return string(b), nil
}

func (o *objectStore) delete(ctx context.Context, key string) error {
	if o == nil || key == "" {
		return nil
	}
	if err := o.client.Bucket(o.bucket).Object(key).Delete(ctx); err != nil {
		return storage.Wrap(storage.KindIO, "delete object store content", key, err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
)

// azureExpiryKey must be a valid C# identifier, hence no dash.
const azureExpiryKey = "cacheexpiry"

// AzureStore implements Store on an Azure Blob Storage container.
type AzureStore struct {
	client        *azblob.Client
	containerName string
}

// NewAzureStore connects with a storage account connection string.
func NewAzureStore(connectionString, containerName string) (*AzureStore, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create azure client: %w", err)
	}
	return &AzureStore{client: client, containerName: containerName}, nil
}

func (s *AzureStore) Put(ctx context.Context, key string, data []byte, meta Metadata) error {
	opts := &azblob.UploadBufferOptions{
		HTTPHeaders: &blob.HTTPHeaders{
			BlobContentType:        meta.ContentType,
			BlobContentLanguage:    meta.ContentLanguage,
			BlobContentDisposition: meta.ContentDisposition,
			BlobContentEncoding:    meta.ContentEncoding,
			BlobCacheControl:       meta.CacheControl,
		},
	}
	if meta.CacheExpiry != nil {
		opts.Metadata = map[string]*string{
			azureExpiryKey: to.Ptr(meta.CacheExpiry.UTC().Format(time.RFC3339)),
		}
	}
	if _, err := s.client.UploadBuffer(ctx, s.containerName, key, data, opts); err != nil {
		return fmt.Errorf("upload blob %q: %w", key, err)
	}
	return nil
}

func (s *AzureStore) Get(ctx context.Context, key string) (*Object, error) {
	resp, err := s.client.DownloadStream(ctx, s.containerName, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("download blob %q: %w", key, err)
	}

	meta := Metadata{
		ContentType:        resp.ContentType,
		ContentLanguage:    resp.ContentLanguage,
		ContentDisposition: resp.ContentDisposition,
		ContentEncoding:    resp.ContentEncoding,
		CacheControl:       resp.CacheControl,
	}
	for k, v := range resp.Metadata {
		if strings.EqualFold(k, azureExpiryKey) && v != nil {
			if t, err := time.Parse(time.RFC3339, *v); err == nil {
				meta.CacheExpiry = &t
			}
		}
	}

	obj := &Object{
		Key:      key,
		Body:     resp.Body,
		Metadata: meta,
	}
	if resp.ContentLength != nil {
		obj.Size = *resp.ContentLength
	}
	if resp.ETag != nil {
		obj.ETag = trimETag(string(*resp.ETag))
	}
	if resp.LastModified != nil {
		obj.UploadedAt = *resp.LastModified
	}
	return obj, nil
}

func (s *AzureStore) List(ctx context.Context, prefix string) ([]Summary, error) {
	opts := &container.ListBlobsFlatOptions{}
	if prefix != "" {
		opts.Prefix = &prefix
	}

	var results []Summary
	pager := s.client.NewListBlobsFlatPager(s.containerName, opts)
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list blobs %q: %w", prefix, err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name == nil {
				continue
			}
			summary := Summary{Key: *item.Name}
			if p := item.Properties; p != nil {
				if p.ContentLength != nil {
					summary.Size = *p.ContentLength
				}
				if p.LastModified != nil {
					summary.UploadedAt = *p.LastModified
				}
			}
			results = append(results, summary)
		}
	}
	return results, nil
}

func (s *AzureStore) Delete(ctx context.Context, key string) error {
	if _, err := s.client.DeleteBlob(ctx, s.containerName, key, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete blob %q: %w", key, err)
	}
	return nil
}

var _ Store = (*AzureStore)(nil)

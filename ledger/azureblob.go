package ledger

import (
	"context"
	"errors"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/kimberlitedb/kimberlite-sub005/internal/logging"
)

// maxCheckpointBlobBytes bounds a single checkpoint-publication read,
// guarding against a misconfigured container serving unbounded data.
const maxCheckpointBlobBytes = 16 << 20

// AzureBlobStore publishes signed compliance checkpoints to immutable
// off-cluster storage, the teacher's exact "periodically publish the
// root to something we can't change" pattern from massifcommitter.go,
// repurposed from MMR roots to hash-chain checkpoints. It is not used
// for the hot segment write path.
type AzureBlobStore struct {
	client *azblob.Client
	container string
	log    logging.Logger
}

// NewAzureBlobStore wraps an already-authenticated azblob.Client.
func NewAzureBlobStore(client *azblob.Client, container string, log logging.Logger) *AzureBlobStore {
	return &AzureBlobStore{client: client, container: container, log: log}
}

func (s *AzureBlobStore) Put(ctx context.Context, path string, data []byte, ifMatchETag string, failIfExists bool) (string, error) {
	opts := &azblob.UploadBufferOptions{}
	var accessConditions azblob.AccessConditions
	if failIfExists {
		// The way to spell "fail without modifying if the blob exists"
		// is to require that no blob matches *any* etag.
		accessConditions.ModifiedAccessConditions = &azblob.ModifiedAccessConditions{
			IfNoneMatch: to.Ptr(azblob.ETagAny),
		}
	} else if ifMatchETag != "" {
		accessConditions.ModifiedAccessConditions = &azblob.ModifiedAccessConditions{
			IfMatch: to.Ptr(azblob.ETag(ifMatchETag)),
		}
	} else {
		return "", errors.New("ledger: azure put requires either ifMatchETag or failIfExists")
	}
	opts.AccessConditions = &accessConditions

	resp, err := s.client.UploadBuffer(ctx, s.container, path, data, opts)
	if err != nil {
		err = translateAzureError(err)
		if failIfExists && errors.Is(err, ErrETagMismatch) {
			return "", ErrAlreadyExists
		}
		return "", err
	}
	if resp.ETag == nil {
		return "", nil
	}
	return string(*resp.ETag), nil
}

func (s *AzureBlobStore) Get(ctx context.Context, path string) ([]byte, string, error) {
	resp, err := s.client.DownloadStream(ctx, s.container, path, nil)
	if err != nil {
		return nil, "", translateAzureError(err)
	}
	defer resp.Body.Close()

	body, err := readAllClamped(resp.Body, maxCheckpointBlobBytes)
	if err != nil {
		return nil, "", err
	}
	etag := ""
	if resp.ETag != nil {
		etag = string(*resp.ETag)
	}
	return body, etag, nil
}

func (s *AzureBlobStore) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	pager := s.client.NewListBlobsFlatPager(s.container, &azblob.ListBlobsFlatOptions{
		Prefix: to.Ptr(prefix),
	})
	for pager.More() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, translateAzureError(err)
		}
		for _, item := range page.Segment.BlobItems {
			if item.Name != nil {
				out = append(out, strings.TrimPrefix(*item.Name, prefix))
			}
		}
	}
	return out, nil
}

func translateAzureError(err error) error {
	if err == nil {
		return nil
	}
	var respErr interface{ StatusCode() int }
	if errors.As(err, &respErr) {
		switch respErr.StatusCode() {
		case 404:
			return ErrNotFound
		case 409, 412:
			return ErrETagMismatch
		}
	}
	return err
}

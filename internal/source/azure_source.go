package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	apperrors "go-quiz-helper/internal/errors"
	"go-quiz-helper/pkg/models"
)

// blobDownloader is the subset of *azblob.Client the source needs
type blobDownloader interface {
	DownloadStream(ctx context.Context, containerName, blobName string, o *azblob.DownloadStreamOptions) (azblob.DownloadStreamResponse, error)
}

type azureSource struct {
	client      blobDownloader
	container   string
	defaultBlob string
	limits      Limits
}

// NewAzureSource reads captures that a device uploaded to a blob container
func NewAzureSource(accountName, accountKey, container, defaultBlob string, limits Limits) (ImageSource, error) {
	credential, err := azblob.NewSharedKeyCredential(accountName, accountKey)
	if err != nil {
		return nil, fmt.Errorf("azure credential: %w", err)
	}

	client, err := azblob.NewClientWithSharedKeyCredential(
		fmt.Sprintf("https://%s.blob.core.windows.net", accountName),
		credential,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("azure client: %w", err)
	}

	return newAzureSource(client, container, defaultBlob, limits), nil
}

func newAzureSource(client blobDownloader, container, defaultBlob string, limits Limits) *azureSource {
	return &azureSource{
		client:      client,
		container:   container,
		defaultBlob: defaultBlob,
		limits:      limits,
	}
}

func (s *azureSource) Name() string { return "azure" }

func (s *azureSource) Acquire(ctx context.Context, req Request) (*models.Image, error) {
	blobName := req.BlobName
	if blobName == "" {
		blobName = s.defaultBlob
	}
	if blobName == "" {
		return nil, apperrors.NewCaptureError("no blob name given", nil)
	}

	resp, err := s.client.DownloadStream(ctx, s.container, blobName, nil)
	if err != nil {
		capErr := apperrors.NewCaptureError(fmt.Sprintf("download of %s/%s failed", s.container, blobName), err)
		var respErr *azcore.ResponseError
		if errors.As(err, &respErr) {
			capErr.WithDetails(fmt.Sprintf("status %d, code %s", respErr.StatusCode, respErr.ErrorCode))
		}
		return nil, capErr
	}
	if resp.Body == nil {
		return nil, apperrors.NewCaptureError("blob has no content", nil)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, s.limits.MaxBytes)
	if err != nil {
		return nil, err
	}
	return decodeImage(data, blobName, s.limits.MaxPixels)
}

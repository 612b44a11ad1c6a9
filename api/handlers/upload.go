package handlers

import (
	"context"
	"io"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
)

// Uploader is the external upload service. It accepts file bytes and returns
// the reference this service stores; file contents never land in mongo.
type Uploader interface {
	Upload(ctx context.Context, file io.Reader, publicID string) (string, error)
}

// CloudinaryUploader uploads donor documents to Cloudinary
type CloudinaryUploader struct {
	cld *cloudinary.Cloudinary
}

// NewCloudinaryUploader builds an uploader from the CLOUDINARY_URL env var
func NewCloudinaryUploader() (Uploader, error) {
	cld, err := cloudinary.New()
	if err != nil {
		return nil, err
	}
	return &CloudinaryUploader{cld: cld}, nil
}

// Upload sends the file and returns its secure URL
func (u *CloudinaryUploader) Upload(ctx context.Context, file io.Reader, publicID string) (string, error) {
	resp, err := u.cld.Upload.Upload(ctx, file, uploader.UploadParams{
		Folder:   "donor-documents",
		PublicID: publicID,
	})
	if err != nil {
		return "", err
	}
	return resp.SecureURL, nil
}

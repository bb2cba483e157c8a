package transcripts

import (
	"context"
	"fmt"
	"io"

	"lichtfeld/config"
	"lichtfeld/logger"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// UploadToS3WithCreds uploads the transcript to Bucket/Folder/name using static credentials.
func UploadToS3WithCreds(ctx context.Context, settings config.TranscriptSettings, name string, reader io.Reader) error {
	if settings.Bucket == "" {
		return fmt.Errorf("s3 sink requires a bucket")
	}
	creds := credentials.NewStaticCredentialsProvider(settings.AccessKey, settings.SecretKey, "")
	s3Client := s3.New(s3.Options{
		Region:      settings.Region,
		Credentials: creds,
	})

	uploader := manager.NewUploader(s3Client)
	key := objectKey(settings.Folder, name)

	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(settings.Bucket),
		Key:         aws.String(key),
		Body:        reader,
		ContentType: aws.String("text/plain; charset=utf-8"),
	})
	if err != nil {
		return fmt.Errorf("failed to upload object %s to bucket %s: %w", key, settings.Bucket, err)
	}

	logger.Infof("Uploaded transcript '%s' to bucket '%s'", key, settings.Bucket)
	return nil
}

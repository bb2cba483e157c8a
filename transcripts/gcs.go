package transcripts

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"

	"lichtfeld/config"
	"lichtfeld/logger"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// UploadToGCSWithJSON uploads the transcript to a Google Cloud Storage object using a
// service account key given either base64 encoded or as raw JSON.
func UploadToGCSWithJSON(ctx context.Context, settings config.TranscriptSettings, name string, reader io.Reader) error {
	if settings.Bucket == "" {
		return fmt.Errorf("gcs sink requires a bucket")
	}
	credentialsJSON, err := base64.StdEncoding.DecodeString(settings.CredentialsJSON)
	if err != nil {
		credentialsJSON = []byte(settings.CredentialsJSON)
	}

	var opts []option.ClientOption
	if len(credentialsJSON) > 0 {
		opts = append(opts, option.WithCredentialsJSON(credentialsJSON))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return fmt.Errorf("storage.NewClient: %w", err)
	}
	defer client.Close()

	objectName := objectKey(settings.Folder, name)
	wc := client.Bucket(settings.Bucket).Object(objectName).NewWriter(ctx)
	wc.ContentType = "text/plain; charset=utf-8"

	if _, err = io.Copy(wc, reader); err != nil {
		wc.Close()
		return fmt.Errorf("io.Copy: %w", err)
	}
	if err := wc.Close(); err != nil {
		return fmt.Errorf("Writer.Close: %w", err)
	}

	logger.Infof("Uploaded transcript '%s' to bucket '%s'", objectName, settings.Bucket)
	return nil
}

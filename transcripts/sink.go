package transcripts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"lichtfeld/config"
	"lichtfeld/models"
)

// Sink types
const (
	SinkNone        = ""
	SinkDirectServe = "directServe"
	SinkS3          = "s3"
	SinkGCS         = "gcs"
	SinkSFTP        = "sftp"
)

// Shipper writes pipeline transcripts to the configured sink
type Shipper struct {
	settings config.TranscriptSettings
}

// NewShipper validates the sink type. A Shipper with no sink is valid and ships nothing.
func NewShipper(settings config.TranscriptSettings) (*Shipper, error) {
	switch settings.Sink {
	case SinkNone, SinkDirectServe, SinkS3, SinkGCS, SinkSFTP:
	default:
		return nil, fmt.Errorf("unknown transcript sink: %s", settings.Sink)
	}
	return &Shipper{settings: settings}, nil
}

// Enabled reports whether a sink is configured
func (s *Shipper) Enabled() bool {
	return s != nil && s.settings.Sink != SinkNone
}

// Ship renders the invocation and writes it as <jobID>.log.
func (s *Shipper) Ship(ctx context.Context, jobID string, inv *models.PipelineInvocation) error {
	if !s.Enabled() || inv == nil {
		return nil
	}
	name := jobID + ".log"
	return s.write(ctx, name, bytes.NewReader(Render(jobID, inv)))
}

func (s *Shipper) write(ctx context.Context, name string, reader io.Reader) error {
	switch s.settings.Sink {
	case SinkDirectServe:
		if err := UploadToDirectServe(ctx, s.settings, name, reader); err != nil {
			return fmt.Errorf("failed to write transcript to direct serve: %w", err)
		}
	case SinkS3:
		if err := UploadToS3WithCreds(ctx, s.settings, name, reader); err != nil {
			return fmt.Errorf("failed to upload transcript to S3: %w", err)
		}
	case SinkGCS:
		if err := UploadToGCSWithJSON(ctx, s.settings, name, reader); err != nil {
			return fmt.Errorf("failed to upload transcript to GCS: %w", err)
		}
	case SinkSFTP:
		if err := UploadToSFTPWithCreds(ctx, s.settings, name, reader); err != nil {
			return fmt.Errorf("failed to upload transcript to SFTP: %w", err)
		}
	default:
		return fmt.Errorf("unknown transcript sink: %s", s.settings.Sink)
	}
	return nil
}

// Render formats an invocation as a plain-text transcript
func Render(jobID string, inv *models.PipelineInvocation) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "job:       %s\n", jobID)
	fmt.Fprintf(&b, "command:   %s %s\n", inv.Command, strings.Join(inv.Args, " "))
	fmt.Fprintf(&b, "cwd:       %s\n", inv.Dir)
	fmt.Fprintf(&b, "started:   %s\n", inv.Started.Format(time.RFC3339))
	fmt.Fprintf(&b, "finished:  %s\n", inv.Finished.Format(time.RFC3339))
	fmt.Fprintf(&b, "exit code: %d\n", inv.ExitCode)
	fmt.Fprintf(&b, "timed out: %t (limit %v)\n", inv.TimedOut, inv.Timeout)
	b.WriteString("\n--- stdout ---\n")
	b.WriteString(inv.Stdout)
	b.WriteString("\n--- stderr ---\n")
	b.WriteString(inv.Stderr)
	b.WriteString("\n")
	return []byte(b.String())
}

// objectKey joins the configured folder and a file name with forward slashes
func objectKey(folder, name string) string {
	folder = strings.Trim(folder, "/")
	if folder == "" {
		return name
	}
	return folder + "/" + name
}

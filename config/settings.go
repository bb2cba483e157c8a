package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every recognised environment variable.
const EnvPrefix = "LICHTFELD_"

// Admission policies for a request that arrives while a run is in flight.
const (
	BusyWait   = "wait"
	BusyReject = "reject"
)

// Settings holds the server configuration. It is loaded once at startup and passed by value
// afterwards, so no component can change it at runtime.
type Settings struct {
	// Directories
	DataDir      string `env:"DATA_DIR"      envDefault:"/data"`
	WorkspaceDir string `env:"WORKSPACE_DIR" envDefault:"/app/colmap_project"`
	ScriptsDir   string `env:"SCRIPTS_DIR"   envDefault:"/app/scripts"`
	ProjectRoot  string `env:"PROJECT_ROOT"  envDefault:"/app/LichtFeld-Studio"`
	TempDir      string `env:"TEMP_DIR"` // archives are written here; empty means os.TempDir()
	StaticDir    string `env:"STATIC_DIR"`

	// Video settings
	VideoFilename string `env:"VIDEO_FILENAME" envDefault:"output3.mp4"`
	MinFPS        int    `env:"MIN_FPS"        envDefault:"1"`
	MaxFPS        int    `env:"MAX_FPS"        envDefault:"120"`
	MaxUploadSize int64  `env:"MAX_UPLOAD_SIZE" envDefault:"5368709120"` // 5 GiB

	// Pipeline
	PipelineScript  string        `env:"PIPELINE_SCRIPT"  envDefault:"pipeline_colmap.sh"`
	WorkspaceName   string        `env:"WORKSPACE_NAME"   envDefault:"colmap_project"`
	PipelineTimeout time.Duration `env:"PIPELINE_TIMEOUT" envDefault:"1h"`
	StderrLimit     int           `env:"STDERR_LIMIT"     envDefault:"4096"`
	BusyPolicy      string        `env:"BUSY_POLICY"      envDefault:"wait"`

	// Server
	ListenAddr      string        `env:"LISTEN_ADDR"      envDefault:":8000"`
	LogLevel        string        `env:"LOG_LEVEL"        envDefault:"info"`
	LogFile         string        `env:"LOG_FILE"`
	RecordRetention time.Duration `env:"RECORD_RETENTION" envDefault:"720h"`
	OTLPEndpoint    string        `env:"OTLP_ENDPOINT"`

	// Transcript sink: "", "directServe", "s3", "gcs" or "sftp"
	Transcripts TranscriptSettings `envPrefix:"TRANSCRIPT_"`
}

// TranscriptSettings configures where pipeline stdout/stderr transcripts are shipped.
type TranscriptSettings struct {
	Sink   string `env:"SINK"`
	Folder string `env:"FOLDER" envDefault:"transcripts"`

	// directServe
	BaseDir string `env:"BASE_DIR" envDefault:"./serve"`

	// s3 / gcs
	Bucket          string `env:"BUCKET"`
	Region          string `env:"REGION"`
	AccessKey       string `env:"ACCESS_KEY"`
	SecretKey       string `env:"SECRET_KEY"`
	CredentialsJSON string `env:"CREDENTIALS_JSON"` // base64 service account key

	// sftp
	Host       string `env:"HOST"`
	Port       string `env:"PORT" envDefault:"22"`
	User       string `env:"USER"`
	Password   string `env:"PASSWORD"`
	PrivateKey string `env:"PRIVATE_KEY"`
}

// Load reads the settings from the environment and validates them.
func Load() (Settings, error) {
	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{Prefix: EnvPrefix}); err != nil {
		return Settings{}, fmt.Errorf("failed to parse environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the internal consistency of the settings.
func (s Settings) Validate() error {
	if s.MinFPS < 1 {
		return fmt.Errorf("min fps must be at least 1, got %d", s.MinFPS)
	}
	if s.MinFPS > s.MaxFPS {
		return fmt.Errorf("min fps %d exceeds max fps %d", s.MinFPS, s.MaxFPS)
	}
	if s.PipelineTimeout <= 0 {
		return fmt.Errorf("pipeline timeout must be positive, got %v", s.PipelineTimeout)
	}
	if s.MaxUploadSize <= 0 {
		return fmt.Errorf("max upload size must be positive, got %d", s.MaxUploadSize)
	}
	if s.DataDir == "" || s.WorkspaceDir == "" || s.VideoFilename == "" {
		return fmt.Errorf("data dir, workspace dir and video filename are required")
	}
	switch s.BusyPolicy {
	case BusyWait, BusyReject:
	default:
		return fmt.Errorf("unknown busy policy %q (want %q or %q)", s.BusyPolicy, BusyWait, BusyReject)
	}
	return nil
}

// VideoPath returns the fixed path the uploaded video is written to.
// Path: {DataDir}/{VideoFilename}
func (s Settings) VideoPath() string {
	return filepath.Join(s.DataDir, s.VideoFilename)
}

// ScriptPath returns the location of the external pipeline executable.
func (s Settings) ScriptPath() string {
	if filepath.IsAbs(s.PipelineScript) {
		return s.PipelineScript
	}
	return filepath.Join(s.ScriptsDir, s.PipelineScript)
}

// FailuresDBPath returns the full path to the failed-run database.
// Path: {DataDir}/failures.db
func (s Settings) FailuresDBPath() string {
	return filepath.Join(s.DataDir, "failures.db")
}

// SuccessDBPath returns the full path to the successful-run database.
// Path: {DataDir}/success.db
func (s Settings) SuccessDBPath() string {
	return filepath.Join(s.DataDir, "success.db")
}

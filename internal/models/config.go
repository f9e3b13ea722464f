package models

// ConfigError represents a configuration validation error
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

// CloudinaryConfig holds credentials for the object store that hosts
// inbound media and pairing QR images
type CloudinaryConfig struct {
	CloudName string `env:"CLOUDINARY_CLOUD_NAME"`
	APIKey    string `env:"CLOUDINARY_API_KEY"`
	APISecret string `env:"CLOUDINARY_API_SECRET"`
	Folder    string `env:"CLOUDINARY_FOLDER" envDefault:"whatshook"`
}

// ServiceAccountConfig identifies the Google service account used to mint
// bearer tokens for webhook calls
type ServiceAccountConfig struct {
	ProjectID    string `env:"FIREBASE_PROJECT_ID"`
	PrivateKeyID string `env:"FIREBASE_PRIVATE_KEY_ID"`
	PrivateKey   string `env:"FIREBASE_PRIVATE_KEY"`
	ClientEmail  string `env:"FIREBASE_CLIENT_EMAIL"`
	TokenURI     string `env:"TOKEN_URI" envDefault:"https://oauth2.googleapis.com/token"`
}

// SessionConfig names the chat session and the local path where the session
// provider persists its credentials between restarts
type SessionConfig struct {
	Name      string `env:"SESSION_NAME" envDefault:"default"`
	StorePath string `env:"SESSION_STORE_PATH" envDefault:"whatshook.db"`
}

// TracingConfig controls the OpenTelemetry exporter
type TracingConfig struct {
	Enabled      bool    `env:"TRACING_ENABLED" envDefault:"false"`
	OTLPEndpoint string  `env:"TRACING_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	UseStdout    bool    `env:"TRACING_USE_STDOUT" envDefault:"true"`
	SampleRate   float64 `env:"TRACING_SAMPLE_RATE" envDefault:"0.1"`
}

// Config is the full environment-driven configuration surface
type Config struct {
	Port       string `env:"PORT" envDefault:"8080"`
	WebhookURL string `env:"WEBHOOK_URL"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// Single-attempt timeouts for outbound calls; no retries anywhere
	TokenTimeoutSec   int `env:"TOKEN_TIMEOUT_SEC" envDefault:"30"`
	WebhookTimeoutSec int `env:"WEBHOOK_TIMEOUT_SEC" envDefault:"30"`
	MediaTimeoutSec   int `env:"MEDIA_TIMEOUT_SEC" envDefault:"30"`

	Cloudinary     CloudinaryConfig
	ServiceAccount ServiceAccountConfig
	Session        SessionConfig
	Tracing        TracingConfig
}

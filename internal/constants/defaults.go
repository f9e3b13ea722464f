package constants

// Default server configuration values
const (
	DefaultServerPort            = "8080"
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Token exchange constants
const (
	TokenGrantType      = "urn:ietf:params:oauth:grant-type:jwt-bearer"
	TokenScopeDatastore = "https://www.googleapis.com/auth/datastore"
	TokenValiditySec    = 3600
)

// Default session store retry values, used only when opening the local
// credential store at boot
const (
	DefaultStoreRetryAttempts = 3
	DefaultStoreBackoffMs     = 500
	DefaultStoreMaxBackoffMs  = 5000
	DefaultStoreBackoffFactor = 2.0
)

// Media defaults
const (
	DefaultQRCodeSizePx      = 512
	DefaultImageMimeType     = "image/jpeg"
	MaxConcurrentResolutions = 4
)

// Session event stream buffer; inbound events beyond this are handled by
// backpressure on the transport's event loop
const SessionEventBufferSize = 64

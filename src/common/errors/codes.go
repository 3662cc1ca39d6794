package errors

// Common error codes used across domains
const (
	CodeNotFound      Code = "not_found"
	CodeAlreadyExists Code = "already_exists"
	CodeInvalid       Code = "invalid"
	CodeFailed        Code = "failed"
	CodeMissing       Code = "missing"
	CodeUnavailable   Code = "unavailable"
	CodeInternal      Code = "internal_error"
)

// Exit statuses used by sentinels that do not mirror an external command
const (
	ExitNeutral = 0
	ExitFailure = 1
	ExitUsage   = 2
)

// ============================================================================
// Toolchain Errors
// ============================================================================

var (
	// ErrToolchainMissing is returned when the compiler is not on the search path.
	// It is a startup precondition, so it exits with a neutral status.
	ErrToolchainMissing = New(DomainToolchain, CodeMissing, ExitNeutral,
		"Toolchain binary not found on PATH")

	// ErrToolchainSetup is returned when the toolchain workspace cannot be scaffolded
	ErrToolchainSetup = New(DomainToolchain, "setup_failed", ExitFailure,
		"Failed to set up toolchain environment")
)

// ============================================================================
// Filesystem Errors
// ============================================================================

var (
	// ErrDirectoryCreation is returned when a directory cannot be created for a
	// reason other than it already existing
	ErrDirectoryCreation = New(DomainFilesystem, "mkdir_failed", ExitFailure,
		"Failed to create directory")

	// ErrFileRewrite is returned when a text mutator cannot rewrite its file
	ErrFileRewrite = New(DomainFilesystem, "rewrite_failed", ExitFailure,
		"Failed to rewrite file")

	// ErrLogFile is returned when the per-build log file cannot be opened
	ErrLogFile = New(DomainFilesystem, "log_file", ExitFailure,
		"Failed to open build log file")
)

// ============================================================================
// Command Errors
// ============================================================================

var (
	// ErrCommandFailed is returned when an external command exits non-zero.
	// Callers replace the exit code with the command's own status.
	ErrCommandFailed = New(DomainCommand, CodeFailed, ExitFailure,
		"Command failed")
)

// ============================================================================
// Manifest Errors
// ============================================================================

var (
	// ErrManifestFormat is returned for a missing version file or malformed JSON descriptor
	ErrManifestFormat = New(DomainManifest, CodeInvalid, ExitFailure,
		"Malformed or missing manifest")
)

// ============================================================================
// Pipeline Errors
// ============================================================================

var (
	// ErrInvalidTransition is returned when a stage is run out of order
	ErrInvalidTransition = New(DomainPipeline, "invalid_transition", ExitFailure,
		"Stage cannot run from the current state")

	// ErrArchive is returned when the staged tree cannot be archived
	ErrArchive = New(DomainPipeline, "archive_failed", ExitFailure,
		"Failed to create image archive")
)

// ============================================================================
// Validation Errors
// ============================================================================

var (
	// ErrInvalidTarget is returned for an unknown board, platform, device or profile
	ErrInvalidTarget = New(DomainValidation, "invalid_target", ExitUsage,
		"Invalid build target")

	// ErrInvalidConfig is returned when configuration values are unusable
	ErrInvalidConfig = New(DomainValidation, "invalid_config", ExitUsage,
		"Invalid configuration")
)

// ============================================================================
// Storage Errors
// ============================================================================

var (
	// ErrStoragePublish is returned when an artifact upload fails
	ErrStoragePublish = New(DomainStorage, "publish_failed", ExitFailure,
		"Failed to publish artifact")

	// ErrStorageUnavailable is returned when the storage backend is unavailable
	ErrStorageUnavailable = New(DomainStorage, CodeUnavailable, ExitFailure,
		"Storage backend unavailable")
)

// ============================================================================
// Database Errors
// ============================================================================

var (
	// ErrDatabaseConnection is returned when the history database cannot be opened
	ErrDatabaseConnection = New(DomainDatabase, "connection_failed", ExitFailure,
		"History database connection failed")

	// ErrDatabaseQuery is returned when a history query fails
	ErrDatabaseQuery = New(DomainDatabase, "query_failed", ExitFailure,
		"History database query failed")
)

// ============================================================================
// Internal Errors
// ============================================================================

var (
	// ErrInternal is a generic internal error
	ErrInternal = New(DomainInternal, CodeInternal, ExitFailure,
		"Internal error")
)

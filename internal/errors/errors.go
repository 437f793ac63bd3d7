package errors

import "errors"

// Codec errors are raised by the embedding and extraction pipeline.
var (
	// ErrCapacityExceeded indicates the bit-stream does not fit in the raster.
	ErrCapacityExceeded = errors.New("message is too large for this image")

	// ErrIncompleteStream indicates the raster ran out of eligible bytes before
	// the declared header or payload was fully read.
	ErrIncompleteStream = errors.New("incomplete bit-stream")

	// ErrPayloadTooLarge indicates the payload length does not fit in the 32-bit header.
	ErrPayloadTooLarge = errors.New("payload length exceeds 32-bit header")

	// ErrAuthFailed indicates a sealed payload could not be authenticated.
	ErrAuthFailed = errors.New("authentication failed: wrong password or corrupted data")

	// ErrUnknownCipher indicates a cipher name other than "xor" or "sealed".
	ErrUnknownCipher = errors.New("unknown cipher")

	// ErrNoPasswordMatch indicates none of the candidate passwords produced a
	// readable message.
	ErrNoPasswordMatch = errors.New("no candidate password produced a readable message")
)

// Image errors are raised while loading or saving rasters.
var (
	// ErrImageLoad indicates the source image could not be decoded.
	ErrImageLoad = errors.New("failed to load the image")

	// ErrImageTooLarge indicates the source file exceeds the configured size limit.
	ErrImageTooLarge = errors.New("image file is too large")

	// ErrLossyFormat indicates an output format that would destroy hidden bits.
	ErrLossyFormat = errors.New("output format is lossy")

	// ErrUnsupportedFormat indicates a file extension with no known image format.
	ErrUnsupportedFormat = errors.New("unsupported image format")

	// ErrInvalidRaster indicates a pixel buffer that does not match its dimensions.
	ErrInvalidRaster = errors.New("invalid raster")
)

// User errors are raised by the user and session stores.
var (
	// ErrUserExists indicates the email is already registered.
	ErrUserExists = errors.New("user already exists")

	// ErrUserNotFound indicates no user is registered under the email.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidCredentials indicates a failed login.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrInvalidEmail indicates the email format is invalid.
	ErrInvalidEmail = errors.New("invalid email format")

	// ErrWeakPassword indicates the password is shorter than the minimum.
	ErrWeakPassword = errors.New("password is too short")

	// ErrNotLoggedIn indicates no session is active.
	ErrNotLoggedIn = errors.New("not logged in")
)

// History errors.
var (
	// ErrEntryNotFound indicates the history entry does not exist.
	ErrEntryNotFound = errors.New("history entry not found")
)

// Relay errors are raised by the DNS relay storage, server and client.
var (
	ErrMessageExists     = errors.New("message already exists")
	ErrMessageNotFound   = errors.New("message not found")
	ErrChunkNotFound     = errors.New("chunk not found")
	ErrIncompleteMessage = errors.New("incomplete message")
	ErrChecksumMismatch  = errors.New("checksum mismatch")
	ErrInvalidChunk      = errors.New("invalid chunk")
)

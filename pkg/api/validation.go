package api

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ValidationConfig holds configurable limits for request validation.
type ValidationConfig struct {
	MaxMessageSize int // bytes of message text
	MaxImageSize   int // decoded bytes
}

// DefaultValidationConfig returns the default limits.
func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		MaxMessageSize: 64 * 1024,
		MaxImageSize:   20 << 20,
	}
}

// allowedImageTypes are the image formats the vision backend accepts.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
}

// ValidateChatRequest checks a ChatRequest with defaults applied. It returns
// the first problem found, or nil.
func ValidateChatRequest(req *ChatRequest, cfg ValidationConfig) *APIError {
	if strings.TrimSpace(req.Message) == "" && req.Image == "" {
		return NewInvalidRequestError("message", "No message or image provided")
	}
	if cfg.MaxMessageSize > 0 && len(req.Message) > cfg.MaxMessageSize {
		return NewInvalidRequestError("message",
			fmt.Sprintf("message exceeds maximum of %d bytes", cfg.MaxMessageSize))
	}

	switch req.Mode {
	case ModeSolve, ModeExplain, ModeQuiz, ModeExam:
	default:
		return NewInvalidRequestError("mode", fmt.Sprintf("unknown mode %q", req.Mode))
	}

	switch req.PlotMode {
	case PlotAuto, PlotOnDemand:
	default:
		return NewInvalidRequestError("plot_mode", fmt.Sprintf("unknown plot_mode %q", req.PlotMode))
	}

	switch req.ExplainStyle {
	case StyleIntuition, StyleEquation:
	default:
		return NewInvalidRequestError("explain_style", fmt.Sprintf("unknown explain_style %q", req.ExplainStyle))
	}

	switch req.ExplainAction {
	case "", ExplainDeeper, ExplainDifferently, ExplainVerify, ExplainReview:
	default:
		return NewInvalidRequestError("explain_action", fmt.Sprintf("unknown explain_action %q", req.ExplainAction))
	}

	if req.SessionID != "" && !ValidateSessionID(req.SessionID) {
		return NewInvalidRequestError("session_id", "malformed session ID")
	}

	if req.Image != "" {
		if err := validateImage(req, cfg); err != nil {
			return err
		}
	}

	return nil
}

// validateImage decodes the upload, checks its size, and sniffs its format.
// A declared image_type that disagrees with the content is rejected; an
// undeclared one is taken from the content.
func validateImage(req *ChatRequest, cfg ValidationConfig) *APIError {
	data, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		return NewInvalidRequestError("image", "image must be base64-encoded")
	}
	if cfg.MaxImageSize > 0 && len(data) > cfg.MaxImageSize {
		return NewInvalidRequestError("image",
			fmt.Sprintf("image exceeds maximum of %d bytes", cfg.MaxImageSize))
	}

	detected := mimetype.Detect(data).String()
	if !allowedImageTypes[detected] {
		return NewInvalidRequestError("image", fmt.Sprintf("unsupported image format %q", detected))
	}

	declared := strings.ToLower(strings.TrimSpace(req.ImageType))
	if declared == "image/jpg" {
		declared = "image/jpeg"
	}
	if declared != "" && declared != detected {
		return NewInvalidRequestError("image_type",
			fmt.Sprintf("image_type %q does not match image content %q", req.ImageType, detected))
	}
	req.ImageType = detected
	return nil
}

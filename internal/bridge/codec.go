package bridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"imagebatch/internal/domain"
	"imagebatch/internal/orchestrator"
)

// EncodeImages serializes images to JSON, with image bytes as base64 strings,
// then base64-encodes the JSON so it fits a single XML text node.
func EncodeImages(images []orchestrator.SubmitImage) (string, error) {
	raw, err := json.Marshal(images)
	if err != nil {
		return "", fmt.Errorf("encode images: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// DecodeImages reverses EncodeImages.
func DecodeImages(encoded string) ([]orchestrator.SubmitImage, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("images_json is not base64: %w", domain.ErrInvalidField)
	}
	var images []orchestrator.SubmitImage
	if err := json.Unmarshal(raw, &images); err != nil {
		return nil, fmt.Errorf("images_json: %v: %w", err, domain.ErrInvalidField)
	}
	return images, nil
}

package storage

import (
	"fmt"
	"path"
	"strings"
)

// PathParams provide required identifiers to compose storage object keys.
type PathParams struct {
	ProductID string
	ObjectID  string
	FileName  string
}

// ProductImagePath resolves the object key for a product image. The original file name only
// contributes its extension.
func ProductImagePath(params PathParams) (string, error) {
	productID, err := validateSegment("productID", params.ProductID)
	if err != nil {
		return "", err
	}
	objectID, err := validateSegment("objectID", params.ObjectID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("products/%s/%s%s", productID, strings.ToLower(objectID), imageExtension(params.FileName)), nil
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}

func imageExtension(fileName string) string {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(strings.TrimSpace(fileName), "\\", "/")))
	switch ext {
	case ".jpg", ".jpeg", ".png", ".webp", ".gif", ".avif":
		return ext
	default:
		return ""
	}
}

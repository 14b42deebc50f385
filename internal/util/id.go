package util

import (
	"strings"

	"github.com/google/uuid"
)

const tempPrefix = "tmp_"

func NewID(prefix string) string {
	id := uuid.NewString()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// NewTempID returns an id for rows that exist only locally until the backend confirms them.
func NewTempID() string {
	return tempPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func IsTempID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}

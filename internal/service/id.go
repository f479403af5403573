package service

import (
	"encoding/hex"

	"github.com/google/uuid"
)

// newID 生成带前缀的短唯一ID，如 key_3f2a9c1b8d4e、v_0a1b2c3d4e5f
func newID(prefix string) string {
	u := uuid.New()
	return prefix + "_" + hex.EncodeToString(u[:])[:12]
}

package model

import "bytes"

// ContentFingerprint 媒体内容指纹，计算后不可变
type ContentFingerprint struct {
	Hash            []byte   `json:"hash"`
	SizeBytes       int64    `json:"size_bytes"`
	DurationSeconds *float64 `json:"duration_seconds,omitempty"`
}

// SameHash 哈希逐位相等即视为完全一致
func (f ContentFingerprint) SameHash(other ContentFingerprint) bool {
	return len(f.Hash) > 0 && bytes.Equal(f.Hash, other.Hash)
}

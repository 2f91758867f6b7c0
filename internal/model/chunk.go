// Package model defines the core chunk data types.
package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Chunk is the atomic retrievable text unit with its structural metadata.
type Chunk struct {
	ChunkID       string            `json:"chunk_id"`
	FilePath      string            `json:"file_path"`
	PageStart     int               `json:"page_start"`
	PageEnd       int               `json:"page_end"`
	Element       string            `json:"element"`
	Name          string            `json:"name"`
	Content       string            `json:"content"`
	ParentChunkID string            `json:"parent_chunk_id,omitempty"`
	SectionPath   []string          `json:"section_path,omitempty"`
	SectionLevel  int               `json:"section_level"`
	Type          string            `json:"type"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Role          string            `json:"role"`
	Activation    float64           `json:"activation"`
	AccessCount   int               `json:"access_count"`
	LastAccessed  *time.Time        `json:"last_accessed,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// AccessEvent records one search-triggered retrieval of a chunk.
type AccessEvent struct {
	ID         string    `json:"id"`
	ChunkID    string    `json:"chunk_id"`
	AccessedAt time.Time `json:"accessed_at"`
	Query      string    `json:"query"`
}

// SearchResult is a chunk with its ranking breakdown. Activation is carried
// on the embedded chunk; Rank is bm25 plus the weighted activation.
type SearchResult struct {
	Chunk
	BM25 float64 `json:"bm25"`
	Rank float64 `json:"rank"`
}

// Coarse chunk categories.
const (
	TypeKB   = "kb"
	TypeConv = "conv"
)

// Visibility labels. User roles are scoped to a single chat via UserRole.
const (
	RolePublic = "public"
	RoleAdmin  = "admin"
)

// UserRole returns the visibility label for a single chat's user.
func UserRole(chatID string) string {
	return "user:" + chatID
}

// idPrefixLen is how much of the content feeds the id hash. Enough to catch
// content drift without hashing multi-megabyte bodies.
const idPrefixLen = 200

// DeriveChunkID computes the stable chunk identifier from the chunk's path,
// name, and content prefix. Identical inputs always produce the same id, so
// re-parsing unchanged content is idempotent.
func DeriveChunkID(typeTag, filePath, name, content string) string {
	prefix := content
	if len(prefix) > idPrefixLen {
		prefix = prefix[:idPrefixLen]
	}
	h := sha256.Sum256([]byte(filePath + "\x00" + name + "\x00" + prefix))
	return typeTag + "-" + hex.EncodeToString(h[:6])
}

// SubChunkID returns the id for the n-th split part of a parent chunk.
func SubChunkID(parentID string, n int) string {
	return fmt.Sprintf("%s-p%d", parentID, n)
}

// Package models defines core data structures for documents, chunks, and questions.
package models

import "time"

// Document represents an ingested document. Source is the origin identifier
// (URL, file path, or caller-supplied label). Documents are immutable once stored.
type Document struct {
	ID        string    `json:"id" db:"id"`
	Source    string    `json:"source" db:"source"`
	Title     string    `json:"title" db:"title"`
	Content   string    `json:"content" db:"content"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// DocumentChunk is a sentence-aligned passage of a document, the unit stored
// and retrieved. Embedding is held in the vector index, not the database.
type DocumentChunk struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"document_id" db:"document_id"`
	Content    string    `json:"content" db:"content"`
	ChunkIndex int       `json:"chunk_index" db:"chunk_index"`
	Embedding  []float32 `json:"-" db:"-"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// IngestInput is the input for ingesting a document. ID is optional; when
// empty, an ID is derived deterministically from Source.
type IngestInput struct {
	ID     string `json:"id,omitempty"`
	Source string `json:"source"`
	Title  string `json:"title,omitempty"`
	Text   string `json:"text"`
}

// IngestReceipt reports the outcome of an ingestion.
type IngestReceipt struct {
	DocumentID    string   `json:"document_id"`
	ChunkIDs      []string `json:"chunk_ids"`
	ChunksCreated int      `json:"chunks_created"`
	Degraded      bool     `json:"degraded,omitempty"`
}

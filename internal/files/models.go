package files

import "time"

// Record is the metadata row kept for each uploaded file. The bytes
// themselves live in a BlobStore under StorageKey.
type Record struct {
	ID           string    `json:"id" bson:"id"`
	OriginalName string    `json:"original_name" bson:"originalName"`
	MimeType     string    `json:"mime_type" bson:"mimeType"`
	Size         int64     `json:"size" bson:"size"`
	StorageKey   string    `json:"-" bson:"storageKey"`
	Uploader     string    `json:"uploader" bson:"uploader"`
	CreatedAt    time.Time `json:"created_at" bson:"createdAt"`
}

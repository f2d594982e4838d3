package domain

import (
	"fmt"
	"time"
)

type Modality string

const (
	ModalityPDF   Modality = "pdf"
	ModalityAudio Modality = "audio"
	ModalityVideo Modality = "video"
)

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusProcessed  DocumentStatus = "processed"
	StatusFailed     DocumentStatus = "failed"
)

type Document struct {
	ID           string         `json:"id"`
	Filename     string         `json:"filename"`
	MimeType     string         `json:"mime_type"`
	Modality     Modality       `json:"modality"`
	StoragePath  string         `json:"storage_path"`
	Status       DocumentStatus `json:"status"`
	Error        string         `json:"error,omitempty"`
	SegmentCount int            `json:"segment_count,omitempty"`
	ChunkCount   int            `json:"chunk_count,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

// Locator points a derived unit back at its exact source location:
// a page for PDF documents, a time range for audio and video.
type Locator struct {
	Page     int     `json:"page,omitempty"`
	StartSec float64 `json:"start_sec,omitempty"`
	EndSec   float64 `json:"end_sec,omitempty"`
}

func PageLocator(page int) Locator {
	return Locator{Page: page}
}

func TimeLocator(startSec, endSec float64) Locator {
	return Locator{StartSec: startSec, EndSec: endSec}
}

func (l Locator) String() string {
	if l.Page > 0 {
		return fmt.Sprintf("page %d", l.Page)
	}
	return fmt.Sprintf("%s-%s", formatTimestamp(l.StartSec), formatTimestamp(l.EndSec))
}

func formatTimestamp(sec float64) string {
	total := int(sec)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}

// Segment is one provenance-tagged unit of extracted text. Segments are
// ordered within a document; Index is the position in that order.
type Segment struct {
	Index      int     `json:"index"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Locator    Locator `json:"locator"`
}

// Transcript is the result of one speech-to-text call.
type Transcript struct {
	Language string
	Segments []TranscriptSegment
}

type TranscriptSegment struct {
	StartSec   float64
	EndSec     float64
	Text       string
	Confidence float64
}

// FrameTag is a sparse visual annotation attached by an optional
// frame tagger during video processing.
type FrameTag struct {
	TimestampSec float64
	Label        string
	Confidence   float64
}

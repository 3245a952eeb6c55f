package media

import (
	"errors"
	"fmt"
)

// Kind tags a LibraryItem. The compositor switches on it exhaustively.
type Kind int

const (
	KindImage Kind = iota
	KindVideo
)

func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindVideo:
		return "video"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "image":
		*k = KindImage
	case "video":
		*k = KindVideo
	default:
		return fmt.Errorf("unknown media kind %q", b)
	}
	return nil
}

// LibraryItem is one ingested source.
type LibraryItem struct {
	ID     string `json:"id"`
	Kind   Kind   `json:"kind"`
	Ref    string `json:"ref"`
	Name   string `json:"name"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	// Video only; probed once at ingestion.
	Duration  float64 `json:"duration,omitempty"`
	FrameRate float64 `json:"frameRate,omitempty"`
}

var (
	ErrUnsupported = errors.New("unsupported source")
	ErrNotFound    = errors.New("library item not found")
)

// IngestionError drops one source from an ingestion batch.
type IngestionError struct {
	Path string
	Err  error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Path, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// DecodeError means a bitmap could not be produced for a source reference.
type DecodeError struct {
	Ref string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Ref, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// ProbeError means video metadata could not be extracted.
type ProbeError struct {
	Ref string
	Err error
}

func (e *ProbeError) Error() string {
	return fmt.Sprintf("probe %s: %v", e.Ref, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

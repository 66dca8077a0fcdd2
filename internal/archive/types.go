package archive

import (
	"time"

	"github.com/dustin/go-humanize"
)

// Entry is one archived status.
type Entry struct {
	ID           string    `json:"id"`
	Type         string    `json:"type"`
	FileName     string    `json:"filename,omitempty"`
	Folder       string    `json:"folder,omitempty"`
	Path         string    `json:"path,omitempty"` // URL path under /downloads/
	Size         string    `json:"size,omitempty"`
	SizeBytes    int64     `json:"sizeBytes"`
	Caption      string    `json:"caption,omitempty"`
	Content      string    `json:"content,omitempty"` // text statuses only
	Sender       string    `json:"sender"`
	SenderNumber string    `json:"senderNumber"`
	Timestamp    time.Time `json:"timestamp"`
}

func (e *Entry) fill() {
	if e.FileName != "" {
		e.Path = "/downloads/" + e.Folder + "/" + e.FileName
		e.Size = humanize.IBytes(uint64(e.SizeBytes))
	}
}

// Filter selects entries for List.
type Filter struct {
	Type   string // "" or "all" for every type
	Sender string // substring of the sender name or number
	Search string // substring of caption, text content or sender name
	Date   time.Time
	Page   int
	Limit  int
}

// Page is one page of List results.
type Page struct {
	Data       []Entry `json:"data"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	Limit      int     `json:"limit"`
	TotalPages int     `json:"totalPages"`
	HasMore    bool    `json:"hasMore"`
}

// Stats summarises the archive.
type Stats struct {
	Total          int    `json:"total"`
	Images         int    `json:"images"`
	Videos         int    `json:"videos"`
	Audio          int    `json:"audio"`
	Text           int    `json:"text"`
	Stickers       int    `json:"stickers"`
	Documents      int    `json:"documents"`
	TotalSizeBytes int64  `json:"totalSizeBytes"`
	TotalSize      string `json:"totalSize"`
}

package web

// DiskSnapshot reports space on the filesystem holding the output file.
type DiskSnapshot struct {
	Path       string `json:"path"`
	TotalBytes uint64 `json:"total_bytes,omitempty"`
	FreeBytes  uint64 `json:"free_bytes,omitempty"`
	AvailBytes uint64 `json:"avail_bytes,omitempty"`
	LastError  string `json:"last_error,omitempty"`
}

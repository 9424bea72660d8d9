package firefox

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pierrec/lz4/v4"
)

// mozlz4 header: 8-byte magic "mozLz40\x00"
var mozLz4Magic = []byte("mozLz40\x00")

// DecompressMozLz4 decompresses data in Mozilla's mozlz4 format.
// The format is: 8-byte magic "mozLz40\x00" + 4-byte LE uint32 uncompressed size + lz4 block data.
func DecompressMozLz4(data []byte) ([]byte, error) {
	const headerSize = 12

	if len(data) < headerSize {
		return nil, fmt.Errorf("mozlz4: data too short (%d bytes)", len(data))
	}
	if string(data[:len(mozLz4Magic)]) != string(mozLz4Magic) {
		return nil, fmt.Errorf("mozlz4: invalid header magic")
	}

	size := binary.LittleEndian.Uint32(data[8:12])
	dst := make([]byte, size)
	n, err := lz4.UncompressBlock(data[headerSize:], dst)
	if err != nil {
		return nil, fmt.Errorf("mozlz4: decompress failed: %w", err)
	}
	return dst[:n], nil
}

// Page is one open tab as recorded in the session file.
type Page struct {
	ID           int // synthetic: window*1000 + position, 1-based
	URL          string
	Title        string
	Favicon      string
	ScrollY      int
	LastAccessed time.Time
	Selected     bool // the selected tab of the selected window
}

type rawEntry struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type rawScroll struct {
	Scroll string `json:"scroll"` // "x,y"
}

type rawTab struct {
	Entries      []rawEntry `json:"entries"`
	Index        int        `json:"index"`
	LastAccessed int64      `json:"lastAccessed"`
	Image        string     `json:"image"`
	Scroll       *rawScroll `json:"scroll"`
}

type rawWindow struct {
	Tabs     []rawTab `json:"tabs"`
	Selected int      `json:"selected"` // 1-based
}

type rawSession struct {
	Windows        []rawWindow `json:"windows"`
	SelectedWindow int         `json:"selectedWindow"` // 1-based
}

// ParseSession extracts the open pages from session JSON.
func ParseSession(data []byte) ([]Page, error) {
	var raw rawSession
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse session JSON: %w", err)
	}

	selectedWin := raw.SelectedWindow
	if selectedWin == 0 {
		selectedWin = 1
	}

	var pages []Page
	for winIdx, window := range raw.Windows {
		for tabIdx, rt := range window.Tabs {
			if len(rt.Entries) == 0 {
				continue
			}

			// index is 1-based; current page is entries[index-1].
			entryIdx := rt.Index - 1
			if entryIdx < 0 || entryIdx >= len(rt.Entries) {
				entryIdx = len(rt.Entries) - 1
			}
			entry := rt.Entries[entryIdx]

			pages = append(pages, Page{
				ID:           (winIdx+1)*1000 + tabIdx + 1,
				URL:          entry.URL,
				Title:        entry.Title,
				Favicon:      rt.Image,
				ScrollY:      parseScrollY(rt.Scroll),
				LastAccessed: time.UnixMilli(rt.LastAccessed),
				Selected:     winIdx+1 == selectedWin && tabIdx+1 == window.Selected,
			})
		}
	}
	return pages, nil
}

// parseScrollY reads the vertical offset from "x,y". Missing or malformed
// values mean the page is at the top.
func parseScrollY(s *rawScroll) int {
	if s == nil || s.Scroll == "" {
		return 0
	}
	_, y, ok := strings.Cut(s.Scroll, ",")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(y))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// ReadSessionFile reads and parses a Firefox session recovery file from the given profile directory.
// It tries recovery.jsonlz4 first (active session), then previous.jsonlz4 (last closed session).
func ReadSessionFile(profileDir string) ([]Page, error) {
	backupDir := filepath.Join(profileDir, "sessionstore-backups")
	var data []byte
	var err error
	for _, name := range sessionFiles {
		data, err = os.ReadFile(filepath.Join(backupDir, name))
		if err == nil {
			break
		}
	}
	if err != nil {
		return nil, fmt.Errorf("no session file found in %s", backupDir)
	}

	decompressed, err := DecompressMozLz4(data)
	if err != nil {
		return nil, fmt.Errorf("decompress session file: %w", err)
	}
	return ParseSession(decompressed)
}

var sessionFiles = []string{"recovery.jsonlz4", "previous.jsonlz4"}

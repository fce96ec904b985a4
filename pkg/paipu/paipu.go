// Package paipu recognises Mahjong Soul game-log links and maps them to the
// files they are saved under.
package paipu

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rizkirmdhn/paipu/pkg/models"
)

// Extension of saved logs
const Extension = ".json"

// Pattern matches a game-log viewer link.
var Pattern = regexp.MustCompile(`https://mahjongsoul\.game\.yo-star\.com/\?paipu=[\w-]+`)

// Extract returns every log link in text, in order, duplicates included.
func Extract(text string) []string {
	return Pattern.FindAllString(text, -1)
}

// ID returns the part of url after the last '='. A url without '=' is its
// own id.
func ID(url string) string {
	return url[strings.LastIndex(url, "=")+1:]
}

// NewTask derives the download task for url under saveDir.
func NewTask(url, saveDir string) models.DownloadTask {
	id := ID(url)
	return models.DownloadTask{
		URL:  url,
		ID:   id,
		Path: filepath.Join(saveDir, id+Extension),
	}
}

package attachment

import (
	"strings"

	"github.com/lu4p/cat/docxtxt"
)

// docxText returns the plain text of a Word document
func docxText(path string) (string, error) {
	text, err := docxtxt.ToStr(path)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(text, "\n"), nil
}

package domain

import (
	"strings"
	"unicode"
)

const downloadSuffix = "-blockchain-week.png"

// ShareFilename is the name of the file handed to native share targets.
const ShareFilename = "blockchain-week.png"

// DownloadFilename derives the saved file name from the person's name: every
// run of whitespace becomes a single hyphen.
func DownloadFilename(fullName string) string {
	var b strings.Builder
	inSpace := false
	for _, r := range fullName {
		if unicode.IsSpace(r) {
			if !inSpace {
				b.WriteByte('-')
				inSpace = true
			}
			continue
		}
		inSpace = false
		b.WriteRune(r)
	}
	return b.String() + downloadSuffix
}

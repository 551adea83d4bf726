package file

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// CleanName normalizes a bare file name to NFC and rejects anything that
// could escape its directory.
func CleanName(name string) (string, error) {
	name = norm.NFC.String(strings.TrimSpace(name))
	switch {
	case name == "":
		return "", fmt.Errorf("file name is empty")
	case name == "." || name == "..":
		return "", fmt.Errorf("invalid file name %q", name)
	case strings.ContainsAny(name, `/\`):
		return "", fmt.Errorf("file name %q contains a path separator", name)
	case strings.ContainsRune(name, 0):
		return "", fmt.Errorf("file name contains NUL")
	}
	return name, nil
}

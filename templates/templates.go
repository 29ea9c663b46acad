// Package templates resolves the user configurable snapshot directory,
// file name and camera request templates.
package templates

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultDirectory = "{DATADIRECTORY}/snapshots/{FILENAME}/{PRINTSTARTTIME}/"
	DefaultFilename  = "{FILENAME}_{SNAPSHOTNUMBER}.{OUTPUTFILEEXTENSION}"
	DefaultRequest   = "{camera_address}?action=snapshot"

	PrintStartTimeLayout = "20060102150405"
)

var (
	ErrEmptyTemplate = errors.New("template is empty")

	unresolvedToken = regexp.MustCompile(`\{[A-Za-z_]+\}`)
	unsafeChars     = regexp.MustCompile(`[^A-Za-z0-9._-]+`)
)

// Directory resolves a directory template. The result always ends with a
// path separator so a file name can be appended directly.
func Directory(tmpl, dataDir, printerFileName string, printStart time.Time, ext string) (string, error) {
	if tmpl == "" {
		return "", ErrEmptyTemplate
	}

	r := strings.NewReplacer(
		"{DATADIRECTORY}", dataDir,
		"{FILENAME}", FileBase(printerFileName),
		"{PRINTSTARTTIME}", printStart.Format(PrintStartTimeLayout),
		"{OUTPUTFILEEXTENSION}", ext,
	)
	dir := r.Replace(tmpl)
	if err := checkResolved(dir); err != nil {
		return "", fmt.Errorf("directory template %q: %w", tmpl, err)
	}

	dir = filepath.Clean(dir)
	if !strings.HasSuffix(dir, string(os.PathSeparator)) {
		dir += string(os.PathSeparator)
	}
	return dir, nil
}

// Filename resolves a snapshot file name template for the given sequence number.
func Filename(tmpl, printerFileName string, printStart time.Time, ext string, number int) (string, error) {
	if tmpl == "" {
		return "", ErrEmptyTemplate
	}

	r := strings.NewReplacer(
		"{FILENAME}", FileBase(printerFileName),
		"{PRINTSTARTTIME}", printStart.Format(PrintStartTimeLayout),
		"{OUTPUTFILEEXTENSION}", ext,
		"{SNAPSHOTNUMBER}", fmt.Sprintf("%06d", number),
	)
	name := r.Replace(tmpl)
	if err := checkResolved(name); err != nil {
		return "", fmt.Errorf("filename template %q: %w", tmpl, err)
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		return "", fmt.Errorf("filename template %q: result %q contains a path separator", tmpl, name)
	}
	return name, nil
}

// RequestURL builds the camera request from its template.
func RequestURL(address, tmpl, value string) string {
	if tmpl == "" {
		tmpl = DefaultRequest
	}
	return strings.NewReplacer(
		"{camera_address}", address,
		"{value}", value,
	).Replace(tmpl)
}

// FileBase turns a printer file name ("/usb/My Part.bgcode") into something
// usable inside a path ("My_Part").
func FileBase(printerFileName string) string {
	base := filepath.Base(printerFileName)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.Trim(unsafeChars.ReplaceAllString(base, "_"), "_")
	if base == "" || base == "." {
		return "unknown"
	}
	return base
}

func checkResolved(s string) error {
	if tok := unresolvedToken.FindString(s); tok != "" {
		return fmt.Errorf("unknown token %s", tok)
	}
	return nil
}

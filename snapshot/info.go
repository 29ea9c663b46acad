package snapshot

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/tuzkov/prusaLapse/templates"
)

// Info describes where a single capture is written. Every Info gets a fresh
// unique file name, so two captures never share a path.
type Info struct {
	id string

	outputFilenameTemplate string
	printerFileName        string
	printStartTime         time.Time
	outputExtension        string

	fileName      string
	directoryName string
}

func NewInfo(outputFilenameTemplate, printerFileName string, printStartTime time.Time, outputExtension, directoryName string) *Info {
	id := uuid.NewString()
	return &Info{
		id:                     id,
		outputFilenameTemplate: outputFilenameTemplate,
		printerFileName:        printerFileName,
		printStartTime:         printStartTime,
		outputExtension:        outputExtension,
		fileName:               fmt.Sprintf("%s.%s", id, outputExtension),
		directoryName:          directoryName,
	}
}

func (i *Info) ID() string { return i.id }
func (i *Info) FileName() string { return i.fileName }
func (i *Info) DirectoryName() string { return i.directoryName }
func (i *Info) PrinterFileName() string { return i.printerFileName }
func (i *Info) PrintStartTime() time.Time { return i.printStartTime }
func (i *Info) OutputExtension() string { return i.outputExtension }

// FullPath is where the download is written.
func (i *Info) FullPath() string {
	return filepath.Join(i.directoryName, i.fileName)
}

// SequencePath is the path of frame number n according to the output file name template.
func (i *Info) SequencePath(n int) (string, error) {
	name, err := templates.Filename(i.outputFilenameTemplate, i.printerFileName, i.printStartTime, i.outputExtension, n)
	if err != nil {
		return "", err
	}
	return filepath.Join(i.directoryName, name), nil
}

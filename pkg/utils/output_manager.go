package utils

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ErrInvalidName rejects ids and file names that would escape the output dir
var ErrInvalidName = errors.New("invalid output name")

// OutputManager lays out export files as <base>/<exportID>/<file>.
type OutputManager struct {
	BaseOutputDir string
}

// NewOutputManager creates a new output manager
func NewOutputManager(baseOutputDir string) *OutputManager {
	return &OutputManager{
		BaseOutputDir: baseOutputDir,
	}
}

func cleanName(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return name, nil
}

// CreateExportDir creates the directory of one export
func (om *OutputManager) CreateExportDir(exportID string) (string, error) {
	id, err := cleanName(exportID)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(om.BaseOutputDir, id)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create export directory: %w", err)
	}
	return dir, nil
}

// GetOutputFilePath creates the export directory and returns the path of
// fileName inside it. Path separators in fileName are dropped.
func (om *OutputManager) GetOutputFilePath(exportID, fileName string) (string, error) {
	dir, err := om.CreateExportDir(exportID)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filepath.Base(fileName)), nil
}

// ResolveFile returns the path of an existing export file.
func (om *OutputManager) ResolveFile(exportID, fileName string) (string, error) {
	id, err := cleanName(exportID)
	if err != nil {
		return "", err
	}
	name, err := cleanName(fileName)
	if err != nil {
		return "", err
	}
	path := filepath.Join(om.BaseOutputDir, id, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", err
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: %q is a directory", ErrInvalidName, fileName)
	}
	return path, nil
}

// ListFiles returns the file names of an export, sorted.
func (om *OutputManager) ListFiles(exportID string) ([]string, error) {
	id, err := cleanName(exportID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(filepath.Join(om.BaseOutputDir, id))
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

// GetDownloadURL returns the API path serving an export file
func (om *OutputManager) GetDownloadURL(exportID, fileName string) string {
	return fmt.Sprintf("/api/v1/exports/%s/%s", exportID, filepath.Base(fileName))
}

// GetFileType determines the file type based on extension
func (om *OutputManager) GetFileType(fileName string) string {
	switch strings.ToLower(filepath.Ext(fileName)) {
	case ".csv":
		return "csv"
	case ".json":
		return "json"
	case ".xlsx", ".xls":
		return "excel"
	default:
		return "unknown"
	}
}

// ContentType maps GetFileType to a MIME type
func (om *OutputManager) ContentType(fileName string) string {
	switch om.GetFileType(fileName) {
	case "csv":
		return "text/csv"
	case "json":
		return "application/json"
	case "excel":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "application/octet-stream"
	}
}

// GetFileSize returns the size of a file in bytes
func (om *OutputManager) GetFileSize(filePath string) (int64, error) {
	info, err := os.Stat(filePath)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// EnsureOutputDirExists ensures the base output directory exists
func (om *OutputManager) EnsureOutputDirExists() error {
	return os.MkdirAll(om.BaseOutputDir, 0755)
}

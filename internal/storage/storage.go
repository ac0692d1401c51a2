// Package storage keeps the watched pins in a small CSV file so that they
// survive a restart.
package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/sweeney/gpio-monitor/internal/gpio"
	"github.com/sweeney/gpio-monitor/internal/monitor"
)

// Header is the first line of every pin file.
const Header = "Pin,Name,Resistor,State,Changes"

var (
	ErrNoPath      = errors.New("no storage path configured")
	ErrIsDirectory = errors.New("storage path is a directory")
	ErrNotFound    = errors.New("storage file not found")
	ErrOpen        = errors.New("failed to open storage file")
	ErrWrite       = errors.New("failed to write storage file")
)

// Restorer receives the pins read from storage.
type Restorer interface {
	Restore(records []monitor.Record) error
}

// File stores pins at a path on the local filesystem.
type File struct {
	path string
}

// New returns a File for path. An empty path disables storage.
func New(path string) *File {
	return &File{path: path}
}

// Path returns the configured path.
func (f *File) Path() string {
	return f.path
}

// Store replaces the file with the given pins.
// The new content is written to a temporary file that is renamed over the
// old one, so a failed write never leaves a truncated file behind.
func (f *File) Store(pins []monitor.Pin) error {
	if f.path == "" {
		return ErrNoPath
	}
	if info, err := os.Stat(f.path); err == nil && info.IsDir() {
		return ErrIsDirectory
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "."+filepath.Base(f.path)+".*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOpen, err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, pins); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("%w: %v", ErrWrite, err)
	}
	return nil
}

func encode(w io.Writer, pins []monitor.Pin) error {
	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, Header)
	for _, p := range pins {
		fmt.Fprintf(bw, "%d,%s,%d,%d,%d\n", p.ID, p.Label, uint8(p.Pull), bit(p.State), p.Changes)
	}
	return bw.Flush()
}

func bit(b bool) int {
	if b {
		return 1
	}
	return 0
}

// Load reads the records in the file. Lines that do not start with a digit
// are skipped. Malformed data rows are skipped and reported in the error
// together with the rows that could be read.
func (f *File) Load() ([]monitor.Record, error) {
	file, err := f.open()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return decode(file)
}

func (f *File) open() (*os.File, error) {
	if f.path == "" {
		return nil, ErrNoPath
	}
	info, err := os.Stat(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err == nil && info.IsDir() {
		return nil, ErrIsDirectory
	}

	file, err := os.Open(f.path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpen, err)
	}
	return file, nil
}

func decode(r io.Reader) ([]monitor.Record, error) {
	var records []monitor.Record
	var errs []error

	scanner := bufio.NewScanner(r)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line[0] < '0' || line[0] > '9' {
			continue
		}
		rec, err := parseRow(line)
		if err != nil {
			errs = append(errs, fmt.Errorf("line %d: %w", n, err))
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		errs = append(errs, err)
	}
	return records, errors.Join(errs...)
}

func parseRow(line string) (monitor.Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 5 {
		return monitor.Record{}, fmt.Errorf("expected 5 fields, got %d", len(fields))
	}

	id, err := strconv.ParseUint(fields[0], 10, 8)
	if err != nil {
		return monitor.Record{}, fmt.Errorf("pin: %w", err)
	}
	changes, err := strconv.ParseUint(fields[4], 10, 64)
	if err != nil {
		return monitor.Record{}, fmt.Errorf("changes: %w", err)
	}

	rec := monitor.Record{
		ID:      uint8(id),
		Label:   fields[1],
		Pull:    gpio.PullDown,
		State:   strings.HasPrefix(fields[3], "1"),
		Changes: changes,
	}
	if strings.HasPrefix(fields[2], "1") {
		rec.Pull = gpio.PullUp
	}
	return rec, nil
}

// LoadInto reads the file and restores its pins into r.
// If the file cannot be opened r is left untouched.
func (f *File) LoadInto(r Restorer) error {
	file, err := f.open()
	if err != nil {
		return err
	}
	records, err := decode(file)
	file.Close()
	return errors.Join(err, r.Restore(records))
}

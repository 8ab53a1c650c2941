// Package csvlog provides the file-based logger connector. Values are
// appended to daily CSV files, one row per timestamp with one column per
// channel. Rotated files can optionally be compressed with zstd.
package csvlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"

	"github.com/fathom-io/fathom/pkg/channel"
	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/connector"
	"github.com/fathom-io/fathom/pkg/errors"
	"github.com/fathom-io/fathom/pkg/frame"
	"github.com/fathom-io/fathom/pkg/logger"
)

// TypeName is the canonical connector type.
const TypeName = "csv"

// Register adds the CSV connector type to a connector context.
func Register(ctx *connector.Context) error {
	return ctx.RegisterType(TypeName, NewDriver, "csvlog", "file")
}

const (
	timeColumn = "time"
	timeLayout = time.RFC3339
	fileLayout = "2006-01-02"
)

// Driver appends channel values to one CSV file per day under a base
// directory. Columns are discovered from the written frames and kept
// stable within a file; a changed column set starts a new header only with
// the next file.
type Driver struct {
	logger *zap.Logger

	dir       string
	decimal   int
	compress  bool
	flushEach bool

	mu      sync.Mutex
	file    *os.File
	writer  *csv.Writer
	day     string
	columns []string
}

// NewDriver creates an unconfigured CSV driver.
func NewDriver(cfg *config.Section) (connector.Driver, error) {
	return &Driver{
		logger: logger.Get().With(zap.String("connector", cfg.StringOr("id", cfg.Name()))),
	}, nil
}

// Configure resolves the target directory and formatting options.
func (d *Driver) Configure(cfg *config.Section) error {
	dir, err := cfg.GetString("dir")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "csv connector requires a dir")
	}
	d.dir = dir
	d.decimal = cfg.IntOr("decimal", 3)
	d.compress = cfg.BoolOr("compress", false)
	d.flushEach = cfg.BoolOr("flush", true)
	return nil
}

// Connect ensures the directory exists.
func (d *Driver) Connect(ctx context.Context, resources channel.Channels) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return errors.Wrapf(err, errors.ErrorTypeConnection, "failed to create directory %q", d.dir)
	}
	return nil
}

// Disconnect flushes and closes the open file, compressing it if
// configured.
func (d *Driver) Disconnect(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closeFile()
}

func (d *Driver) closeFile() error {
	if d.file == nil {
		return nil
	}
	d.writer.Flush()
	err := d.writer.Error()
	path := d.file.Name()
	if cerr := d.file.Close(); err == nil {
		err = cerr
	}
	d.file = nil
	d.writer = nil
	d.columns = nil
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeData, "failed to close %q", path)
	}
	if d.compress {
		if err := compressFile(path); err != nil {
			d.logger.Warn("failed to compress log file",
				zap.String("file", path), zap.Error(err))
		}
	}
	return nil
}

// Read loads rows within [start, end] from the daily files. A zero window
// reads the current day.
func (d *Driver) Read(ctx context.Context, resources channel.Channels, start, end time.Time) (*frame.Frame, error) {
	if start.IsZero() && end.IsZero() {
		now := time.Now().UTC()
		start = now.Truncate(24 * time.Hour)
		end = now
	}
	d.mu.Lock()
	d.flush()
	d.mu.Unlock()

	data := frame.New()
	for day := start.UTC().Truncate(24 * time.Hour); !day.After(end.UTC()); day = day.Add(24 * time.Hour) {
		if err := d.readFile(d.pathFor(day), resources, start, end, data); err != nil {
			return nil, err
		}
	}
	return data, nil
}

func (d *Driver) readFile(path string, resources channel.Channels, start, end time.Time, data *frame.Frame) error {
	reader, closer, err := openFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, errors.ErrorTypeData, "failed to open %q", path)
	}
	defer closer()

	records, err := csv.NewReader(reader).ReadAll()
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeData, "failed to parse %q", path)
	}
	if len(records) < 2 {
		return nil
	}
	header := records[0]
	wanted := make(map[string]bool, len(resources))
	for _, ch := range resources {
		wanted[ch.ID()] = true
	}
	for _, record := range records[1:] {
		if len(record) != len(header) || header[0] != timeColumn {
			continue
		}
		timestamp, err := time.Parse(timeLayout, record[0])
		if err != nil || timestamp.Before(start) || timestamp.After(end) {
			continue
		}
		for i := 1; i < len(header); i++ {
			if len(wanted) > 0 && !wanted[header[i]] {
				continue
			}
			if record[i] == "" {
				continue
			}
			data.Set(header[i], timestamp, record[i])
		}
	}
	return nil
}

// Write appends the frame's rows to the daily file, rolling the file over
// at day boundaries.
func (d *Driver) Write(ctx context.Context, data *frame.Frame) error {
	if data.IsEmpty() {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	columns := data.Columns()
	sort.Strings(columns)

	for _, timestamp := range data.Index() {
		if err := d.ensureFile(timestamp, columns); err != nil {
			return err
		}
		record := make([]string, 1, len(d.columns)+1)
		record[0] = timestamp.UTC().Format(timeLayout)
		for _, column := range d.columns {
			value, ok := data.At(column, timestamp)
			if !ok || frame.IsNA(value) {
				record = append(record, "")
				continue
			}
			record = append(record, d.format(value))
		}
		if err := d.writer.Write(record); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to write csv record")
		}
	}
	if d.flushEach {
		d.flush()
		if err := d.writer.Error(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to flush csv file")
		}
	}
	return nil
}

func (d *Driver) flush() {
	if d.writer != nil {
		d.writer.Flush()
	}
}

// ensureFile opens the file for the timestamp's day, writing the header
// when the file is fresh. Columns missing from an existing header are
// dropped for the rest of the day.
func (d *Driver) ensureFile(timestamp time.Time, columns []string) error {
	day := timestamp.UTC().Format(fileLayout)
	if d.file != nil && d.day == day {
		return nil
	}
	if err := d.closeFile(); err != nil {
		return err
	}
	path := d.pathFor(timestamp)
	info, err := os.Stat(path)
	fresh := os.IsNotExist(err) || (err == nil && info.Size() == 0)

	if !fresh {
		existing, err := readHeader(path)
		if err != nil {
			return err
		}
		columns = existing
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, errors.ErrorTypeData, "failed to open %q", path)
	}
	d.file = file
	d.writer = csv.NewWriter(file)
	d.day = day
	d.columns = columns

	if fresh {
		header := append([]string{timeColumn}, columns...)
		if err := d.writer.Write(header); err != nil {
			return errors.Wrapf(err, errors.ErrorTypeData, "failed to write header of %q", path)
		}
	}
	return nil
}

func (d *Driver) pathFor(timestamp time.Time) string {
	return filepath.Join(d.dir, timestamp.UTC().Format(fileLayout)+".csv")
}

func (d *Driver) format(value interface{}) string {
	switch v := value.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', d.decimal, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', d.decimal, 64)
	case bool:
		return strconv.FormatBool(v)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func readHeader(path string) ([]string, error) {
	reader, closer, err := openFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "failed to open %q", path)
	}
	defer closer()
	header, err := csv.NewReader(reader).Read()
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrorTypeData, "failed to read header of %q", path)
	}
	if len(header) > 0 && header[0] == timeColumn {
		return header[1:], nil
	}
	return header, nil
}

// openFile opens a plain or zstd-compressed daily file, preferring the
// plain file when both exist.
func openFile(path string) (io.Reader, func(), error) {
	file, err := os.Open(path)
	if err == nil {
		return file, func() { file.Close() }, nil
	}
	if !os.IsNotExist(err) {
		return nil, nil, err
	}
	compressed, cerr := os.Open(path + ".zst")
	if cerr != nil {
		return nil, nil, err
	}
	decoder, derr := zstd.NewReader(compressed)
	if derr != nil {
		compressed.Close()
		return nil, nil, derr
	}
	return decoder, func() {
		decoder.Close()
		compressed.Close()
	}, nil
}

// compressFile rewrites a closed daily file as zstd and removes the
// original.
func compressFile(path string) error {
	source, err := os.Open(path)
	if err != nil {
		return err
	}
	defer source.Close()

	target, err := os.Create(path + ".zst")
	if err != nil {
		return err
	}
	encoder, err := zstd.NewWriter(target)
	if err != nil {
		target.Close()
		return err
	}
	if _, err := io.Copy(encoder, source); err != nil {
		encoder.Close()
		target.Close()
		return err
	}
	if err := encoder.Close(); err != nil {
		target.Close()
		return err
	}
	if err := target.Close(); err != nil {
		return err
	}
	return os.Remove(path)
}

package csvlog

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fathom-io/fathom/pkg/config"
	"github.com/fathom-io/fathom/pkg/frame"
)

func newTestDriver(t *testing.T, dir string, options map[string]interface{}) *Driver {
	t.Helper()
	cfg := config.New("log1")
	cfg.Set("dir", dir)
	for key, value := range options {
		cfg.Set(key, value)
	}
	driver, err := NewDriver(cfg)
	require.NoError(t, err)
	d := driver.(*Driver)
	require.NoError(t, d.Configure(cfg))
	require.NoError(t, d.Connect(context.Background(), nil))
	return d
}

func TestConfigureRequiresDir(t *testing.T) {
	driver, err := NewDriver(config.New("log1"))
	require.NoError(t, err)
	assert.Error(t, driver.Configure(config.New("log1")))
}

func TestWriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	d := newTestDriver(t, dir, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Minute)
	data := frame.New()
	data.Set("power", t1, 1.5)
	data.Set("power", t2, 2.25)
	data.Set("energy", t1, 10.0)
	require.NoError(t, d.Write(ctx, data))

	got, err := d.Read(ctx, nil, t1, t2)
	require.NoError(t, err)
	require.NotNil(t, got)

	v, ok := got.At("power", t1)
	require.True(t, ok)
	assert.Equal(t, "1.500", v)
	v, ok = got.At("energy", t1)
	require.True(t, ok)
	assert.Equal(t, "10.000", v)
	// empty cell is skipped, not read back as a value
	_, ok = got.At("energy", t2)
	assert.False(t, ok)
}

func TestReadWindowFilters(t *testing.T) {
	dir := t.TempDir()
	d := newTestDriver(t, dir, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	data := frame.New()
	data.Set("power", t1, 1.0)
	data.Set("power", t2, 2.0)
	require.NoError(t, d.Write(ctx, data))

	got, err := d.Read(ctx, nil, t2, t2)
	require.NoError(t, err)
	_, ok := got.At("power", t1)
	assert.False(t, ok)
	_, ok = got.At("power", t2)
	assert.True(t, ok)
}

func TestWriteRollsDailyFiles(t *testing.T) {
	dir := t.TempDir()
	d := newTestDriver(t, dir, nil)
	ctx := context.Background()

	t1 := time.Date(2026, 5, 1, 23, 59, 0, 0, time.UTC)
	t2 := time.Date(2026, 5, 2, 0, 1, 0, 0, time.UTC)
	data := frame.New()
	data.Set("power", t1, 1.0)
	data.Set("power", t2, 2.0)
	require.NoError(t, d.Write(ctx, data))
	require.NoError(t, d.Disconnect(ctx))

	_, err := os.Stat(filepath.Join(dir, "2026-05-01.csv"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "2026-05-02.csv"))
	assert.NoError(t, err)
}

func TestCompressOnClose(t *testing.T) {
	dir := t.TempDir()
	d := newTestDriver(t, dir, map[string]interface{}{"compress": true})
	ctx := context.Background()

	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	data := frame.New()
	data.Set("power", t1, 1.0)
	require.NoError(t, d.Write(ctx, data))
	require.NoError(t, d.Disconnect(ctx))

	_, err := os.Stat(filepath.Join(dir, "2026-05-01.csv"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "2026-05-01.csv.zst"))
	assert.NoError(t, err)

	// compressed files stay readable
	got, readErr := d.Read(ctx, nil, t1, t1)
	require.NoError(t, readErr)
	_, ok := got.At("power", t1)
	assert.True(t, ok)
}

func TestAppendKeepsHeader(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	t1 := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	d := newTestDriver(t, dir, nil)
	data := frame.New()
	data.Set("power", t1, 1.0)
	require.NoError(t, d.Write(ctx, data))
	require.NoError(t, d.Disconnect(ctx))

	// a fresh driver appending to the same day keeps the existing column set
	d2 := newTestDriver(t, dir, nil)
	more := frame.New()
	more.Set("power", t1.Add(time.Minute), 2.0)
	more.Set("extra", t1.Add(time.Minute), 3.0)
	require.NoError(t, d2.Write(ctx, more))
	require.NoError(t, d2.Disconnect(ctx))

	got, err := d2.Read(ctx, nil, t1, t1.Add(time.Hour))
	require.NoError(t, err)
	_, ok := got.At("power", t1.Add(time.Minute))
	assert.True(t, ok)
	assert.False(t, got.HasColumn("extra"))
}

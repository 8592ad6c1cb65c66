package gcs

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/geodata/internal/dataset"
)

type fakeObjects struct {
	mu      sync.Mutex
	objects map[string]string
	putErr  error
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{objects: make(map[string]string)}
}

func (f *fakeObjects) Put(_ context.Context, name, _ string, r io.Reader) error {
	if f.putErr != nil {
		return f.putErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[name] = string(data)
	return nil
}

func (f *fakeObjects) List(_ context.Context, prefix string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var names []string
	for name := range f.objects {
		if strings.HasPrefix(name, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (f *fakeObjects) Delete(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, name)
	return nil
}

func (f *fakeObjects) Close() error { return nil }

func sequentialIDs() func() string {
	var n int
	return func() string {
		n++
		return fmt.Sprintf("%04d", n)
	}
}

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)
}

func TestAppendAddsParts(t *testing.T) {
	t.Parallel()

	objects := newFakeObjects()
	sink := newSink(objects, "/geodata/")
	sink.newID = sequentialIDs()
	ctx := context.Background()
	row := []any{"1", "Bayern", int64(4), "POLYGON EMPTY", "germany"}

	require.NoError(t, sink.Write(ctx, dataset.AdministrativeUnitSchema, dataset.Append, [][]any{row}))
	require.NoError(t, sink.Write(ctx, dataset.AdministrativeUnitSchema, dataset.Append, [][]any{row}))

	names, err := objects.List(ctx, "geodata/administrative_unit/")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"geodata/administrative_unit/part-0001.csv",
		"geodata/administrative_unit/part-0002.csv",
	}, names)
}

func TestReplaceRemovesStaleParts(t *testing.T) {
	t.Parallel()

	objects := newFakeObjects()
	sink := newSink(objects, "geodata")
	sink.newID = sequentialIDs()
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, dataset.HexagonHashSchema, dataset.Append, [][]any{{"a", int64(6)}}))
	require.NoError(t, sink.Write(ctx, dataset.HexagonHashSchema, dataset.Append, [][]any{{"b", int64(6)}}))
	require.NoError(t, sink.Write(ctx, dataset.HexagonHashSchema, dataset.Replace, [][]any{{"c", int64(6)}}))

	names, err := objects.List(ctx, "geodata/hexagon_hash/")
	require.NoError(t, err)
	require.Equal(t, []string{"geodata/hexagon_hash/part-0003.csv"}, names)
	assert.Equal(t, "hid,level\nc,6\n", objects.objects[names[0]])
}

func TestReplaceKeepsOldPartsWhenPutFails(t *testing.T) {
	t.Parallel()

	objects := newFakeObjects()
	sink := newSink(objects, "")
	sink.newID = sequentialIDs()
	ctx := context.Background()

	require.NoError(t, sink.Write(ctx, dataset.HexagonHashSchema, dataset.Replace, [][]any{{"a", int64(6)}}))
	objects.putErr = fmt.Errorf("unavailable")
	require.Error(t, sink.Write(ctx, dataset.HexagonHashSchema, dataset.Replace, [][]any{{"b", int64(6)}}))

	names, err := objects.List(ctx, "hexagon_hash/")
	require.NoError(t, err)
	assert.Equal(t, []string{"hexagon_hash/part-0001.csv"}, names)
}

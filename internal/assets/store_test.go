package assets

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/panelsmith/panelsmith/model"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), 8<<20, nil)
}

func assertErrCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var envelope *model.ErrorEnvelope
	require.True(t, errors.As(err, &envelope), "want *model.ErrorEnvelope, got %T: %v", err, err)
	assert.Equal(t, code, envelope.Code)
}

func TestKind(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"roboto.ttf", model.AssetKindFont},
		{"roboto.otf", model.AssetKindFont},
		{"ROBOTO.TTF", model.AssetKindFont},
		{"logo.png", model.AssetKindImage},
		{"photo.jpg", model.AssetKindImage},
		{"photo.jpeg", model.AssetKindImage},
		{"icon.webp", model.AssetKindImage},
		{"splash.bmp", model.AssetKindImage},
		{"LOGO.PNG", model.AssetKindImage},
		{"notes.txt", model.AssetKindFile},
		{"archive", model.AssetKindFile},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.name), "Kind(%q)", tt.name)
	}
}

func TestStore_List_missingDir(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "nope"), 8<<20, nil)

	infos, err := s.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, infos)
}

func TestStore_List_sortedWithKinds(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "roboto.ttf"), []byte("fontdata"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "logo.png"), []byte("img"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "notes.txt"), []byte("n"), 0o644))

	infos, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 3)

	assert.Equal(t, "logo.png", infos[0].Name)
	assert.Equal(t, model.AssetKindImage, infos[0].Kind)
	assert.Equal(t, int64(3), infos[0].Size)

	assert.Equal(t, "notes.txt", infos[1].Name)
	assert.Equal(t, model.AssetKindFile, infos[1].Kind)

	assert.Equal(t, "roboto.ttf", infos[2].Name)
	assert.Equal(t, model.AssetKindFont, infos[2].Kind)
	assert.Equal(t, int64(8), infos[2].Size)

	for _, info := range infos {
		assert.False(t, info.ModifiedAt.IsZero(), "asset %s has no mtime", info.Name)
	}
}

func TestStore_List_skipsDirsAndTempFiles(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.MkdirAll(filepath.Join(s.Dir(), "subdir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), ".asset-123.tmp"), []byte("partial"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir(), "logo.png"), []byte("img"), 0o644))

	infos, err := s.List(context.Background())
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, "logo.png", infos[0].Name)
}

func TestStore_Save_roundTrip(t *testing.T) {
	s := newStore(t)

	info, err := s.Save(context.Background(), "roboto.ttf", []byte("fontdata"))
	require.NoError(t, err)
	assert.Equal(t, "roboto.ttf", info.Name)
	assert.Equal(t, model.AssetKindFont, info.Kind)
	assert.Equal(t, int64(8), info.Size)
	assert.False(t, info.ModifiedAt.IsZero())

	data, err := os.ReadFile(filepath.Join(s.Dir(), "roboto.ttf"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal([]byte("fontdata"), data))
}

func TestStore_Save_overwrites(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "logo.png", []byte("v1"))
	require.NoError(t, err)
	info, err := s.Save(ctx, "logo.png", []byte("v2-longer"))
	require.NoError(t, err)
	assert.Equal(t, int64(9), info.Size)

	infos, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, int64(9), infos[0].Size)
}

func TestStore_Save_acceptsSpacesInName(t *testing.T) {
	s := newStore(t)

	info, err := s.Save(context.Background(), "My Font.ttf", []byte("fontdata"))
	require.NoError(t, err)
	assert.Equal(t, "My Font.ttf", info.Name)
}

func TestStore_Save_invalidNames(t *testing.T) {
	s := newStore(t)
	for _, name := range []string{"", "../escape.png", "a/b.png", ".hidden", "x:y.png"} {
		_, err := s.Save(context.Background(), name, []byte("data"))
		assertErrCode(t, err, model.ErrBadRequest)
	}
}

func TestStore_Save_emptyData(t *testing.T) {
	s := newStore(t)

	_, err := s.Save(context.Background(), "logo.png", nil)
	assertErrCode(t, err, model.ErrBadRequest)
}

func TestStore_Save_overUploadLimit(t *testing.T) {
	s := NewStore(t.TempDir(), 8, nil)
	ctx := context.Background()

	_, err := s.Save(ctx, "big.png", []byte("123456789"))
	assertErrCode(t, err, model.ErrBadRequest)

	_, err = s.Save(ctx, "fits.png", []byte("12345678"))
	require.NoError(t, err)
}

func TestStore_Delete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, "logo.png", []byte("img"))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "logo.png"))
	assertErrCode(t, s.Delete(ctx, "logo.png"), model.ErrNotFound)
	assertErrCode(t, s.Delete(ctx, "../escape.png"), model.ErrBadRequest)

	infos, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, infos)
}

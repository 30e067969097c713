package blob

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const metaSuffix = ".meta"

// FSStore keeps objects as files under a root directory. A sidecar file
// (key + ".meta") holds the content type, etag and user metadata.
type FSStore struct {
	root string
}

type fsMeta struct {
	ContentType string            `json:"contentType"`
	ETag        string            `json:"etag"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// NewFSStore creates root if needed.
func NewFSStore(root string) (*FSStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &FSStore{root: abs}, nil
}

func (s *FSStore) Driver() Driver { return DriverFilesystem }

// Root is the absolute directory objects are written under.
func (s *FSStore) Root() string { return s.root }

func (s *FSStore) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FSStore) Put(ctx context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	key, err := sanitizeKey(key)
	if err != nil {
		return Info{}, err
	}
	full := s.path(key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), ".upload-*")
	if err != nil {
		return Info{}, err
	}
	defer os.Remove(tmp.Name())

	h := sha256.New()
	if _, err := io.Copy(io.MultiWriter(tmp, h), r); err != nil {
		tmp.Close()
		return Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return Info{}, err
	}
	if err := os.Rename(tmp.Name(), full); err != nil {
		return Info{}, err
	}

	meta := fsMeta{ContentType: contentType(key, opts), ETag: hex.EncodeToString(h.Sum(nil)), Metadata: opts.Metadata}
	mb, _ := json.Marshal(meta)
	if err := os.WriteFile(full+metaSuffix, mb, 0o644); err != nil {
		return Info{}, err
	}
	return s.info(key, full, meta)
}

func (s *FSStore) Get(ctx context.Context, key string) (Info, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, nil, err
	}
	key, err := sanitizeKey(key)
	if err != nil {
		return Info{}, nil, err
	}
	full := s.path(key)
	f, err := os.Open(full)
	if err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return Info{}, nil, ErrNotFound
		}
		return Info{}, nil, err
	}
	info, err := s.info(key, full, s.readMeta(full, key))
	if err != nil {
		f.Close()
		return Info{}, nil, err
	}
	return info, f, nil
}

func (s *FSStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	key, err := sanitizeKey(key)
	if err != nil {
		return false, err
	}
	full := s.path(key)
	if err := os.Remove(full); err != nil {
		if stderrors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	_ = os.Remove(full + metaSuffix)
	return true, nil
}

func (s *FSStore) List(ctx context.Context, prefix string) ([]Info, error) {
	var out []Info
	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if d.IsDir() || strings.HasSuffix(name, metaSuffix) || strings.HasPrefix(name, ".upload-") {
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := s.info(key, p, s.readMeta(p, key))
		if err != nil {
			return err
		}
		out = append(out, info)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (s *FSStore) readMeta(full, key string) fsMeta {
	var m fsMeta
	if b, err := os.ReadFile(full + metaSuffix); err == nil {
		_ = json.Unmarshal(b, &m)
	}
	if m.ContentType == "" {
		m.ContentType = contentType(key, PutOptions{})
	}
	return m
}

func (s *FSStore) info(key, full string, m fsMeta) (Info, error) {
	st, err := os.Stat(full)
	if err != nil {
		return Info{}, err
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(full)}
	return Info{
		Key:          key,
		Size:         st.Size(),
		ContentType:  m.ContentType,
		ETag:         m.ETag,
		LastModified: st.ModTime().UTC(),
		URL:          u.String(),
	}, nil
}

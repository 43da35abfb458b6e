// Package artifact implements the verified artifact store and the
// manual-override resolution of segmentation and disc label artifacts.
//
// A verified copy of an artifact, when present, replaces the automatic
// computation: it is copied into the working folder and nothing is run.
// Otherwise the artifact is computed, reviewed by a human and the working
// copy is promoted into the verified store.
package artifact

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
)

// Mirror is a remote copy of the verified store. Names are paths relative
// to the verified root with forward slashes.
type Mirror interface {
	// Fetch downloads name into dst and reports false if it does not exist.
	Fetch(ctx context.Context, name, dst string) (bool, error)
	Push(ctx context.Context, name, src string) error
}

// Copy describes a file written by the store.
type Copy struct {
	Path    string
	SHA256  string
	Size    int64
	Sidecar bool
}

// Store moves artifacts between the working folder and the verified store.
type Store struct {
	layout bids.Layout
	mirror Mirror
	log    log.FieldLogger
}

type StoreOption func(*Store)

// WithMirror adds a remote tier behind the local verified store.
func WithMirror(m Mirror) StoreOption {
	return func(s *Store) { s.mirror = m }
}

func WithLogger(l log.FieldLogger) StoreOption {
	return func(s *Store) { s.log = l }
}

func NewStore(layout bids.Layout, opts ...StoreOption) *Store {
	s := &Store{layout: layout, log: log.StandardLogger()}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) Layout() bids.Layout { return s.layout }

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// HasVerified reports if a verified image exists for key. A copy only found
// in the mirror is restored into the local store first.
func (s *Store) HasVerified(ctx context.Context, key bids.Key) (bool, error) {
	path := s.layout.Verified(key)
	ok, err := exists(path)
	if err != nil || ok || s.mirror == nil {
		return ok, err
	}
	name := s.layout.VerifiedName(key)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return false, err
	}
	ok, err = s.mirror.Fetch(ctx, name, path)
	if err != nil {
		return false, fmt.Errorf("fetch %s from mirror: %w", name, err)
	}
	if !ok {
		return false, nil
	}
	s.log.WithField("artifact", key.String()).Info("restored verified artifact from mirror")
	sidecar := bids.Sidecar(path)
	if _, err := s.mirror.Fetch(ctx, bids.Sidecar(name), sidecar); err != nil {
		s.log.WithError(err).Warn("could not fetch sidecar from mirror")
	}
	return true, nil
}

// CopyToWorking copies the verified image of key, and its sidecar if there
// is one, into the working folder.
func (s *Store) CopyToWorking(key bids.Key) (Copy, error) {
	return s.copyPair(key, s.layout.Verified(key), s.layout.Working(key))
}

// Promote copies the working image of key, and its sidecar if there is one,
// into the verified store and the mirror.
func (s *Store) Promote(ctx context.Context, key bids.Key) (Copy, error) {
	c, err := s.copyPair(key, s.layout.Working(key), s.layout.Verified(key))
	if err != nil {
		return c, err
	}
	if s.mirror != nil {
		name := s.layout.VerifiedName(key)
		if err := s.mirror.Push(ctx, name, c.Path); err != nil {
			s.log.WithError(err).WithField("artifact", key.String()).Warn("could not push artifact to mirror")
			return c, nil
		}
		if c.Sidecar {
			if err := s.mirror.Push(ctx, bids.Sidecar(name), bids.Sidecar(c.Path)); err != nil {
				s.log.WithError(err).Warn("could not push sidecar to mirror")
			}
		}
	}
	return c, nil
}

func (s *Store) copyPair(key bids.Key, src, dst string) (Copy, error) {
	sum, n, err := copyFile(src, dst)
	if err != nil {
		return Copy{}, err
	}
	c := Copy{Path: dst, SHA256: sum, Size: n}
	fields := log.Fields{"artifact": key.String(), "size": humanize.Bytes(uint64(n))}

	srcSide, dstSide := bids.Sidecar(src), bids.Sidecar(dst)
	ok, err := exists(srcSide)
	if err != nil {
		return c, err
	}
	if ok {
		if _, _, err := copyFile(srcSide, dstSide); err != nil {
			return c, err
		}
		c.Sidecar = true
	} else {
		s.log.WithFields(fields).Infof("no sidecar %s, copied the image only", filepath.Base(srcSide))
		// a sidecar left from an earlier copy would describe another image
		if err := os.Remove(dstSide); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.WithError(err).WithFields(fields).Warnf("could not remove stale sidecar %s", dstSide)
		}
	}
	s.log.WithFields(fields).Infof("copied %s to %s", src, dst)
	return c, nil
}

// copyFile writes src to a temporary file next to dst and renames it into
// place. It returns the SHA-256 and size of the copied content.
func copyFile(src, dst string) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return "", 0, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".sci-*")
	if err != nil {
		return "", 0, err
	}
	defer os.Remove(tmp.Name())
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), in)
	if err != nil {
		tmp.Close()
		return "", 0, fmt.Errorf("copy %s: %w", src, err)
	}
	if err := tmp.Close(); err != nil {
		return "", 0, err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return "", 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// Stage copies an arbitrary file to dst the same way the store does, for
// raw images entering the working folder.
func Stage(src, dst string) (Copy, error) {
	sum, n, err := copyFile(src, dst)
	if err != nil {
		return Copy{}, err
	}
	c := Copy{Path: dst, SHA256: sum, Size: n}
	if ok, _ := exists(bids.Sidecar(src)); ok {
		if _, _, err := copyFile(bids.Sidecar(src), bids.Sidecar(dst)); err != nil {
			return c, err
		}
		c.Sidecar = true
	}
	return c, nil
}

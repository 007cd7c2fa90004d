// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"bufio"
	"io"
	"os"
	"strings"
	"sync"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	"github.com/klauspost/pgzip"
	log "github.com/sirupsen/logrus"
)

var keepFS struct {
	sync.Mutex
	fs arvados.CustomFileSystem
}

// open returns a reader for fnm. When ARVADOS_API_HOST is set and fnm
// names a file in a collection, the file is read from Keep through
// the site filesystem instead of a local mount.
func open(fnm string) (io.ReadCloser, error) {
	m := keepPathRe.FindStringSubmatch(fnm)
	if m == nil || os.Getenv("ARVADOS_API_HOST") == "" {
		return os.Open(fnm)
	}
	fs, err := siteFileSystem()
	if err != nil {
		return nil, err
	}
	log.Infof("reading %q from %s using Arvados client", m[3], m[2])
	return fs.Open("by_id/" + m[2] + m[3])
}

func siteFileSystem() (arvados.CustomFileSystem, error) {
	keepFS.Lock()
	defer keepFS.Unlock()
	if keepFS.fs != nil {
		return keepFS.fs, nil
	}
	log.Info("setting up Arvados client")
	client := arvados.NewClientFromEnv()
	ac, err := arvadosclient.New(client)
	if err != nil {
		return nil, err
	}
	ac.Client = arvados.DefaultSecureClient
	kc := keepclient.New(ac)
	// keepclient's default timeouts are too short for large inputs
	kc.HTTPClient = arvados.DefaultSecureClient
	kc.BlockCache = &keepclient.BlockCache{MaxBlocks: 4}
	keepFS.fs = client.SiteFileSystem(kc)
	return keepFS.fs, nil
}

// zopen is like open, but decompresses the input if fnm ends with
// ".gz".
func zopen(fnm string) (io.ReadCloser, error) {
	f, err := open(fnm)
	if err != nil || !strings.HasSuffix(fnm, ".gz") {
		return f, err
	}
	gz, err := pgzip.NewReader(bufio.NewReaderSize(f, 4<<20))
	if err != nil {
		f.Close()
		return nil, err
	}
	return &gzipReader{Reader: gz, gz: gz, f: f}, nil
}

// gzipReader closes both the decompressor and the underlying file.
type gzipReader struct {
	io.Reader
	gz *pgzip.Reader
	f  io.Closer
}

func (r *gzipReader) Close() error {
	err := r.gz.Close()
	if ferr := r.f.Close(); err == nil {
		err = ferr
	}
	return err
}

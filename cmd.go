// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"bufio"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"strings"

	"git.arvados.org/arvados.git/lib/cmd"
	"github.com/arvados/sdpimpute/snpdata"
	"github.com/klauspost/pgzip"
	"github.com/mattn/go-isatty"
	log "github.com/sirupsen/logrus"
)

var (
	handler = cmd.Multi(map[string]cmd.Handler{
		"version":   cmd.Version,
		"-version":  cmd.Version,
		"--version": cmd.Version,

		"prepare":   &prepare{},
		"distances": &distances{},
		"apply":     &applyChanges{},
	})
)

func Main() {
	if !isatty.IsTerminal(os.Stderr.Fd()) {
		log.StandardLogger().Formatter = &log.TextFormatter{DisableTimestamp: true}
	}
	os.Exit(handler.RunCommand(os.Args[0], os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// loadMatrix reads and encodes the matrix at fnm ("-" for stdin).
func loadMatrix(fnm string, stdin io.Reader) (*snpdata.Matrix, error) {
	var input io.ReadCloser
	if fnm == "-" {
		input = ioutil.NopCloser(stdin)
	} else {
		var err error
		input, err = zopen(fnm)
		if err != nil {
			return nil, err
		}
	}
	defer input.Close()
	log.Printf("reading SNP data from %q", fnm)
	m, err := snpdata.Read(input)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	err = input.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	log.Printf("reading done, %d samples, %d sites", m.Samples(), m.Sites())
	return m, nil
}

// zcreate opens fnm for writing ("-" for stdout), compressing the
// output if fnm ends with ".gz". Close flushes and closes everything.
func zcreate(fnm string, stdout io.Writer) (io.WriteCloser, error) {
	var f io.WriteCloser
	if fnm == "-" {
		f = nopCloser{stdout}
	} else {
		var err error
		f, err = os.OpenFile(fnm, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
		if err != nil {
			return nil, err
		}
	}
	bufw := bufio.NewWriterSize(f, 1<<20)
	if strings.HasSuffix(fnm, ".gz") {
		return &zwriter{gz: pgzip.NewWriter(bufw), bufw: bufw, f: f}, nil
	}
	return &zwriter{bufw: bufw, f: f}, nil
}

type zwriter struct {
	gz     *pgzip.Writer
	bufw   *bufio.Writer
	f      io.WriteCloser
	closed bool
}

func (w *zwriter) Write(p []byte) (int, error) {
	if w.gz != nil {
		return w.gz.Write(p)
	}
	return w.bufw.Write(p)
}

func (w *zwriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if w.gz != nil {
		if err := w.gz.Close(); err != nil {
			w.f.Close()
			return err
		}
	}
	if err := w.bufw.Flush(); err != nil {
		w.f.Close()
		return err
	}
	return w.f.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

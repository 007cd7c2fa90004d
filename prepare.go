// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"runtime"
	"time"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/sdpimpute/snpdata"
	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gonum.org/v1/gonum/stat"
)

type prepare struct {
	threads int
}

type prepareStats struct {
	Samples        int
	Sites          int
	Patterns       int
	UnknownCalls   int
	ElapsedSeconds float64

	// Minor allele frequency among known calls, over sites with
	// at least one known call.
	MinorAlleleFrequencyMean   float64
	MinorAlleleFrequencyStdDev float64

	// blake2b-256 of all mismatch vectors, in pattern order.
	VectorDigest string
}

func (cmd *prepare) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	pprofdir := flags.String("pprof-dir", "", "write Go profile data to `directory` periodically")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "-", "input SNP matrix `file`")
	outputFilename := flags.String("o", "-", "output stats `file` (json)")
	vectorsFilename := flags.String("vectors-npy", "", "also output mismatch vectors to numpy `file`")
	sitesFilename := flags.String("sites-arrow", "", "also output per-site table to arrow `file`")
	flags.IntVar(&cmd.threads, "threads", runtime.NumCPU(), "compute mismatch vectors with up to `N` goroutines")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	} else if *vectorsFilename == "-" {
		err = errors.New("cannot write -vectors-npy to stdout")
		return 2
	} else if *sitesFilename == "-" {
		err = errors.New("cannot write -sites-arrow to stdout")
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}
	if *pprofdir != "" {
		done := make(chan struct{})
		defer close(done)
		go writeProfilesPeriodically(*pprofdir, time.Minute, done)
	}

	if !*runlocal {
		if *outputFilename != "-" {
			err = errors.New("cannot specify output file in container mode: not implemented")
			return 1
		}
		runner := arvadosContainerRunner{
			Name:        "sdpimpute prepare",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         64000000000,
			VCPUs:       16,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename)
		if err != nil {
			return 1
		}
		runner.Args = []string{"prepare", "-local=true",
			"-i", *inputFilename,
			"-o", "/mnt/output/stats.json",
			"-vectors-npy", "/mnt/output/vectors.npy",
			"-sites-arrow", "/mnt/output/sites.arrow",
		}
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/stats.json")
		return 0
	}

	start := time.Now()
	m, err := loadMatrix(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	log.Print("generating pair-wise mismatch vectors")
	vs := snpdata.NewVectorSet(m, cmd.threads)
	stats := summarize(m, vs)
	stats.ElapsedSeconds = time.Since(start).Seconds()
	log.Printf("number of samples: %d", stats.Samples)
	log.Printf("number of SNPs: %d", stats.Sites)
	log.Printf("number of SDPs: %d", stats.Patterns)
	log.Printf("time to process: %v", time.Since(start).Round(time.Second))

	if *vectorsFilename != "" {
		log.Printf("writing mismatch vectors to %s", *vectorsFilename)
		err = writeVectorsNpy(*vectorsFilename, m, vs)
		if err != nil {
			return 1
		}
	}
	if *sitesFilename != "" {
		log.Printf("writing site table to %s", *sitesFilename)
		err = writeSiteTable(*sitesFilename, m)
		if err != nil {
			return 1
		}
	}

	output, err := zcreate(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	enc := json.NewEncoder(output)
	enc.SetIndent("", "  ")
	err = enc.Encode(stats)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

func summarize(m *snpdata.Matrix, vs *snpdata.VectorSet) prepareStats {
	stats := prepareStats{
		Samples:  m.Samples(),
		Sites:    m.Sites(),
		Patterns: vs.Len(),
	}
	var maf []float64
	for site := 0; site < m.Sites(); site++ {
		stats.UnknownCalls += m.Count(site, snpdata.Unknown)
		major, minor := m.Count(site, snpdata.Major), m.Count(site, snpdata.Minor)
		if major+minor > 0 {
			maf = append(maf, float64(minor)/float64(major+minor))
		}
	}
	if len(maf) > 0 {
		stats.MinorAlleleFrequencyMean, stats.MinorAlleleFrequencyStdDev = stat.MeanStdDev(maf, nil)
		if len(maf) == 1 {
			stats.MinorAlleleFrequencyStdDev = 0
		}
	}
	stats.VectorDigest = fmt.Sprintf("%x", vectorDigest(vs))
	return stats
}

func vectorDigest(vs *snpdata.VectorSet) []byte {
	h, _ := blake2b.New256(nil)
	var buf []byte
	for id := 0; id < vs.Len(); id++ {
		vec := vs.ByID(id)
		if cap(buf) < len(vec)*2 {
			buf = make([]byte, len(vec)*2)
		}
		buf = buf[:len(vec)*2]
		for i, d := range vec {
			binary.LittleEndian.PutUint16(buf[i*2:], uint16(d))
		}
		h.Write(buf)
	}
	return h.Sum(nil)
}

// writeVectorsNpy writes the mismatch vector of each pattern as one
// row of a uint16 array, in pattern order.
func writeVectorsNpy(fnm string, m *snpdata.Matrix, vs *snpdata.VectorSet) error {
	cols := snpdata.VectorLen(m.Samples())
	out := make([]uint16, 0, vs.Len()*cols)
	for id := 0; id < vs.Len(); id++ {
		for _, d := range vs.ByID(id) {
			out = append(out, uint16(d))
		}
	}
	return writeNpyUint16(fnm, out, vs.Len(), cols)
}

func writeNpyUint16(fnm string, data []uint16, rows, cols int) error {
	output, err := zcreate(fnm, nil)
	if err != nil {
		return err
	}
	defer output.Close()
	npw, err := gonpy.NewWriter(nopCloser{output})
	if err != nil {
		return err
	}
	npw.Shape = []int{rows, cols}
	err = npw.WriteUint16(data)
	if err != nil {
		return fmt.Errorf("%s: %w", fnm, err)
	}
	return output.Close()
}

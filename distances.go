// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"
	"strconv"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/sdpimpute/snpdata"
	log "github.com/sirupsen/logrus"
)

// distances writes the full sample×sample distance matrix for one
// site, reconstructed row by row from the site's mismatch vector.
type distances struct {
	site int
}

func (cmd *distances) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var err error
	defer func() {
		if err != nil {
			fmt.Fprintf(stderr, "%s\n", err)
		}
	}()
	flags := flag.NewFlagSet("", flag.ContinueOnError)
	flags.SetOutput(stderr)
	pprof := flags.String("pprof", "", "serve Go profile data at http://`[addr]:port`")
	runlocal := flags.Bool("local", false, "run on local host (default: run in an arvados container)")
	projectUUID := flags.String("project", "", "project `UUID` for output data")
	priority := flags.Int("priority", 500, "container request priority")
	inputFilename := flags.String("i", "-", "input SNP matrix `file`")
	outputFilename := flags.String("o", "-", "output `file`")
	outputFormat := flags.String("output-format", "tsv", "output `format`: tsv or npy")
	flags.IntVar(&cmd.site, "site", 0, "0-based `index` of the site")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	}
	if *outputFormat != "tsv" && *outputFormat != "npy" {
		err = fmt.Errorf("invalid output format %q", *outputFormat)
		return 2
	}

	if *pprof != "" {
		go func() {
			log.Println(http.ListenAndServe(*pprof, nil))
		}()
	}

	if !*runlocal {
		if *outputFilename != "-" {
			err = errors.New("cannot specify output file in container mode: not implemented")
			return 1
		}
		runner := arvadosContainerRunner{
			Name:        "sdpimpute distances",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         16000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename)
		if err != nil {
			return 1
		}
		outfile := "/mnt/output/distances." + *outputFormat
		runner.Args = []string{"distances", "-local=true",
			"-site", fmt.Sprintf("%d", cmd.site),
			"-output-format", *outputFormat,
			"-i", *inputFilename,
			"-o", outfile,
		}
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/distances."+*outputFormat)
		return 0
	}

	m, err := loadMatrix(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	if cmd.site < 0 || cmd.site >= m.Sites() {
		err = fmt.Errorf("site %d out of range: input has %d sites", cmd.site, m.Sites())
		return 1
	}
	n := m.Samples()
	vec := snpdata.ComputeVector(m.Pattern(cmd.site))
	table := snpdata.NewIndexTable(n)

	if *outputFormat == "npy" {
		if *outputFilename == "-" {
			err = errors.New("cannot write npy format to stdout")
			return 2
		}
		data := make([]uint16, 0, n*n)
		for sample := 0; sample < n; sample++ {
			for _, d := range table.ExtractRow(vec, sample) {
				data = append(data, uint16(d))
			}
		}
		err = writeNpyUint16(*outputFilename, data, n, n)
		if err != nil {
			return 1
		}
		return 0
	}

	output, err := zcreate(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	for sample := 0; sample < n; sample++ {
		for i, d := range table.ExtractRow(vec, sample) {
			if i > 0 {
				bufw.WriteByte('\t')
			}
			if d == snpdata.Unreachable {
				bufw.WriteString("-")
			} else {
				bufw.WriteString(strconv.Itoa(int(d)))
			}
		}
		bufw.WriteByte('\n')
	}
	err = bufw.Flush()
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

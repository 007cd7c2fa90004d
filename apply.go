// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	_ "net/http/pprof"

	"git.arvados.org/arvados.git/sdk/go/arvados"
	"github.com/arvados/sdpimpute/snpdata"
	log "github.com/sirupsen/logrus"
)

// applyChanges merges imputed values (from an external imputation
// engine) into a SNP matrix and writes the result, with imputed calls
// in lower case.
type applyChanges struct{}

func (cmd *applyChanges) RunCommand(prog string, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
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
	changesFilename := flags.String("changes", "", "imputed values `file` (site,sample,value per line)")
	outputFilename := flags.String("o", "-", "output `file` (gzip-compressed if name ends in .gz)")
	err = flags.Parse(args)
	if err == flag.ErrHelp {
		err = nil
		return 0
	} else if err != nil {
		return 2
	} else if flags.NArg() > 0 {
		err = fmt.Errorf("errant command line arguments after parsed flags: %v", flags.Args())
		return 2
	} else if *changesFilename == "" {
		err = errors.New("must specify -changes file")
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
			Name:        "sdpimpute apply",
			Client:      arvados.NewClientFromEnv(),
			ProjectUUID: *projectUUID,
			RAM:         16000000000,
			VCPUs:       1,
			Priority:    *priority,
		}
		err = runner.TranslatePaths(inputFilename, changesFilename)
		if err != nil {
			return 1
		}
		runner.Args = []string{"apply", "-local=true",
			"-i", *inputFilename,
			"-changes", *changesFilename,
			"-o", "/mnt/output/imputed.csv.gz",
		}
		var output string
		output, err = runner.Run()
		if err != nil {
			return 1
		}
		fmt.Fprintln(stdout, output+"/imputed.csv.gz")
		return 0
	}

	m, err := loadMatrix(*inputFilename, stdin)
	if err != nil {
		return 1
	}
	changes, err := readChangesFile(*changesFilename)
	if err != nil {
		return 1
	}
	err = m.CheckChanges(changes)
	if err != nil {
		return 1
	}
	log.Printf("incorporating %d imputed values", len(changes))
	warnings := m.ApplyChanges(changes)
	if len(warnings) > 0 {
		log.Warnf("%d of %d imputed values were not applied", len(warnings), len(changes))
	}

	log.Printf("writing imputed data to %q", *outputFilename)
	output, err := zcreate(*outputFilename, stdout)
	if err != nil {
		return 1
	}
	defer output.Close()
	_, err = m.WriteTo(output)
	if err != nil {
		return 1
	}
	err = output.Close()
	if err != nil {
		return 1
	}
	return 0
}

func readChangesFile(fnm string) (map[snpdata.Cell]snpdata.Change, error) {
	f, err := zopen(fnm)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	changes, err := snpdata.ReadChanges(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fnm, err)
	}
	return changes, nil
}

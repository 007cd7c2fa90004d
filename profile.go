// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"time"

	log "github.com/sirupsen/logrus"
)

// writeProfilesPeriodically refreshes cpu.prof and mem.prof in outdir
// once per interval until done is closed.
func writeProfilesPeriodically(outdir string, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			writeMemProfile(outdir)
			writeCPUProfile(outdir, time.Second)
		}
	}
}

func writeCPUProfile(outdir string, duration time.Duration) {
	tmp := filepath.Join(outdir, "cpu.prof~")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		log.Print(err)
		return
	}
	defer f.Close()
	if err := pprof.StartCPUProfile(f); err != nil {
		log.Print(err)
		return
	}
	time.Sleep(duration)
	pprof.StopCPUProfile()
	err = f.Close()
	if err != nil {
		log.Print(err)
		return
	}
	err = os.Rename(tmp, filepath.Join(outdir, "cpu.prof"))
	if err != nil {
		log.Print(err)
	}
}

func writeMemProfile(outdir string) {
	tmp := filepath.Join(outdir, "mem.prof~")
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		log.Print(err)
		return
	}
	defer f.Close()
	runtime.GC()
	if err := pprof.WriteHeapProfile(f); err != nil {
		log.Print(err)
		return
	}
	err = f.Close()
	if err != nil {
		log.Print(err)
		return
	}
	err = os.Rename(tmp, filepath.Join(outdir, "mem.prof"))
	if err != nil {
		log.Print(err)
	}
}

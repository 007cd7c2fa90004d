// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"regexp"
	"sync"
	"time"

	"git.arvados.org/arvados.git/lib/cmd"
	"git.arvados.org/arvados.git/sdk/go/arvados"
	"git.arvados.org/arvados.git/sdk/go/arvadosclient"
	"git.arvados.org/arvados.git/sdk/go/keepclient"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
)

var refreshInterval = 5 * time.Second

const (
	outputMount  = "/mnt/output"
	commandMount = "/mnt/cmd"
)

// keepPathRe matches a path whose first component names a collection
// by UUID or portable data hash, optionally after a mount prefix.
var keepPathRe = regexp.MustCompile(`^(.*/)?([0-9a-f]{32}\+[0-9]+|[0-9a-z]{5}-[0-9a-z]{5}-[0-9a-z]{15})(/.*)?$`)

// arvadosContainerRunner runs an sdpimpute subcommand in an Arvados
// container, with this executable mounted at commandMount and a
// writable output collection at outputMount.
type arvadosContainerRunner struct {
	Client      *arvados.Client
	Name        string
	ProjectUUID string
	VCPUs       int
	RAM         int64
	Priority    int
	Args        []string

	// input collections, keyed by UUID or portable data hash
	inputs map[string]bool
}

// TranslatePaths rewrites each path that refers to a file in a Keep
// collection to the path where that collection will be mounted in
// the container. "" and "-" are left alone.
func (runner *arvadosContainerRunner) TranslatePaths(paths ...*string) error {
	for _, path := range paths {
		if *path == "" || *path == "-" {
			continue
		}
		m := keepPathRe.FindStringSubmatch(*path)
		if m == nil {
			return fmt.Errorf("cannot find collection uuid or portable data hash in path: %q", *path)
		}
		if runner.inputs == nil {
			runner.inputs = map[string]bool{}
		}
		runner.inputs[m[2]] = true
		*path = "/mnt/" + m[2] + m[3]
	}
	return nil
}

// mounts returns the container request's mounts, not including the
// command collection.
func (runner *arvadosContainerRunner) mounts() map[string]map[string]interface{} {
	mounts := map[string]map[string]interface{}{
		outputMount: {"kind": "collection", "writable": true},
	}
	for id := range runner.inputs {
		mnt := map[string]interface{}{"kind": "collection"}
		if len(id) == 27 {
			mnt["uuid"] = id
		} else {
			mnt["portable_data_hash"] = id
		}
		mounts["/mnt/"+id] = mnt
	}
	return mounts
}

func (runner *arvadosContainerRunner) Run() (string, error) {
	return runner.RunContext(context.Background())
}

// RunContext submits a container request, waits for it to finish
// (copying its stderr log to ours), and returns the output
// collection UUID. If ctx is cancelled, the request's priority is set
// to zero.
func (runner *arvadosContainerRunner) RunContext(ctx context.Context) (string, error) {
	if runner.ProjectUUID == "" {
		return "", errors.New("cannot run arvados container: ProjectUUID not provided")
	}
	cmdUUID, err := runner.commandCollection()
	if err != nil {
		return "", err
	}
	mounts := runner.mounts()
	mounts[commandMount] = map[string]interface{}{"kind": "collection", "uuid": cmdUUID}

	priority := runner.Priority
	if priority < 1 {
		priority = 500
	}
	rc := arvados.RuntimeConstraints{
		VCPUs:        runner.VCPUs,
		RAM:          runner.RAM,
		KeepCacheRAM: (1 << 27) * int64(runner.VCPUs),
	}
	var cr arvados.ContainerRequest
	err = runner.Client.RequestAndDecodeContext(ctx, &cr, "POST", "arvados/v1/container_requests", nil, map[string]interface{}{
		"container_request": map[string]interface{}{
			"owner_uuid":          runner.ProjectUUID,
			"name":                runner.Name,
			"container_image":     "sdpimpute-runtime",
			"command":             append([]string{commandMount + "/sdpimpute"}, runner.Args...),
			"mounts":              mounts,
			"use_existing":        true,
			"output_path":         outputMount,
			"runtime_constraints": rc,
			"priority":            priority,
			"state":               arvados.ContainerRequestStateCommitted,
			"environment": map[string]string{
				"GOMAXPROCS": fmt.Sprintf("%d", rc.VCPUs),
			},
			"container_count_max": 1,
		},
	})
	if err != nil {
		return "", err
	}
	log.Printf("container request UUID: %s", cr.UUID)

	err = runner.wait(ctx, &cr)
	if err != nil {
		return "", err
	}
	var c arvados.Container
	err = runner.Client.RequestAndDecode(&c, "GET", "arvados/v1/containers/"+cr.ContainerUUID, nil, nil)
	if err != nil {
		return "", err
	} else if c.State != arvados.ContainerStateComplete {
		return "", fmt.Errorf("container did not complete: %s", c.State)
	} else if c.ExitCode != 0 {
		return "", fmt.Errorf("container exited %d", c.ExitCode)
	}
	return cr.OutputUUID, nil
}

// wait polls cr until it is final, logging state changes and new
// stderr lines.
func (runner *arvadosContainerRunner) wait(ctx context.Context, cr *arvados.ContainerRequest) error {
	var logTell int64
	lastState := cr.State
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()
	for cr.State != arvados.ContainerRequestStateFinal {
		select {
		case <-ctx.Done():
			err := runner.Client.RequestAndDecode(cr, "PATCH", "arvados/v1/container_requests/"+cr.UUID, nil, map[string]interface{}{
				"container_request": map[string]interface{}{"priority": 0},
			})
			if err != nil {
				log.Errorf("error cancelling container request %s: %s", cr.UUID, err)
			}
			return ctx.Err()
		case <-ticker.C:
		}
		reqctx, cancel := context.WithTimeout(ctx, time.Minute)
		err := runner.Client.RequestAndDecodeContext(reqctx, cr, "GET", "arvados/v1/container_requests/"+cr.UUID, nil, nil)
		cancel()
		if err != nil {
			log.Printf("error getting container request: %s", err)
			continue
		}
		if lastState != cr.State {
			log.Printf("container request state: %s", cr.State)
			lastState = cr.State
		}
		if cr.ContainerUUID != "" {
			logTell = runner.copyLog(cr, logTell)
		}
	}
	return nil
}

// copyLog logs the complete lines of the container's stderr that
// appear after offset tell, and returns the new offset.
func (runner *arvadosContainerRunner) copyLog(cr *arvados.ContainerRequest, tell int64) int64 {
	req, err := http.NewRequest("GET", "https://"+runner.Client.APIHost+"/arvados/v1/container_requests/"+cr.UUID+"/log/"+cr.ContainerUUID+"/stderr.txt", nil)
	if err != nil {
		log.Errorf("error preparing log request: %s", err)
		return tell
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-", tell))
	resp, err := runner.Client.Do(req)
	if err != nil {
		log.Errorf("error getting log data: %s", err)
		return tell
	}
	defer resp.Body.Close()
	switch {
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusRequestedRangeNotSatisfiable:
		return tell
	case resp.StatusCode >= 300:
		log.Errorf("error getting log data: %s", resp.Status)
		return tell
	}
	logdata, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Errorf("error reading log data: %s", err)
		return tell
	}
	return tell + logLines(logdata, func(line string) { log.Print(line) })
}

// logLines calls emit for each non-empty complete line in data and
// returns the number of bytes consumed. A trailing partial line is
// left for the next call.
func logLines(data []byte, emit func(string)) int64 {
	var n int64
	for {
		eol := bytes.IndexByte(data, '\n')
		if eol < 0 {
			return n
		}
		if eol > 0 {
			emit(string(data[:eol]))
		}
		data = data[eol+1:]
		n += int64(eol + 1)
	}
}

var commandCollectionMtx sync.Mutex

// commandCollection returns the UUID of a collection in the project
// holding this executable, uploading it if no collection with the
// same name and blake2b hash exists yet.
func (runner *arvadosContainerRunner) commandCollection() (string, error) {
	commandCollectionMtx.Lock()
	defer commandCollectionMtx.Unlock()
	exe, err := ioutil.ReadFile("/proc/self/exe")
	if err != nil {
		return "", err
	}
	sum := fmt.Sprintf("%x", blake2b.Sum256(exe))
	name := "sdpimpute " + cmd.Version.String()
	var existing arvados.CollectionList
	err = runner.Client.RequestAndDecode(&existing, "GET", "arvados/v1/collections", nil, arvados.ListOptions{
		Limit: 1,
		Count: "none",
		Filters: []arvados.Filter{
			{Attr: "name", Operator: "=", Operand: name},
			{Attr: "owner_uuid", Operator: "=", Operand: runner.ProjectUUID},
			{Attr: "properties.blake2b", Operator: "=", Operand: sum},
		},
	})
	if err != nil {
		return "", err
	}
	if len(existing.Items) > 0 {
		log.Printf("using sdpimpute binary in existing collection %s", existing.Items[0].UUID)
		return existing.Items[0].UUID, nil
	}
	manifest, err := runner.manifestFor("sdpimpute", exe)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	err = runner.Client.RequestAndDecode(&coll, "POST", "arvados/v1/collections", nil, map[string]interface{}{
		"collection": map[string]interface{}{
			"owner_uuid":    runner.ProjectUUID,
			"manifest_text": manifest,
			"name":          name,
			"properties":    map[string]interface{}{"blake2b": sum},
		},
	})
	if err != nil {
		return "", err
	}
	log.Printf("stored sdpimpute binary in new collection %s", coll.UUID)
	return coll.UUID, nil
}

// manifestFor writes data to Keep as a single executable file and
// returns the manifest text of a collection containing it.
func (runner *arvadosContainerRunner) manifestFor(fnm string, data []byte) (string, error) {
	ac, err := arvadosclient.New(runner.Client)
	if err != nil {
		return "", err
	}
	var coll arvados.Collection
	fs, err := coll.FileSystem(runner.Client, keepclient.New(ac))
	if err != nil {
		return "", err
	}
	f, err := fs.OpenFile(fnm, os.O_CREATE|os.O_WRONLY, 0777)
	if err != nil {
		return "", err
	}
	_, err = f.Write(data)
	if err != nil {
		f.Close()
		return "", err
	}
	err = f.Close()
	if err != nil {
		return "", err
	}
	return fs.MarshalManifest(".")
}

// Copyright (C) The Lightning Authors. All rights reserved.
//
// SPDX-License-Identifier: AGPL-3.0

package sdpimpute

import (
	"os"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/arvados/sdpimpute/snpdata"
)

// Rows per record batch in the site table.
const siteTableChunkSize = 1 << 16

var siteTableSchema = arrow.NewSchema([]arrow.Field{
	{Name: "site", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "major", Type: arrow.BinaryTypes.String},
	{Name: "minor", Type: arrow.BinaryTypes.String},
	{Name: "pattern", Type: arrow.PrimitiveTypes.Uint32},
	{Name: "unknown", Type: arrow.PrimitiveTypes.Uint32},
}, nil)

// writeSiteTable writes one row per site (index, allele literals,
// pattern index, and number of unknown calls) to an Arrow IPC file.
func writeSiteTable(fnm string, m *snpdata.Matrix) error {
	f, err := os.Create(fnm)
	if err != nil {
		return err
	}
	defer f.Close()
	pool := memory.NewGoAllocator()
	writer, err := ipc.NewFileWriter(f, ipc.WithSchema(siteTableSchema), ipc.WithAllocator(pool))
	if err != nil {
		return err
	}
	var (
		site    = array.NewUint32Builder(pool)
		major   = array.NewStringBuilder(pool)
		minor   = array.NewStringBuilder(pool)
		pattern = array.NewUint32Builder(pool)
		unknown = array.NewUint32Builder(pool)
	)
	defer site.Release()
	defer major.Release()
	defer minor.Release()
	defer pattern.Release()
	defer unknown.Release()
	builders := []array.Builder{site, major, minor, pattern, unknown}

	flush := func(rows int) error {
		cols := make([]arrow.Array, len(builders))
		for i, b := range builders {
			cols[i] = b.NewArray()
			defer cols[i].Release()
		}
		record := array.NewRecord(siteTableSchema, cols, int64(rows))
		defer record.Release()
		return writer.Write(record)
	}
	rows := 0
	for i := 0; i < m.Sites(); i++ {
		alleles := m.Alleles(i)
		site.Append(uint32(i))
		major.Append(string([]byte{alleles.Major}))
		minor.Append(string([]byte{alleles.Minor}))
		pattern.Append(uint32(m.PatternID(i)))
		unknown.Append(uint32(m.Count(i, snpdata.Unknown)))
		rows++
		if rows == siteTableChunkSize {
			if err := flush(rows); err != nil {
				return err
			}
			rows = 0
		}
	}
	if rows > 0 {
		if err := flush(rows); err != nil {
			return err
		}
	}
	err = writer.Close()
	if err != nil {
		return err
	}
	return f.Close()
}

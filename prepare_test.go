package sdpimpute

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"
	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type prepareSuite struct{}

var _ = check.Suite(&prepareSuite{})

func (s *prepareSuite) TestPrepare(c *check.C) {
	tmpdir := c.MkDir()
	var stdout bytes.Buffer
	exited := (&prepare{}).RunCommand("prepare", []string{
		"-local=true",
		"-threads", "2",
		"-vectors-npy", tmpdir + "/vectors.npy",
		"-sites-arrow", tmpdir + "/sites.arrow",
	}, strings.NewReader(testMatrix), &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)

	var stats prepareStats
	err := json.Unmarshal(stdout.Bytes(), &stats)
	c.Assert(err, check.IsNil)
	c.Check(stats.Samples, check.Equals, 3)
	c.Check(stats.Sites, check.Equals, 5)
	c.Check(stats.Patterns, check.Equals, 5)
	c.Check(stats.UnknownCalls, check.Equals, 3)
	c.Check(stats.MinorAlleleFrequencyMean > 0.266 && stats.MinorAlleleFrequencyMean < 0.267, check.Equals, true, check.Commentf("%v", stats.MinorAlleleFrequencyMean))
	c.Check(stats.VectorDigest, check.HasLen, 64)

	f, err := os.Open(tmpdir + "/vectors.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{5, 3})
	vectors, err := npy.GetUint16()
	c.Assert(err, check.IsNil)
	c.Check(vectors, check.DeepEquals, []uint16{
		0, 2, 2,
		1, 0, 1,
		1, 2, 1,
		2, 1, 1,
		0, 0, 0,
	})

	af, err := os.Open(tmpdir + "/sites.arrow")
	c.Assert(err, check.IsNil)
	defer af.Close()
	rdr, err := ipc.NewFileReader(af, ipc.WithAllocator(memory.NewGoAllocator()))
	c.Assert(err, check.IsNil)
	defer rdr.Close()
	c.Assert(rdr.NumRecords(), check.Equals, 1)
	rec, err := rdr.Record(0)
	c.Assert(err, check.IsNil)
	c.Check(rec.NumRows(), check.Equals, int64(5))
	major := rec.Column(1).(*array.String)
	minor := rec.Column(2).(*array.String)
	c.Check(major.Value(2), check.Equals, "G")
	c.Check(minor.Value(2), check.Equals, "T")
	c.Check(major.Value(4), check.Equals, "G")
	c.Check(minor.Value(4), check.Equals, "A")
	c.Check(rec.Column(3).(*array.Uint32).Uint32Values(), check.DeepEquals, []uint32{0, 1, 2, 3, 4})
	c.Check(rec.Column(4).(*array.Uint32).Uint32Values(), check.DeepEquals, []uint32{0, 1, 1, 1, 0})
}

func (s *prepareSuite) TestDigestDependsOnPatternsOnly(c *check.C) {
	digest := func(input string) string {
		var stdout bytes.Buffer
		exited := (&prepare{}).RunCommand("prepare", []string{"-local=true"}, strings.NewReader(input), &stdout, os.Stderr)
		c.Assert(exited, check.Equals, 0)
		var stats prepareStats
		c.Assert(json.Unmarshal(stdout.Bytes(), &stats), check.IsNil)
		return stats.VectorDigest
	}
	// Same major/minor layout, different alleles.
	c.Check(digest("A,A,G\nC,?,C\n"), check.Equals, digest("T,T,C\ng,?,g\n"))
	c.Check(digest("A,A,G\n"), check.Not(check.Equals), digest("A,G,G\n"))
}

func (s *prepareSuite) TestGzipOutput(c *check.C) {
	tmpdir := c.MkDir()
	exited := (&prepare{}).RunCommand("prepare", []string{"-local=true", "-o", tmpdir + "/stats.json.gz"}, strings.NewReader(testMatrix), &bytes.Buffer{}, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	f, err := zopen(tmpdir + "/stats.json.gz")
	c.Assert(err, check.IsNil)
	defer f.Close()
	var stats prepareStats
	c.Assert(json.NewDecoder(f).Decode(&stats), check.IsNil)
	c.Check(stats.Sites, check.Equals, 5)
}

func (s *prepareSuite) TestFormatError(c *check.C) {
	var stderr bytes.Buffer
	exited := (&prepare{}).RunCommand("prepare", []string{"-local=true"}, strings.NewReader("A,A,G\nC,-,C\n"), &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms).*site 1: invalid allele '-' at sample 1.*`)

	stderr.Reset()
	exited = (&prepare{}).RunCommand("prepare", []string{"-local=true"}, strings.NewReader("A,A,G\nC,C\n"), &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms).*site 1: inconsistent number of samples: got 2, expected 3.*`)
}

func (s *prepareSuite) TestBinaryOutputsNeedFiles(c *check.C) {
	for _, flag := range []string{"-vectors-npy", "-sites-arrow"} {
		var stderr bytes.Buffer
		exited := (&prepare{}).RunCommand("prepare", []string{"-local=true", flag, "-"}, strings.NewReader(testMatrix), &bytes.Buffer{}, &stderr)
		c.Check(exited, check.Equals, 2, check.Commentf("%s", flag))
		c.Check(stderr.String(), check.Matches, `cannot write `+flag+` to stdout\n`)
	}
	_, err := os.Stat("-")
	c.Check(os.IsNotExist(err), check.Equals, true)
}

func (s *prepareSuite) TestUsage(c *check.C) {
	exited := (&prepare{}).RunCommand("prepare", []string{"-local=true", "extra"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(exited, check.Equals, 2)
	exited = (&prepare{}).RunCommand("prepare", []string{"-no-such-flag"}, strings.NewReader(""), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(exited, check.Equals, 2)
}

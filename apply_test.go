package sdpimpute

import (
	"bytes"
	"io/ioutil"
	"os"
	"strings"

	"gopkg.in/check.v1"
)

type applySuite struct{}

var _ = check.Suite(&applySuite{})

func (s *applySuite) TestApply(c *check.C) {
	tmpdir := c.MkDir()
	err := ioutil.WriteFile(tmpdir+"/changes.csv", []byte("# site,sample,value\n1,1,0\n2,1,1\n3,2,MAJ\n"), 0644)
	c.Assert(err, check.IsNil)
	var stdout bytes.Buffer
	exited := (&applyChanges{}).RunCommand("apply", []string{"-local=true", "-changes", tmpdir + "/changes.csv"}, strings.NewReader(testMatrix), &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "A,A,G\nC,c,C\nT,t,G\nA,C,a\nG,G,G\n")
}

func (s *applySuite) TestGzip(c *check.C) {
	tmpdir := c.MkDir()
	err := ioutil.WriteFile(tmpdir+"/in.csv", []byte(testMatrix), 0644)
	c.Assert(err, check.IsNil)
	w, err := zcreate(tmpdir+"/changes.csv.gz", nil)
	c.Assert(err, check.IsNil)
	_, err = w.Write([]byte("1\t1\tMIN\n"))
	c.Assert(err, check.IsNil)
	c.Assert(w.Close(), check.IsNil)

	exited := (&applyChanges{}).RunCommand("apply", []string{"-local=true", "-i", tmpdir + "/in.csv", "-changes", tmpdir + "/changes.csv.gz", "-o", tmpdir + "/out.csv.gz"}, bytes.NewReader(nil), &bytes.Buffer{}, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	f, err := zopen(tmpdir + "/out.csv.gz")
	c.Assert(err, check.IsNil)
	defer f.Close()
	out, err := ioutil.ReadAll(f)
	c.Assert(err, check.IsNil)
	c.Check(string(out), check.Equals, "A,A,G\nC,a,C\nT,?,G\nA,C,?\nG,G,G\n")
}

func (s *applySuite) TestInvalidValueLeavesCall(c *check.C) {
	tmpdir := c.MkDir()
	err := ioutil.WriteFile(tmpdir+"/changes.csv", []byte("0,0,X\n1,1,MAJ\n"), 0644)
	c.Assert(err, check.IsNil)
	var stdout bytes.Buffer
	exited := (&applyChanges{}).RunCommand("apply", []string{"-local=true", "-changes", tmpdir + "/changes.csv"}, strings.NewReader(testMatrix), &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "A,A,G\nC,c,C\nT,?,G\nA,C,?\nG,G,G\n")
}

func (s *applySuite) TestOutOfRange(c *check.C) {
	tmpdir := c.MkDir()
	err := ioutil.WriteFile(tmpdir+"/changes.csv", []byte("5,0,0\n"), 0644)
	c.Assert(err, check.IsNil)
	var stderr bytes.Buffer
	exited := (&applyChanges{}).RunCommand("apply", []string{"-local=true", "-changes", tmpdir + "/changes.csv"}, strings.NewReader(testMatrix), &bytes.Buffer{}, &stderr)
	c.Check(exited, check.Equals, 1)
	c.Check(stderr.String(), check.Matches, `(?ms).*outside the 5×3 matrix.*`)
}

func (s *applySuite) TestMissingChanges(c *check.C) {
	exited := (&applyChanges{}).RunCommand("apply", []string{"-local=true"}, strings.NewReader(testMatrix), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(exited, check.Equals, 2)
}

package sdpimpute

import (
	"bytes"
	"os"
	"strings"

	"github.com/kshedden/gonpy"
	"gopkg.in/check.v1"
)

type distancesSuite struct{}

var _ = check.Suite(&distancesSuite{})

func (s *distancesSuite) TestTSV(c *check.C) {
	var stdout bytes.Buffer
	exited := (&distances{}).RunCommand("distances", []string{"-local=true", "-site", "3"}, strings.NewReader(testMatrix), &stdout, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	c.Check(stdout.String(), check.Equals, "-\t2\t1\n2\t-\t1\n1\t1\t-\n")
}

func (s *distancesSuite) TestNpy(c *check.C) {
	tmpdir := c.MkDir()
	exited := (&distances{}).RunCommand("distances", []string{"-local=true", "-site", "0", "-output-format", "npy", "-o", tmpdir + "/d.npy"}, strings.NewReader(testMatrix), &bytes.Buffer{}, os.Stderr)
	c.Assert(exited, check.Equals, 0)
	f, err := os.Open(tmpdir + "/d.npy")
	c.Assert(err, check.IsNil)
	defer f.Close()
	npy, err := gonpy.NewReader(f)
	c.Assert(err, check.IsNil)
	c.Check(npy.Shape, check.DeepEquals, []int{3, 3})
	data, err := npy.GetUint16()
	c.Assert(err, check.IsNil)
	c.Check(data, check.DeepEquals, []uint16{
		65535, 0, 2,
		0, 65535, 2,
		2, 2, 65535,
	})
}

func (s *distancesSuite) TestBadArgs(c *check.C) {
	for _, args := range [][]string{
		{"-local=true", "-site", "5"},
		{"-local=true", "-site", "-1"},
	} {
		var stderr bytes.Buffer
		exited := (&distances{}).RunCommand("distances", args, strings.NewReader(testMatrix), &bytes.Buffer{}, &stderr)
		c.Check(exited, check.Equals, 1, check.Commentf("%v", args))
		c.Check(stderr.String(), check.Matches, `(?ms).*out of range.*`)
	}
	exited := (&distances{}).RunCommand("distances", []string{"-local=true", "-output-format", "csv"}, strings.NewReader(testMatrix), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(exited, check.Equals, 2)
	exited = (&distances{}).RunCommand("distances", []string{"-local=true", "-output-format", "npy"}, strings.NewReader(testMatrix), &bytes.Buffer{}, &bytes.Buffer{})
	c.Check(exited, check.Equals, 2)
}

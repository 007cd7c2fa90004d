package sdpimpute

import (
	"gopkg.in/check.v1"
)

type runnerSuite struct{}

var _ = check.Suite(&runnerSuite{})

func (s *runnerSuite) TestTranslatePaths(c *check.C) {
	var runner arvadosContainerRunner
	uuidPath := "/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa/matrix.csv.gz"
	pdhPath := "0123456789abcdef0123456789abcdef+123/changes.csv"
	stdin := "-"
	empty := ""
	err := runner.TranslatePaths(&uuidPath, &pdhPath, &stdin, &empty)
	c.Assert(err, check.IsNil)
	c.Check(uuidPath, check.Equals, "/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa/matrix.csv.gz")
	c.Check(pdhPath, check.Equals, "/mnt/0123456789abcdef0123456789abcdef+123/changes.csv")
	c.Check(stdin, check.Equals, "-")
	c.Check(empty, check.Equals, "")

	mounts := runner.mounts()
	c.Check(mounts, check.HasLen, 3)
	c.Check(mounts[outputMount]["writable"], check.Equals, true)
	c.Check(mounts["/mnt/zzzzz-4zz18-aaaaaaaaaaaaaaa"]["uuid"], check.Equals, "zzzzz-4zz18-aaaaaaaaaaaaaaa")
	c.Check(mounts["/mnt/0123456789abcdef0123456789abcdef+123"]["portable_data_hash"], check.Equals, "0123456789abcdef0123456789abcdef+123")

	local := "/tmp/matrix.csv"
	err = runner.TranslatePaths(&local)
	c.Check(err, check.ErrorMatches, `cannot find collection .* in path: "/tmp/matrix.csv"`)
}

func (s *runnerSuite) TestRunNeedsProject(c *check.C) {
	_, err := (&arvadosContainerRunner{}).Run()
	c.Check(err, check.ErrorMatches, `.*ProjectUUID not provided`)
}

func (s *runnerSuite) TestLogLines(c *check.C) {
	var lines []string
	emit := func(line string) { lines = append(lines, line) }
	n := logLines([]byte("first\n\nsecond\npart"), emit)
	c.Check(n, check.Equals, int64(len("first\n\nsecond\n")))
	c.Check(lines, check.DeepEquals, []string{"first", "second"})
	c.Check(logLines([]byte("part"), emit), check.Equals, int64(0))
}

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/stretchr/testify/suite"
)

type SessionTestSuite struct {
	suite.Suite
	base string
	now  time.Time
}

func TestSessionSuite(t *testing.T) {
	suite.Run(t, new(SessionTestSuite))
}

func (s *SessionTestSuite) SetupTest() {
	s.base = s.T().TempDir()
	s.now = time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)
}

func (s *SessionTestSuite) TestFirstRun() {
	sess, err := Open(s.base, s.now, logger.NewNop())
	s.Require().NoError(err)

	s.Equal("run_1", sess.RunID)
	s.Equal(1, sess.RunNumber)
	s.Equal(s.now, sess.StartedAt)
	s.Equal(filepath.Join(s.base, "2024-03-15", "run_1"), sess.Dir)
	s.DirExists(sess.Dir)
	s.Equal(filepath.Join(sess.Dir, "stats.yaml"), sess.Path("stats.yaml"))
}

func (s *SessionTestSuite) TestNextRunFollowsHighestExisting() {
	for _, name := range []string{"run_1", "run_3", "run_10", "notes", "run_x"} {
		s.Require().NoError(os.MkdirAll(filepath.Join(s.base, "2024-03-15", name), 0o755))
	}

	s.Require().NoError(os.WriteFile(filepath.Join(s.base, "2024-03-15", "run_20"), []byte("file"), 0o600))

	sess, err := Open(s.base, s.now, logger.NewNop())
	s.Require().NoError(err)
	s.Equal("run_11", sess.RunID)
}

func (s *SessionTestSuite) TestRunsAreScopedPerDay() {
	_, err := Open(s.base, s.now, logger.NewNop())
	s.Require().NoError(err)

	_, err = Open(s.base, s.now, logger.NewNop())
	s.Require().NoError(err)

	next, err := Open(s.base, s.now.Add(24*time.Hour), logger.NewNop())
	s.Require().NoError(err)
	s.Equal("run_1", next.RunID)

	runs, err := Runs(s.base, "2024-03-15")
	s.Require().NoError(err)
	s.Equal([]string{"run_1", "run_2"}, runs)

	runs, err = Runs(s.base, "2024-01-01")
	s.Require().NoError(err)
	s.Empty(runs)
}

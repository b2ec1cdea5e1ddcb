// Package session allocates the per-run output folder of the engine.
package session

import (
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/rxtech-lab/argo-alpaca/internal/logger"
	"github.com/rxtech-lab/argo-alpaca/pkg/errors"
	"go.uber.org/zap"
)

const dateLayout = "2006-01-02"

var runDirPattern = regexp.MustCompile(`^run_(\d+)$`)

// Session is one engine run. Its folder is laid out as
//
//	{base}/{YYYY-MM-DD}/run_N/
//
// where N is one more than the highest run already present for the day.
type Session struct {
	RunID     string
	RunNumber int
	StartedAt time.Time
	Dir       string
}

// Open creates the folder of the next run under base.
func Open(base string, now time.Time, log *logger.Logger) (*Session, error) {
	date := now.Format(dateLayout)

	next, err := nextRunNumber(filepath.Join(base, date))
	if err != nil {
		return nil, err
	}

	s := &Session{
		RunID:     "run_" + strconv.Itoa(next),
		RunNumber: next,
		StartedAt: now,
		Dir:       "",
	}
	s.Dir = filepath.Join(base, date, s.RunID)

	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to create session folder %s", s.Dir)
	}

	log.Info("session opened",
		zap.String("run_id", s.RunID),
		zap.String("dir", s.Dir),
	)

	return s, nil
}

// Path returns the location of name inside the run folder.
func (s *Session) Path(name string) string {
	return filepath.Join(s.Dir, name)
}

// Runs lists the run ids recorded under base for date, in run order.
func Runs(base string, date string) ([]string, error) {
	numbers, err := runNumbers(filepath.Join(base, date))
	if err != nil {
		return nil, err
	}

	runs := make([]string, 0, len(numbers))
	for _, n := range numbers {
		runs = append(runs, "run_"+strconv.Itoa(n))
	}

	return runs, nil
}

func nextRunNumber(dateDir string) (int, error) {
	numbers, err := runNumbers(dateDir)
	if err != nil {
		return 0, err
	}

	if len(numbers) == 0 {
		return 1, nil
	}

	return numbers[len(numbers)-1] + 1, nil
}

// runNumbers returns the run numbers found in dateDir in ascending order.
func runNumbers(dateDir string) ([]int, error) {
	entries, err := os.ReadDir(dateDir)
	if os.IsNotExist(err) {
		return nil, nil
	}

	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read session folder %s", dateDir)
	}

	var numbers []int

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}

		m := runDirPattern.FindStringSubmatch(entry.Name())
		if m == nil {
			continue
		}

		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}

		numbers = append(numbers, n)
	}

	sort.Ints(numbers)

	return numbers, nil
}

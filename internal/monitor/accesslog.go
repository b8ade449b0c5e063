package monitor

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// accessLogBytes sums the response-size column of the tenant's access
// logs for the current billing period. Logs rotate monthly into
// logs/access-YYYY-MM.log inside the workspace, so the period total is
// the sum over the one file that covers it. A missing file means no
// traffic yet.
func accessLogBytes(workspace string, periodStart time.Time) (int64, error) {
	name := fmt.Sprintf("access-%04d-%02d.log", periodStart.Year(), periodStart.Month())
	path := filepath.Join(workspace, "logs", name)

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	return sumBytesColumn(f)
}

// sumBytesColumn totals the size field of combined-format log lines.
// The size is the tenth whitespace-separated field; "-" and malformed
// lines contribute zero, matching how log analyzers treat them.
func sumBytesColumn(f *os.File) (int64, error) {
	var total int64

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 10 {
			continue
		}
		n, err := strconv.ParseInt(fields[9], 10, 64)
		if err != nil {
			continue
		}
		total += n
	}
	return total, scanner.Err()
}

package trace

import (
	"bufio"
	"io"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// traceLine matches one strace file-syscall line: pid, syscall name, raw
// argument list, and a numeric result. Lines for unfinished/resumed calls
// or signal deliveries do not match and are skipped.
var traceLine = regexp.MustCompile(`^\d+\s+(\w+)\(([^)]*)\)\s*=\s*-?\d+`)

// pathArgIndex maps each interesting file syscall to the position of its
// path argument.
var pathArgIndex = map[string]int{
	"access":   0,
	"execve":   0,
	"getcwd":   0,
	"lstat":    0,
	"mkdir":    0,
	"open":     0,
	"openat":   1,
	"readlink": 0,
	"rename":   0,
	"stat":     0,
	"unlink":   0,
}

// writeSyscalls always indicate modification of the named path.
var writeSyscalls = map[string]bool{
	"mkdir":  true,
	"rename": true,
	"unlink": true,
}

// parseTrace extracts the accessed paths from an strace log. Relative paths
// are resolved against dir. Paths appear in the read set unless the syscall
// (or the open flags) indicates modification. Both result sets are sorted
// and duplicate-free.
func parseTrace(r io.Reader, dir string) (reads, writes []string, err error) {
	readSet := make(map[string]struct{})
	writeSet := make(map[string]struct{})

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		m := traceLine.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		syscall, rawArgs := m[1], m[2]
		idx, ok := pathArgIndex[syscall]
		if !ok {
			continue
		}
		args := strings.Split(rawArgs, ", ")
		if idx >= len(args) {
			continue
		}
		path := strings.Trim(args[idx], `"`)
		if path == "" {
			continue
		}
		// strace -y annotates descriptors as "3</some/path>"; strip the
		// descriptor prefix when present.
		if i := strings.IndexByte(path, '<'); i >= 0 && strings.HasSuffix(path, ">") {
			path = path[i+1 : len(path)-1]
		}
		if !filepath.IsAbs(path) {
			path = filepath.Join(dir, path)
		}
		path = filepath.Clean(path)

		if isWrite(syscall, args, idx) {
			writeSet[path] = struct{}{}
		} else {
			readSet[path] = struct{}{}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return sortedKeys(readSet), sortedKeys(writeSet), nil
}

// isWrite classifies an access: mkdir/rename/unlink always write; open and
// openat write when their flag argument requests write access or creation.
func isWrite(syscall string, args []string, pathIdx int) bool {
	if writeSyscalls[syscall] {
		return true
	}
	if syscall != "open" && syscall != "openat" {
		return false
	}
	if pathIdx+1 >= len(args) {
		return false
	}
	flags := args[pathIdx+1]
	return strings.Contains(flags, "O_WRONLY") ||
		strings.Contains(flags, "O_RDWR") ||
		strings.Contains(flags, "O_CREAT")
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

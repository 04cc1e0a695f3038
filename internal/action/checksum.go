package action

import (
	"encoding/hex"
	"io"
	"os"

	"github.com/zeebo/blake3"
)

// checksumFile computes the BLAKE3 digest of the file's contents. A file
// that cannot be opened or read hashes to an empty (non-nil) digest: the
// "observed missing" marker, distinct from the nil "never observed" state.
func checksumFile(path string) []byte {
	f, err := os.Open(path)
	if err != nil {
		return []byte{}
	}
	defer f.Close()

	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return []byte{}
	}
	return h.Sum(nil)
}

// shortChecksum renders a digest for log lines: first and last four hex
// characters of the digest, or "missing" for the empty marker.
func shortChecksum(sum []byte) string {
	if len(sum) == 0 {
		return "missing"
	}
	s := hex.EncodeToString(sum)
	if len(s) > 9 {
		return s[:4] + "." + s[len(s)-4:]
	}
	return s
}

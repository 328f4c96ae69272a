// Package identity generates short, prefixed, cryptographically random IDs
// for worktrees and agents. Session names are derived separately, from the
// repository name (see internal/cli's "ppg init"), since a human has to
// type them into `tmux attach`.
package identity

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Prefixes used across the manifest.
const (
	WorktreePrefix = "wt-"
	AgentPrefix    = "ag-"
)

const suffixLen = 8

var base36Alphabet = []byte("0123456789abcdefghijklmnopqrstuvwxyz")

// New returns a new ID of the form "<prefix><8-char lowercase base-36 suffix>".
// The suffix's entropy comes directly from uuid.New() (a version-4 UUID,
// 122 of whose 128 bits are random),
// the same generator the teacher uses as its session-ID source, reduced
// here to ppg's shorter, more typeable base-36 suffix form instead of a
// full UUID string.
func New(prefix string) string {
	return prefix + randomSuffix()
}

// Worktree returns a new worktree ID ("wt-xxxxxxxx").
func Worktree() string { return New(WorktreePrefix) }

// Agent returns a new agent ID ("ag-xxxxxxxx").
func Agent() string { return New(AgentPrefix) }

func randomSuffix() string {
	id := uuid.New()
	n := new(big.Int).SetBytes(id[:])
	base := big.NewInt(int64(len(base36Alphabet)))
	mod := new(big.Int)

	buf := make([]byte, suffixLen)
	for i := suffixLen - 1; i >= 0; i-- {
		n.DivMod(n, base, mod)
		buf[i] = base36Alphabet[mod.Int64()]
	}
	return string(buf)
}

// Valid reports whether id has the given prefix followed by exactly
// suffixLen lowercase base-36 characters.
func Valid(id, prefix string) bool {
	if len(id) != len(prefix)+suffixLen || id[:len(prefix)] != prefix {
		return false
	}
	for _, c := range id[len(prefix):] {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'z')) {
			return false
		}
	}
	return true
}

// String is a helper for error messages and debug formatting.
func String(prefix, suffix string) string {
	return fmt.Sprintf("%s%s", prefix, suffix)
}

// Package taggederr implements the error taxonomy §7 describes: every
// error surfaced to a CLI caller carries a Kind, mapped to both a process
// exit code and a stable JSON error code.
package taggederr

import (
	"errors"
	"fmt"

	"github.com/xcawolfe-amzn/ppg/internal/auth"
	"github.com/xcawolfe-amzn/ppg/internal/gitutil"
	"github.com/xcawolfe-amzn/ppg/internal/manifest"
	"github.com/xcawolfe-amzn/ppg/internal/worktree"
)

// Kind is one of the taxonomy entries from §7.
type Kind string

const (
	KindNotInitialized   Kind = "NotInitialized"
	KindNotGitRepo       Kind = "NotGitRepo"
	KindManifestLock     Kind = "ManifestLock"
	KindAgentNotFound    Kind = "AgentNotFound"
	KindWorktreeNotFound Kind = "WorktreeNotFound"
	KindPromptNotFound   Kind = "PromptNotFound"
	KindAgentsRunning    Kind = "AgentsRunning"
	KindMergeFailed      Kind = "MergeFailed"
	KindInvalidArgs      Kind = "InvalidArgs"
	KindDuplicateToken   Kind = "DuplicateToken"
	KindAuthCorrupt      Kind = "AuthCorrupt"
	KindPmNotFound       Kind = "PmNotFound"
	KindNoSessionID      Kind = "NoSessionId"
	// KindUnknown is the fallback for an error Classify doesn't recognize.
	KindUnknown Kind = "Unknown"
)

// TaggedError pairs an underlying error with its taxonomy Kind.
type TaggedError struct {
	Kind Kind
	Err  error
}

func (e *TaggedError) Error() string { return e.Err.Error() }
func (e *TaggedError) Unwrap() error { return e.Err }

// New builds a TaggedError from a message, for kinds with no existing
// lower-level sentinel to wrap (e.g. a CLI-level argument validation
// failure).
func New(kind Kind, format string, args ...interface{}) *TaggedError {
	return &TaggedError{Kind: kind, Err: fmt.Errorf(format, args...)}
}

// Wrap tags an existing error with kind. Returns nil if err is nil.
func Wrap(kind Kind, err error) *TaggedError {
	if err == nil {
		return nil
	}
	return &TaggedError{Kind: kind, Err: err}
}

// Classify walks the known lower-package sentinel errors via errors.Is and
// returns the matching Kind. If err is already a *TaggedError, its Kind is
// returned as-is. Unrecognized errors classify as KindUnknown.
func Classify(err error) Kind {
	if err == nil {
		return ""
	}
	var tagged *TaggedError
	if errors.As(err, &tagged) {
		return tagged.Kind
	}

	switch {
	case errors.Is(err, manifest.ErrNotInitialized):
		return KindNotInitialized
	case errors.Is(err, manifest.ErrManifestLock):
		return KindManifestLock
	case errors.Is(err, gitutil.ErrNotARepo):
		return KindNotGitRepo
	case errors.Is(err, worktree.ErrAgentsRunning):
		return KindAgentsRunning
	case errors.Is(err, worktree.ErrMergeFailed):
		return KindMergeFailed
	case errors.Is(err, auth.ErrDuplicateToken):
		return KindDuplicateToken
	case errors.Is(err, auth.ErrAuthCorrupt):
		return KindAuthCorrupt
	default:
		return KindUnknown
	}
}

// exitCodes maps each Kind to the process exit code Execute() returns.
// 0 is reserved for success and never appears here.
var exitCodes = map[Kind]int{
	KindNotInitialized:   10,
	KindNotGitRepo:       11,
	KindManifestLock:     12,
	KindAgentNotFound:    13,
	KindWorktreeNotFound: 14,
	KindPromptNotFound:   15,
	KindAgentsRunning:    16,
	KindMergeFailed:      17,
	KindInvalidArgs:      18,
	KindDuplicateToken:   19,
	KindAuthCorrupt:      20,
	KindPmNotFound:       21,
	KindNoSessionID:      22,
	KindUnknown:          1,
}

// ExitCode returns err's mapped process exit code, classifying it first if
// it isn't already a *TaggedError.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	return exitCodes[Classify(err)]
}

// JSONError is the --json error payload shape: {ok:false, code, message}.
type JSONError struct {
	OK      bool   `json:"ok"`
	Code    Kind   `json:"code"`
	Message string `json:"message"`
}

// AsJSON builds the --json payload for err.
func AsJSON(err error) JSONError {
	return JSONError{OK: false, Code: Classify(err), Message: err.Error()}
}

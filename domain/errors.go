package domain

import "errors"

// Error taxonomy for the retrieval pipeline. Callers match with errors.Is;
// implementations wrap these sentinels with fmt.Errorf("%w: ...").
var (
	// ErrUnreadableSource marks a file whose content cannot be decoded as
	// text (e.g., binary content). Recovered locally during a build: the
	// file is skipped and the build continues.
	ErrUnreadableSource = errors.New("source is not readable text")

	// ErrEmbeddingUnavailable marks a failed embedding computation
	// (service error, timeout, input exceeding the model limit).
	ErrEmbeddingUnavailable = errors.New("embedding unavailable")

	// ErrIndexBuildFailed marks a build that was aborted; no partial index
	// is ever committed.
	ErrIndexBuildFailed = errors.New("index build failed")

	// ErrUnsupportedIndexVersion marks a persisted index artifact with an
	// unrecognized format version; the index must be rebuilt.
	ErrUnsupportedIndexVersion = errors.New("unsupported index version")

	// ErrSynthesisFailed marks a failed answer-synthesis call. Surfaced to
	// the caller verbatim, no automatic retry.
	ErrSynthesisFailed = errors.New("answer synthesis failed")
)

// Package oracles implements the independent, possibly-unreliable sources of
// information about a package's publish state.
package oracles

import (
	"context"
	"fmt"
	"time"

	"github.com/sentinelstack/pkg-sentinel/internal/models"
	"github.com/sentinelstack/pkg-sentinel/internal/utils"
)

// Oracle names. The fusion engine keys its override logic on the policy
// oracle, so names are fixed constants rather than free-form strings.
const (
	NameRegistry     = "registry"
	NamePolicy       = "version-policy"
	NameSourceHist   = "source-history"
	NameArtifact     = "build-artifact"
	NameLocalState   = "local-state"
	NameCachedResult = "cached-result"
	NameSemver       = "semver-syntax"
)

// Oracle answers one question: what does this source believe about the
// candidate release? Implementations may return an error; Execute converts
// errors and panics into the uniform failure placeholder, so an oracle never
// propagates a failure past its boundary.
type Oracle interface {
	Name() string
	Analyze(ctx context.Context, req models.AnalyzeRequest) (models.OracleResult, error)
}

// Execute runs one oracle under a bounded timeout, converting any error or
// panic into a non-fatal unknown result. It always stamps OracleName,
// ResponseTime, and clamps Confidence to [0,1].
func Execute(ctx context.Context, o Oracle, req models.AnalyzeRequest, timeout time.Duration) models.OracleResult {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result, err := runGuarded(ctx, o, req)
	result.OracleName = o.Name()
	result.ResponseTime = time.Since(start)

	if err != nil {
		return failedResult(o.Name(), err, result.ResponseTime)
	}
	result.Succeeded = true
	if result.State == "" {
		result.State = models.StateUnknown
	}
	result.Confidence = utils.Clamp01(result.Confidence)
	return result
}

func runGuarded(ctx context.Context, o Oracle, req models.AnalyzeRequest) (result models.OracleResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("oracle panic: %v", r)
		}
	}()

	type answer struct {
		result models.OracleResult
		err    error
	}
	done := make(chan answer, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- answer{err: fmt.Errorf("oracle panic: %v", r)}
			}
		}()
		res, e := o.Analyze(ctx, req)
		done <- answer{result: res, err: e}
	}()

	select {
	case <-ctx.Done():
		return models.OracleResult{}, ctx.Err()
	case a := <-done:
		return a.result, a.err
	}
}

func failedResult(name string, err error, elapsed time.Duration) models.OracleResult {
	return models.OracleResult{
		OracleName:   name,
		Succeeded:    false,
		State:        models.StateUnknown,
		Confidence:   0.1,
		ResponseTime: elapsed,
		Err:          err.Error(),
	}
}

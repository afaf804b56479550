// cleo - media ingestion engine
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package dedupe detects duplicate media: a hash prefilter against the
// catalog followed by rotation-invariant MSE confirmation for images, and
// exact-hash comparison for movies.
package dedupe

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/chrisorr0264/cleo2/internal/fingerprint"
	"github.com/chrisorr0264/cleo2/internal/models"
)

const (
	tensorWidth  = 50
	tensorHeight = 50
	tensorBytes  = tensorWidth * tensorHeight * 3
)

// CandidateFetcher is the subset of the catalog gateway the matcher needs;
// satisfied by *catalog.DB.
type CandidateFetcher interface {
	FetchTensorCandidatesByHash(ctx context.Context, hashPIL, hashCV2 string) ([]models.ImageTensor, error)
	FetchMovieCandidatesByHash(ctx context.Context, mediaHash string) ([]models.MovieHash, error)
}

// Matcher confirms duplicates against catalog candidates using a bounded
// fan-out pool.
type Matcher struct {
	catalog  CandidateFetcher
	poolSize int
	mseMax   float64
}

// New builds a Matcher. poolSize bounds the concurrent MSE comparisons
// per incoming image; mseMax is the configured MSE_THRESHOLD.
func New(catalog CandidateFetcher, poolSize int, mseMax float64) *Matcher {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Matcher{catalog: catalog, poolSize: poolSize, mseMax: mseMax}
}

// MatchImage prefilters candidates by hash equality, then confirms each
// under rotation-invariant MSE. It returns the best (lowest-MSE) match, if
// any duplicate was found at or below the threshold.
func (m *Matcher) MatchImage(ctx context.Context, tensors *fingerprint.Tensors) (*models.DuplicateMatch, error) {
	candidates, err := m.catalog.FetchTensorCandidatesByHash(ctx, tensors.HashPIL, tensors.HashCV2)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	type result struct {
		match *models.DuplicateMatch
	}
	results := make([]result, len(candidates))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.poolSize)

	for i, cand := range candidates {
		i, cand := i, cand
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			if match, ok := confirmCandidate(tensors.TensorPIL, tensors.TensorCV2, &cand, m.mseMax); ok {
				results[i] = result{match: match}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var best *models.DuplicateMatch
	for _, r := range results {
		if r.match == nil {
			continue
		}
		if best == nil || r.match.MinMSE < best.MinMSE {
			best = r.match
		}
	}
	return best, nil
}

// confirmCandidate compares the incoming tensors against one stored
// candidate and returns the lowest rotation MSE found if it is at or below
// mseMax. Tensors are only ever compared within a decoder (A against A, B
// against B): the two decoders disagree by a pixel or two, so a
// cross-decoder comparison would inflate the MSE floor.
func confirmCandidate(incomingPIL, incomingCV2 []byte, cand *models.ImageTensor, mseMax float64) (*models.DuplicateMatch, bool) {
	best := -1.0
	found := false

	if mse, ok := bestRotationMSE(incomingPIL, cand.TensorPIL); ok {
		if !found || mse < best {
			best, found = mse, true
		}
	} else if len(incomingPIL) != len(cand.TensorPIL) {
		slog.Default().Error("skipping tensor comparison: byte length mismatch",
			"candidate", cand.Filename, "decoder", "A")
	}

	if mse, ok := bestRotationMSE(incomingCV2, cand.TensorCV2); ok {
		if !found || mse < best {
			best, found = mse, true
		}
	} else if len(incomingCV2) != len(cand.TensorCV2) {
		slog.Default().Error("skipping tensor comparison: byte length mismatch",
			"candidate", cand.Filename, "decoder", "B")
	}

	if !found || best > mseMax {
		return nil, false
	}
	return &models.DuplicateMatch{Filename: cand.Filename, MinMSE: best}, true
}

// bestRotationMSE computes MSE between incoming and stored under all four
// 90-degree rotations of stored, returning the minimum. Mismatched lengths
// are reported as not-ok so the caller can skip and log.
func bestRotationMSE(incoming, stored []byte) (float64, bool) {
	if len(incoming) != tensorBytes || len(stored) != tensorBytes {
		return 0, false
	}

	min := -1.0
	rotated := stored
	for rot := 0; rot < 4; rot++ {
		mse := meanSquaredError(incoming, rotated)
		if min < 0 || mse < min {
			min = mse
		}
		rotated = rotate90(rotated)
	}
	return min, true
}

// meanSquaredError computes MSE over raw integer pixel differences between
// two equal-length tensors.
func meanSquaredError(a, b []byte) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return sum / float64(len(a))
}

// rotate90 rotates a 50x50x3 tensor 90 degrees clockwise.
func rotate90(t []byte) []byte {
	out := make([]byte, tensorBytes)
	for y := 0; y < tensorHeight; y++ {
		for x := 0; x < tensorWidth; x++ {
			srcIdx := (y*tensorWidth + x) * 3
			// (x, y) -> (tensorHeight-1-y, x) in the rotated frame
			dstX := tensorHeight - 1 - y
			dstY := x
			dstIdx := (dstY*tensorWidth + dstX) * 3
			out[dstIdx], out[dstIdx+1], out[dstIdx+2] = t[srcIdx], t[srcIdx+1], t[srcIdx+2]
		}
	}
	return out
}

// MatchMovie confirms exact MD5 equality against the catalog; any
// candidate with an equal hash is a duplicate.
func (m *Matcher) MatchMovie(ctx context.Context, mediaHash string) (*models.DuplicateMatch, error) {
	candidates, err := m.catalog.FetchMovieCandidatesByHash(ctx, mediaHash)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return &models.DuplicateMatch{Filename: candidates[0].Filename, MinMSE: 0}, nil
}

// DuplicateFilename builds the duplicate-directory filename:
// "<stem>-DUP_OF_<stem> (mse-<value>)<ext>" for images (hasMSE true) or
// "<stem>-DUP_OF_<stem><ext>" for movies.
func DuplicateFilename(origStem, dupStem, ext string, mse float64, hasMSE bool) string {
	if hasMSE {
		return fmt.Sprintf("%s-DUP_OF_%s (mse-%s)%s", origStem, dupStem, formatMSE(mse), ext)
	}
	return fmt.Sprintf("%s-DUP_OF_%s%s", origStem, dupStem, ext)
}

// formatMSE renders an MSE value for the duplicate filename. Integral values
// keep one decimal place ("0.0") so historical duplicate names stay
// byte-compatible; fractional values print at full precision.
func formatMSE(mse float64) string {
	if mse == math.Trunc(mse) {
		return strconv.FormatFloat(mse, 'f', 1, 64)
	}
	return strconv.FormatFloat(mse, 'f', -1, 64)
}

// Package batch signs the certificates of one event concurrently.
package batch

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/adamscao/certserver/internal/ca"
	"github.com/adamscao/certserver/internal/models"
)

// DefaultConcurrency bounds in-flight signatures when Options leaves it unset.
const DefaultConcurrency = 8

// Options tunes SignAll.
type Options struct {
	// Concurrency is the maximum number of records signed at once.
	Concurrency int
	// Timeout bounds each record. Zero means no per-record limit.
	Timeout time.Duration
	// Validate, when set, runs before a record is signed. A validation
	// failure becomes that record's error.
	Validate func(models.CertificateRecord) error
}

// Result is the outcome for one recipient.
type Result struct {
	Index     int                      `json:"index"`
	Record    models.CertificateRecord `json:"data"`
	Signature string                   `json:"signature,omitempty"`
	Err       error                    `json:"-"`
}

// OK reports whether the record was signed.
func (r Result) OK() bool {
	return r.Err == nil
}

// Results are indexed in recipient input order.
type Results []Result

// Err combines every per-record failure, or returns nil.
func (rs Results) Err() error {
	var err error
	for _, r := range rs {
		if r.Err != nil {
			err = multierr.Append(err, fmt.Errorf("record %d (%s): %w", r.Index, r.Record.StudentID, r.Err))
		}
	}
	return err
}

// Succeeded counts signed records.
func (rs Results) Succeeded() int {
	n := 0
	for _, r := range rs {
		if r.OK() {
			n++
		}
	}
	return n
}

// Failed counts records that could not be signed.
func (rs Results) Failed() int {
	return len(rs) - rs.Succeeded()
}

// SignAll combines event with each recipient and signs the records
// concurrently. A failure never cancels sibling records; cancelling ctx
// fails the records that have not finished.
func SignAll(ctx context.Context, signer ca.Signer, event models.EventContext, recipients []models.Recipient, opts Options) Results {
	log := zerolog.Ctx(ctx)
	results := make(Results, len(recipients))

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	var g errgroup.Group
	g.SetLimit(limit)

	start := time.Now()
	for i, recipient := range recipients {
		record := event.Record(recipient)
		results[i] = Result{Index: i, Record: record}

		g.Go(func() error {
			sig, err := signOne(ctx, signer, record, opts)
			if err != nil {
				log.Debug().Err(err).Int("index", i).Str("student_id", record.StudentID).Msg("record signing failed")
			}
			results[i].Signature = sig
			results[i].Err = err
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Str("event_id", event.EventID).
		Int("total", len(results)).
		Int("failed", results.Failed()).
		Dur("duration", time.Since(start)).
		Msg("batch signing finished")
	return results
}

func signOne(ctx context.Context, signer ca.Signer, record models.CertificateRecord, opts Options) (string, error) {
	if opts.Validate != nil {
		if err := opts.Validate(record); err != nil {
			return "", err
		}
	}
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return signer.Sign(ctx, record)
}

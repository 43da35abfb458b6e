package artifact

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/bids"
	"github.com/mmiv-center/Research-Information-System/Workflow-SCI/internal/ledger"
)

// ErrNoOutput is returned when a computation succeeded but did not write
// the working image.
var ErrNoOutput = errors.New("computation did not produce the working image")

// Decision is the answer of a human review.
type Decision int

const (
	Accept Decision = iota
	Reject
)

// Outcome says how the working copy of an artifact came to be.
type Outcome string

const (
	Reused    Outcome = "reused"
	Computed  Outcome = "computed"
	Corrected Outcome = "corrected"
)

// Request describes how to produce one artifact when no verified copy
// exists. Every step writes the working image of Key.
type Request struct {
	Key bids.Key
	// Compute runs the automatic computation.
	Compute func(ctx context.Context) error
	// Review shows the result to a human. Nil accepts without asking.
	Review func(ctx context.Context) (Decision, error)
	// Correct replaces a rejected result. Its output is promoted without
	// another review.
	Correct func(ctx context.Context) error
}

// Result is the resolved working copy.
type Result struct {
	Key     bids.Key
	Outcome Outcome
	Working Copy
}

// Recorder stores resolution events, implemented by *ledger.Ledger.
type Recorder interface {
	Record(ctx context.Context, e ledger.Event) error
}

// Observer counts resolutions, implemented by *metrics.Recorder.
type Observer interface {
	ObserveResolution(kind, outcome string)
}

// Resolver applies the manual-override policy to artifact requests.
type Resolver struct {
	store    *Store
	recorder Recorder
	observer Observer
	runID    string
	log      log.FieldLogger
}

type ResolverOption func(*Resolver)

// WithRecorder records every resolution under runID.
func WithRecorder(r Recorder, runID string) ResolverOption {
	return func(res *Resolver) {
		res.recorder = r
		res.runID = runID
	}
}

func WithObserver(o Observer) ResolverOption {
	return func(res *Resolver) { res.observer = o }
}

func WithResolverLogger(l log.FieldLogger) ResolverOption {
	return func(res *Resolver) { res.log = l }
}

func NewResolver(store *Store, opts ...ResolverOption) *Resolver {
	r := &Resolver{store: store, log: store.log}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *Resolver) Store() *Store { return r.store }

// Resolve produces the working copy of req.Key.
//
// If a verified copy exists it is copied and neither Compute, Review nor
// Correct run. Otherwise Compute runs once, Review decides, a rejection runs
// Correct once, and the working copy is promoted to the verified store.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Result, error) {
	key := req.Key
	logger := r.log.WithFields(log.Fields{
		"participant": key.Participant,
		"session":     key.Session,
		"contrast":    key.Contrast.String(),
		"artifact":    key.Kind.String(),
	})
	res := Result{Key: key}

	ok, err := r.store.HasVerified(ctx, key)
	if err != nil {
		return res, err
	}
	if ok {
		logger.Infof("found verified %s, skipping computation", key.FileName())
		c, err := r.store.CopyToWorking(key)
		if err != nil {
			return res, fmt.Errorf("copy verified %s: %w", key, err)
		}
		res.Outcome, res.Working = Reused, c
		r.record(ctx, res)
		return res, nil
	}

	if req.Compute == nil {
		return res, fmt.Errorf("%s: no verified copy and no computation", key)
	}
	logger.Infof("no verified %s, computing it", key.FileName())
	if err := req.Compute(ctx); err != nil {
		return res, err
	}
	if err := r.checkOutput(key); err != nil {
		return res, err
	}
	res.Outcome = Computed

	if req.Review != nil {
		d, err := req.Review(ctx)
		if err != nil {
			return res, err
		}
		if d == Reject {
			if req.Correct == nil {
				return res, fmt.Errorf("%s: rejected without a way to correct it", key)
			}
			logger.Info("result rejected, running manual correction")
			if err := req.Correct(ctx); err != nil {
				return res, err
			}
			if err := r.checkOutput(key); err != nil {
				return res, err
			}
			res.Outcome = Corrected
		}
	}

	c, err := r.store.Promote(ctx, key)
	if err != nil {
		return res, fmt.Errorf("promote %s: %w", key, err)
	}
	logger.Infof("promoted %s to the verified store", key.FileName())
	res.Working = Copy{Path: r.store.layout.Working(key), SHA256: c.SHA256, Size: c.Size, Sidecar: c.Sidecar}
	r.record(ctx, res)
	return res, nil
}

func (r *Resolver) checkOutput(key bids.Key) error {
	path := r.store.layout.Working(key)
	ok, err := exists(path)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w: %s", key, ErrNoOutput, path)
	}
	return nil
}

// record is best effort, a failing ledger does not stop the pipeline.
func (r *Resolver) record(ctx context.Context, res Result) {
	if r.observer != nil {
		r.observer.ObserveResolution(res.Key.Kind.String(), string(res.Outcome))
	}
	if r.recorder == nil {
		return
	}
	err := r.recorder.Record(ctx, ledger.Event{
		RunID:       r.runID,
		Participant: res.Key.Participant,
		Session:     res.Key.Session,
		Contrast:    res.Key.Contrast.String(),
		Kind:        res.Key.Kind.String(),
		Outcome:     string(res.Outcome),
		SHA256:      res.Working.SHA256,
		SizeBytes:   res.Working.Size,
	})
	if err != nil {
		r.log.WithError(err).Warn("could not record artifact event")
	}
}
